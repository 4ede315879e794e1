package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"student", PermGradesViewOwn, true},
		{"student", PermGradesViewAll, false},
		{"student", PermGradebookSync, false},
		{"teacher", PermGradesViewAll, true},
		{"teacher", PermGradesExport, true},
		{"teacher", PermGradebookSync, false},
		{"teacher", PermRosterManage, true},
		{"student", PermRosterManage, false},
		{"admin", PermGradebookSync, true},
		{"guest", PermGradesViewOwn, false},
		{"", PermGradesViewOwn, false},
	}
	for _, tc := range cases {
		if got := Default.Grants(tc.role, tc.perm); got != tc.want {
			t.Errorf("Grants(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
	if !Default.GrantsAny("student", PermGradesViewAll, PermGradesViewOwn) {
		t.Errorf("GrantsAny should match the second permission")
	}
}

func TestFamilyGrant(t *testing.T) {
	p := Policy{"grader": {"grades:*"}}
	if !p.Grants("grader", "grades:regrade") {
		t.Error("family grant missed a new grades permission")
	}
	if p.Grants("grader", "gradebook:sync") {
		t.Error("grades:* leaked into gradebook:")
	}
}

func TestStaff(t *testing.T) {
	for role, want := range map[string]bool{"student": false, "teacher": true, "admin": true, "": false} {
		if got := IsStaff(WithRole(context.Background(), role)); got != want {
			t.Errorf("IsStaff(%q) = %v", role, got)
		}
	}
}

func TestRequire(t *testing.T) {
	h := Require(PermGradesExport)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for role, want := range map[string]int{"": 403, "student": 403, "teacher": 204, "admin": 204} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(context.Background(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("role %q: status %d, want %d", role, rec.Code, want)
		}
	}
}
