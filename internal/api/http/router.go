package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	authmw "github.com/mind-engage/mindengage-grades/internal/auth/middleware"
	"github.com/mind-engage/mindengage-grades/internal/rbac"
	"github.com/mind-engage/mindengage-grades/pkg/lti-ags-gradebook/httpchi"
)

type Users interface {
	authmw.Authenticator
	authmw.UserLookup
	PasswordChanger
}

type RouterConfig struct {
	Auth               *authmw.AuthService
	Users              Users
	Grades             Grades
	Roster             Roster       // nil leaves roster import unmounted
	Identities         Identities   // nil leaves identity linking unmounted
	Gradebook          *httpchi.API // nil leaves LMS passback unmounted
	AllowClaimFallback bool
	CORSOrigins        []string
	Ready              func() error
}

// NewRouter mounts the login, grade, identity, roster and passback routes.
func NewRouter(rc RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rc.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", authmw.LoginHandler(rc.Auth, rc.Users))

	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(rc.Auth))
		pr.Use(authmw.AttachRoleFromDB(rc.Users, rc.AllowClaimFallback))

		pr.With(rbac.Require(rbac.PermChangePassword)).
			Post("/users/change-password", ChangePasswordHandler(rc.Users))

		pr.Route("/dojos/{dojo}", func(dr chi.Router) {
			dr.With(rbac.RequireAny(rbac.PermGradesViewOwn, rbac.PermGradesViewAll)).
				Get("/course/grades", CourseGradesHandler(rc.Grades))
			if rc.Identities != nil {
				dr.With(rbac.Require(rbac.PermGradesViewOwn)).
					Patch("/course/identity", IdentityHandler(rc.Identities))
			}

			dr.Route("/admin", func(ar chi.Router) {
				ar.With(rbac.Require(rbac.PermGradesViewAll)).
					Get("/grades", AllGradesHandler(rc.Grades))
				ar.With(rbac.Require(rbac.PermGradesExport)).
					Get("/grades.xlsx", GradesXLSXHandler(rc.Grades))
				if rc.Roster != nil {
					ar.With(rbac.Require(rbac.PermRosterManage)).
						Get("/roster", ListRosterHandler(rc.Roster))
					ar.With(rbac.Require(rbac.PermRosterManage)).
						Post("/roster", ImportRosterHandler(rc.Roster))
				}
				if rc.Gradebook != nil {
					ar.Group(func(gr chi.Router) {
						gr.Use(rbac.Require(rbac.PermGradebookSync))
						rc.Gradebook.Routes(gr)
					})
				}
			})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if rc.Ready != nil {
			if err := rc.Ready(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}
