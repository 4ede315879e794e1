package dojo

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrNoCourse       = errors.New("dojo has no course")
	ErrBadCredentials = errors.New("invalid credentials")
)

type Dojo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"` // student|teacher|admin
}

// RosterEntry is one imported user. An empty password keeps the stored hash;
// new users need one.
type RosterEntry struct {
	User
	Password string `json:"password,omitempty"`
}

type ImportResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Enrolled int `json:"enrolled"`
}

// Link states of a student identity.
const (
	LinkComplete   = "complete"   // on the course's student list
	LinkUnknown    = "unknown"    // enrolled, identity not on the list
	LinkIncomplete = "incomplete" // not enrolled
)

// Identity is a user's student identity in a dojo's course.
type Identity struct {
	Label  string  `json:"label"`
	Value  *string `json:"value"`
	Linked string  `json:"link_student"`
}

type Challenge struct {
	ID       int64  `json:"id"`
	ModuleID string `json:"module_id"`
	Name     string `json:"name,omitempty"`
}

// Scope picks the users a feed covers.
type Scope struct {
	UserID int64 // 0: every enrolled student
}

func RosterScope() Scope       { return Scope{} }
func UserScope(id int64) Scope { return Scope{UserID: id} }
func (s Scope) single() bool   { return s.UserID != 0 }
