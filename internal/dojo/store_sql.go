package dojo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-grades/internal/course"
	"github.com/mind-engage/mindengage-grades/internal/grading"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

var _ Store = (*SQLStore)(nil)

/* ---------------- course metadata ---------------- */

// PutDojo upserts a dojo. A non-empty policy is validated and stored as JSON.
func (s *SQLStore) PutDojo(ctx context.Context, d Dojo, policy []byte) error {
	var cj string
	if len(policy) > 0 {
		c, err := course.Parse(policy)
		if err != nil {
			return err
		}
		b, err := json.Marshal(c)
		if err != nil {
			return err
		}
		cj = string(b)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO dojos (id,name,course_json) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, course_json=EXCLUDED.course_json`,
		d.ID, d.Name, cj)
	return err
}

func (s *SQLStore) Course(ctx context.Context, dojoID string) (*course.Course, error) {
	var cj string
	err := s.db.QueryRowContext(ctx, `SELECT course_json FROM dojos WHERE id=$1`, dojoID).Scan(&cj)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dojo %q: %w", dojoID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cj) == "" {
		return nil, fmt.Errorf("dojo %q: %w", dojoID, ErrNoCourse)
	}
	return course.Parse([]byte(cj))
}

func (s *SQLStore) PutModule(ctx context.Context, dojoID string, index int, id, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO dojo_modules (dojo_id,id,module_index,name) VALUES ($1,$2,$3,$4)
		ON CONFLICT (dojo_id,id) DO UPDATE SET module_index=EXCLUDED.module_index, name=EXCLUDED.name`,
		dojoID, id, index, name)
	return err
}

func (s *SQLStore) PutChallenge(ctx context.Context, dojoID string, c Challenge) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO dojo_challenges (id,dojo_id,module_id,name) VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET dojo_id=EXCLUDED.dojo_id, module_id=EXCLUDED.module_id, name=EXCLUDED.name`,
		c.ID, dojoID, c.ModuleID, c.Name)
	return err
}

func (s *SQLStore) Modules(ctx context.Context, dojoID string) ([]course.Module, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.name, COUNT(c.id)
		FROM dojo_modules m
		LEFT JOIN dojo_challenges c ON c.dojo_id = m.dojo_id AND c.module_id = m.id
		WHERE m.dojo_id = $1
		GROUP BY m.id, m.name, m.module_index
		ORDER BY m.module_index`, dojoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []course.Module
	for rows.Next() {
		var m course.Module
		if err := rows.Scan(&m.ID, &m.Name, &m.ChallengeCount); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

/* ---------------- users and roster ---------------- */

// PutUser upserts a user; an empty password keeps the stored hash.
func (s *SQLStore) PutUser(ctx context.Context, u User, password string) error {
	if u.Role == "" {
		u.Role = "student"
	}
	if password == "" {
		_, err := s.db.ExecContext(ctx, `INSERT INTO users (id,username,role,created_at) VALUES ($1,$2,$3,$4)
			ON CONFLICT (id) DO UPDATE SET username=EXCLUDED.username, role=EXCLUDED.role`,
			u.ID, u.Username, u.Role, time.Now().Unix())
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO users (id,username,password_hash,role,created_at) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET username=EXCLUDED.username, password_hash=EXCLUDED.password_hash, role=EXCLUDED.role`,
		u.ID, u.Username, string(hash), u.Role, time.Now().Unix())
	return err
}

func (s *SQLStore) User(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `SELECT id,username,role FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Username, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, err
}

// Authenticate checks a username/password pair against the bcrypt hash.
func (s *SQLStore) Authenticate(ctx context.Context, username, password string) (User, error) {
	var u User
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT id,username,role,password_hash FROM users WHERE username=$1`, username).
		Scan(&u.ID, &u.Username, &u.Role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrBadCredentials
	}
	if err != nil {
		return User{}, err
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	return u, nil
}

// ChangePassword replaces a user's password after checking the old one.
func (s *SQLStore) ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id=$1`, id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(oldPassword)) != nil {
		return ErrBadCredentials
	}
	next, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, string(next), id)
	return err
}

// EnsureAdmin creates or promotes the bootstrap admin with a precomputed
// bcrypt hash.
func (s *SQLStore) EnsureAdmin(ctx context.Context, username, hash string) (User, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return User{}, fmt.Errorf("admin password hash: %w", err)
	}
	u := User{Username: username, Role: "admin"}
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE username=$1`, username).Scan(&u.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO users (id,username,password_hash,role,created_at)
			SELECT COALESCE(MAX(id),0)+1, $1, $2, 'admin', $3 FROM users
			RETURNING id`, username, hash, time.Now().Unix()).Scan(&u.ID)
		return u, err
	case err != nil:
		return User{}, err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1, role='admin' WHERE id=$2`, hash, u.ID)
	return u, err
}

// ImportRoster upserts users and enrolls the students among them in one
// transaction.
func (s *SQLStore) ImportRoster(ctx context.Context, dojoID string, entries []RosterEntry) (res ImportResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	now := time.Now().Unix()
	for _, e := range entries {
		if e.Role == "" {
			e.Role = "student"
		}
		switch e.Role {
		case "student", "teacher", "admin":
		default:
			return res, fmt.Errorf("user %d: invalid role %q", e.ID, e.Role)
		}
		if e.ID <= 0 || e.Username == "" {
			return res, fmt.Errorf("user %d: id and username required", e.ID)
		}
		var hash string
		if e.Password != "" {
			b, herr := bcrypt.GenerateFromPassword([]byte(e.Password), bcrypt.DefaultCost)
			if herr != nil {
				return res, herr
			}
			hash = string(b)
		}

		var exists bool
		switch err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id=$1`, e.ID).Scan(new(int)); {
		case err == nil:
			exists = true
		case !errors.Is(err, sql.ErrNoRows):
			return res, err
		}
		switch {
		case exists && hash != "":
			_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, role=$2, password_hash=$3 WHERE id=$4`,
				e.Username, e.Role, hash, e.ID)
			res.Updated++
		case exists:
			_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, role=$2 WHERE id=$3`, e.Username, e.Role, e.ID)
			res.Updated++
		case hash == "":
			return res, fmt.Errorf("password required for new user %q", e.Username)
		default:
			_, err = tx.ExecContext(ctx, `INSERT INTO users (id,username,password_hash,role,created_at) VALUES ($1,$2,$3,$4,$5)`,
				e.ID, e.Username, hash, e.Role, now)
			res.Inserted++
		}
		if err != nil {
			return res, err
		}
		if e.Role != "student" {
			continue
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO dojo_students (dojo_id,user_id) VALUES ($1,$2)
			ON CONFLICT (dojo_id,user_id) DO NOTHING`, dojoID, e.ID); err != nil {
			return res, err
		}
		res.Enrolled++
	}
	return res, nil
}

// RosterUsers lists the enrolled students of a dojo.
func (s *SQLStore) RosterUsers(ctx context.Context, dojoID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT u.id, u.username, u.role FROM dojo_students ds
		JOIN users u ON u.id = ds.user_id WHERE ds.dojo_id=$1 ORDER BY u.id`, dojoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLStore) Enroll(ctx context.Context, dojoID string, userID int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO dojo_students (dojo_id,user_id) VALUES ($1,$2)
		ON CONFLICT (dojo_id,user_id) DO NOTHING`, dojoID, userID)
	return err
}

// SetIdentity records the user's student identity, enrolling them as a
// student of the dojo when they are not yet.
func (s *SQLStore) SetIdentity(ctx context.Context, dojoID string, userID int64, token string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM dojos WHERE id=$1`, dojoID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("dojo %q: %w", dojoID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO dojo_students (dojo_id,user_id,token) VALUES ($1,$2,$3)
		ON CONFLICT (dojo_id,user_id) DO UPDATE SET token=EXCLUDED.token`, dojoID, userID, token)
	return err
}

func (s *SQLStore) StudentToken(ctx context.Context, dojoID string, userID int64) (*string, bool, error) {
	var tok sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT token FROM dojo_students WHERE dojo_id=$1 AND user_id=$2`,
		dojoID, userID).Scan(&tok)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !tok.Valid {
		return nil, true, nil
	}
	return &tok.String, true, nil
}

func (s *SQLStore) Roster(ctx context.Context, dojoID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM dojo_students WHERE dojo_id=$1 ORDER BY user_id`, dojoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

/* ---------------- solves and writeups ---------------- */

// RecordSolve stores the first solve of a challenge; repeats are ignored.
func (s *SQLStore) RecordSolve(ctx context.Context, userID, challengeID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO solves (user_id,challenge_id,solved_at) VALUES ($1,$2,$3)
		ON CONFLICT (user_id,challenge_id) DO NOTHING`, userID, challengeID, at.UnixMicro())
	return err
}

func (s *SQLStore) AddWriteup(ctx context.Context, userID int64, url string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO ctf_writeup_submissions (user_id,url,submitted_at) VALUES ($1,$2,$3)`,
		userID, url, at.Unix())
	return err
}

func (s *SQLStore) CountWriteups(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ctf_writeup_submissions WHERE user_id=$1`, userID).Scan(&n)
	return n, err
}

// scopeUsers returns the user subquery for a scope. $1 is always the dojo id.
func scopeUsers(scope Scope, a *args) string {
	if scope.single() {
		return `SELECT id AS user_id FROM users WHERE id = ` + a.add(scope.UserID)
	}
	return `SELECT user_id FROM dojo_students WHERE dojo_id = $1`
}

// dojoSolves keeps only solves of challenges that belong to the dojo.
const dojoSolves = `
	SELECT s.user_id, c.module_id, m.module_index, s.solved_at
	FROM solves s
	JOIN dojo_challenges c ON c.id = s.challenge_id
	JOIN dojo_modules m ON m.dojo_id = c.dojo_id AND m.id = c.module_id
	WHERE c.dojo_id = $1`

func (s *SQLStore) SolveFacts(ctx context.Context, dojoID string, scope Scope) iter.Seq2[grading.SolveFact, error] {
	return func(yield func(grading.SolveFact, error) bool) {
		a := &args{vals: []any{dojoID}}
		q := `
		SELECT u.user_id, COALESCE(f.module_id, ''), COALESCE(f.solved_at, 0)
		FROM (` + scopeUsers(scope, a) + `) u
		LEFT JOIN (` + dojoSolves + `) f ON f.user_id = u.user_id
		ORDER BY u.user_id, f.module_index, f.solved_at`
		rows, err := s.db.QueryContext(ctx, q, a.vals...)
		if err != nil {
			yield(grading.SolveFact{}, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			var f grading.SolveFact
			var micros int64
			if err := rows.Scan(&f.UserID, &f.ModuleID, &micros); err != nil {
				yield(grading.SolveFact{}, err)
				return
			}
			if f.ModuleID != "" {
				f.SolvedAt = time.UnixMicro(micros).UTC()
			}
			if !yield(f, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(grading.SolveFact{}, err)
		}
	}
}

func (s *SQLStore) CountRows(ctx context.Context, dojoID string, scope Scope, d grading.Deadlines) iter.Seq2[grading.CountRow, error] {
	return func(yield func(grading.CountRow, error) bool) {
		a := &args{vals: []any{dojoID}}
		users := scopeUsers(scope, a)
		checkpoint := deadlineCase(d.Checkpoint, a)
		due := deadlineCase(d.Due, a)
		q := `
		SELECT u.user_id, COALESCE(f.module_id, ''),
			COALESCE(SUM(` + checkpoint + `), 0),
			COALESCE(SUM(` + due + `), 0),
			COUNT(f.module_id)
		FROM (` + users + `) u
		LEFT JOIN (` + dojoSolves + `) f ON f.user_id = u.user_id
		GROUP BY u.user_id, f.module_id, f.module_index
		ORDER BY u.user_id, f.module_index`
		rows, err := s.db.QueryContext(ctx, q, a.vals...)
		if err != nil {
			yield(grading.CountRow{}, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			var r grading.CountRow
			if err := rows.Scan(&r.UserID, &r.ModuleID, &r.Counts.Checkpoint, &r.Counts.Due, &r.Counts.All); err != nil {
				yield(grading.CountRow{}, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(grading.CountRow{}, err)
		}
	}
}

// deadlineCase renders "solved before the user's deadline" as a 0/1 CASE.
// Extended users get their own branch ahead of the module's default one.
func deadlineCase(deadlines map[string]grading.Deadline, a *args) string {
	var b strings.Builder
	for _, mod := range slices.Sorted(maps.Keys(deadlines)) {
		dl := deadlines[mod]
		m := a.add(mod)
		for _, u := range slices.Sorted(maps.Keys(dl.Extensions)) {
			if !dl.Extended(u) {
				continue
			}
			fmt.Fprintf(&b, " WHEN f.module_id = %s AND f.user_id = %s THEN CASE WHEN f.solved_at < %s THEN 1 ELSE 0 END",
				m, a.add(u), a.add(dl.For(u).UnixMicro()))
		}
		fmt.Fprintf(&b, " WHEN f.module_id = %s AND f.solved_at < %s THEN 1", m, a.add(dl.At.UnixMicro()))
	}
	if b.Len() == 0 {
		return "0"
	}
	return "CASE" + b.String() + " ELSE 0 END"
}

// args numbers positional parameters as $1, $2, ...
type args struct{ vals []any }

func (a *args) add(v any) string {
	a.vals = append(a.vals, v)
	return fmt.Sprintf("$%d", len(a.vals))
}
