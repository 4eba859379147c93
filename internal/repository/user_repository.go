package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/qjdesk/complaint-desk/internal/model"
	"github.com/qjdesk/complaint-desk/internal/utils"
)

const userColumns = "id,username,password_hash,role,is_active,last_login_at,created_at,updated_at"

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NormalizeUsername is the canonical form usernames are stored and looked up in.
func NormalizeUsername(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Create hashes password and inserts the user, returning its ID.  Used by
// provisioning only; there is no self-service registration.
func (r *UserRepo) Create(ctx context.Context, username, password string, role model.Role, cost int) (uint64, error) {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, role) VALUES (?,?,?)",
		NormalizeUsername(username), hash, string(role))
	if err != nil {
		if isDuplicateKey(err, "") {
			return 0, ErrUsernameExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByUsername fetches a user by normalized username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", NormalizeUsername(username))
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// TouchLastLogin records a successful login.
func (r *UserRepo) TouchLastLogin(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET last_login_at=? WHERE id=?", at.UTC(), id)
	return err
}

// UpdateAccess changes role and/or the active flag.  Nil arguments keep
// the current value.  The updated row is returned.
func (r *UserRepo) UpdateAccess(ctx context.Context, id uint64, role *model.Role, active *bool) (model.User, error) {
	sets := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if role != nil {
		sets = append(sets, "role=?")
		args = append(args, string(*role))
	}
	if active != nil {
		sets = append(sets, "is_active=?")
		args = append(args, *active)
	}
	if len(sets) > 0 {
		args = append(args, id)
		// MySQL reports 0 affected rows when values are unchanged, so only
		// the follow-up read can tell a missing user apart.
		if _, err := r.DB.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ",")+" WHERE id=?", args...); err != nil {
			return model.User{}, err
		}
	}
	return r.GetByID(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u         model.User
		role      string
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.IsActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}
