package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/qjdesk/complaint-desk/internal/model"
)

// TokenRepo persists and validates refresh credentials.  Only the SHA‑256
// hash of a refresh token is stored (token_hash).
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp.UTC())
	return err
}

// ValidateRefresh returns the owning user id if a live credential with
// the hash exists.  Missing, revoked and expired rows all yield
// ErrNotFound so callers cannot tell them apart.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if revokedAt.Valid || !time.Now().UTC().Before(expiresAt) {
		return 0, ErrNotFound
	}
	return userID, nil
}

// RevokeByHash revokes the credential with the given hash if it is still
// live and reports how many rows changed.  At most one of several
// concurrent callers sees 1, so rotation can use it as a claim.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL AND expires_at > UTC_TIMESTAMP()",
		tokenHash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RevokeAllForUser revokes every unrevoked token of the user and returns
// how many rows changed.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListLive returns the user's live credentials, newest first.
func (r *TokenRepo) ListLive(ctx context.Context, userID uint64) ([]model.RefreshCredential, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
		   FROM refresh_tokens
		  WHERE user_id=? AND revoked_at IS NULL AND expires_at > UTC_TIMESTAMP()
		  ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RefreshCredential
	for rows.Next() {
		var (
			c       model.RefreshCredential
			revoked sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.TokenHash, &c.ExpiresAt, &revoked, &c.CreatedAt); err != nil {
			return nil, err
		}
		if revoked.Valid {
			t := revoked.Time
			c.RevokedAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountLive returns the number of live credentials of the user.
func (r *TokenRepo) CountLive(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM refresh_tokens WHERE user_id=? AND revoked_at IS NULL AND expires_at > UTC_TIMESTAMP()",
		userID).Scan(&n)
	return n, err
}

// RevokeIDs revokes the given credentials of one user.  Ids belonging to
// another user are ignored.
func (r *TokenRepo) RevokeIDs(ctx context.Context, userID uint64, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	q := "UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE user_id=? AND revoked_at IS NULL AND id IN (" +
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")"
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
