package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/qjdesk/complaint-desk/internal/model"
)

// ResolveParams is a validated resolution request.  Outcome must already
// be canonical and Target terminal.
type ResolveParams struct {
	ComplaintID uint64
	Folio       string
	Target      model.Status
	Narrative   string
	Outcome     model.Outcome
	ResolvedBy  uint64
}

type ResolutionRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewResolutionRepo(db *sql.DB) *ResolutionRepo { return &ResolutionRepo{db: db, now: time.Now} }

// Resolve moves a pending complaint to p.Target and records the
// resolution in one transaction.  The status change is a single
// conditional UPDATE, so of two concurrent resolvers exactly one sees an
// affected row; the other gets ErrConflict.  A complaint that does not
// exist (or whose folio does not match) yields ErrNotFound.
func (r *ResolutionRepo) Resolve(ctx context.Context, p ResolveParams) (model.Resolution, error) {
	if !p.Target.Terminal() {
		return model.Resolution{}, fmt.Errorf("status %q is not a resolution target", p.Target)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Resolution{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"UPDATE complaints SET status=? WHERE id=? AND folio=? AND status=?",
		string(p.Target), p.ComplaintID, p.Folio, string(model.StatusPending))
	if err != nil {
		return model.Resolution{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Resolution{}, err
	}
	if n == 0 {
		var current string
		err := tx.QueryRowContext(ctx,
			"SELECT status FROM complaints WHERE id=? AND folio=? LIMIT 1", p.ComplaintID, p.Folio).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return model.Resolution{}, ErrNotFound
		}
		if err != nil {
			return model.Resolution{}, err
		}
		return model.Resolution{}, fmt.Errorf("%w: complaint is %s", ErrConflict, current)
	}

	at := r.now().UTC().Truncate(time.Second)
	ins, err := tx.ExecContext(ctx,
		"INSERT INTO resolutions (complaint_id, narrative, outcome, resolved_by, resolved_at) VALUES (?,?,?,?,?)",
		p.ComplaintID, p.Narrative, string(p.Outcome), p.ResolvedBy, at)
	if isDuplicateKey(err, "uq_resolutions_complaint") {
		return model.Resolution{}, fmt.Errorf("%w: resolution already recorded", ErrConflict)
	}
	if err != nil {
		return model.Resolution{}, err
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return model.Resolution{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.Resolution{}, err
	}
	committed = true
	return model.Resolution{
		ID:          uint64(id),
		ComplaintID: p.ComplaintID,
		Narrative:   p.Narrative,
		Outcome:     p.Outcome,
		ResolvedBy:  p.ResolvedBy,
		ResolvedAt:  at,
	}, nil
}
