package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qjdesk/complaint-desk/internal/model"
	"github.com/qjdesk/complaint-desk/internal/registry"
	"github.com/qjdesk/complaint-desk/internal/utils"
)

const complaintColumns = `id, folio, employee_number, company, route, neighborhood, shift,
	latitude, longitude, unit_number, variant, status, origin_ip, client_signature, created_at`

// ComplaintRepo writes complaint headers together with their variant
// detail and reads them back.
type ComplaintRepo struct {
	db          *sql.DB
	maxAttempts int
	newFolio    func(time.Time) (string, error)
	now         func() time.Time
}

// NewComplaintRepo returns a repository that regenerates the folio up to
// maxAttempts times when it collides with an existing complaint.
func NewComplaintRepo(db *sql.DB, maxAttempts int) *ComplaintRepo {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ComplaintRepo{db: db, maxAttempts: maxAttempts, newFolio: utils.NewFolio, now: time.Now}
}

// CreateWithDetail assigns a folio to c and stores c and d atomically.
// On success c carries its generated ID, folio, pending status and
// creation time.  Each attempt runs in its own transaction; a folio
// collision rolls the attempt back and retries with a fresh folio.
func (r *ComplaintRepo) CreateWithDetail(ctx context.Context, c *model.Complaint, d model.Detail) error {
	if d == nil || d.Variant() != c.Variant {
		return fmt.Errorf("detail variant does not match complaint variant %q", c.Variant)
	}
	table, ok := registry.TableFor(c.Variant)
	if !ok {
		return fmt.Errorf("no detail table for variant %q", c.Variant)
	}
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		now := r.now().UTC().Truncate(time.Second)
		folio, err := r.newFolio(now)
		if err != nil {
			return err
		}
		id, err := r.insertTx(ctx, table, folio, now, c, d)
		if isDuplicateKey(err, "uq_complaints_folio") {
			continue
		}
		if err != nil {
			return err
		}
		c.ID = id
		c.Folio = folio
		c.Status = model.StatusPending
		c.CreatedAt = now
		return nil
	}
	return ErrFolioExhausted
}

// insertTx writes the header and the detail on one transaction.  Any
// error rolls back both rows.
func (r *ComplaintRepo) insertTx(ctx context.Context, table, folio string, now time.Time, c *model.Complaint, d model.Detail) (uint64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO complaints (folio, employee_number, company, route, neighborhood, shift,
			latitude, longitude, unit_number, variant, status, origin_ip, client_signature, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		folio, c.EmployeeNumber, c.Company, c.Route, c.Neighborhood, c.Shift,
		c.Latitude, c.Longitude, c.UnitNumber, string(c.Variant), string(model.StatusPending),
		c.OriginIP, c.ClientSignature, now)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	cols := append([]string{"complaint_id"}, d.Columns()...)
	args := append([]any{id}, d.Values()...)
	q := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return uint64(id), nil
}

// ComplaintFilter narrows List.  Zero values mean "any".
type ComplaintFilter struct {
	Status   model.Status
	Variant  model.Variant
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps paging to sane bounds.
func (f ComplaintFilter) Normalize() ComplaintFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// List returns one page of complaints, newest first, and the total
// number of complaints matching the filter.
func (r *ComplaintRepo) List(ctx context.Context, f ComplaintFilter) ([]model.Complaint, int, error) {
	f = f.Normalize()
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, string(f.Status))
	}
	if f.Variant != "" {
		where = append(where, "variant=?")
		args = append(args, string(f.Variant))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM complaints"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageArgs := append(append([]any{}, args...), f.PageSize, (f.Page-1)*f.PageSize)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+complaintColumns+" FROM complaints"+cond+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]model.Complaint, 0, f.PageSize)
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// GetByID returns the complaint with its detail and resolution, if any.
func (r *ComplaintRepo) GetByID(ctx context.Context, id uint64) (model.ComplaintView, error) {
	c, err := scanComplaint(r.db.QueryRowContext(ctx,
		"SELECT "+complaintColumns+" FROM complaints WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ComplaintView{}, ErrNotFound
	}
	if err != nil {
		return model.ComplaintView{}, err
	}
	view := model.ComplaintView{Complaint: c}

	spec, ok := registry.Lookup(c.Variant)
	if !ok {
		return view, fmt.Errorf("complaint %d has unknown variant %q", id, c.Variant)
	}
	d := spec.New()
	err = r.db.QueryRowContext(ctx,
		"SELECT "+strings.Join(d.Columns(), ", ")+" FROM "+spec.Table+" WHERE complaint_id=? LIMIT 1", id).
		Scan(d.Targets()...)
	if err != nil {
		return view, fmt.Errorf("load %s detail: %w", spec.Table, err)
	}
	view.Detail = d

	var res model.Resolution
	var outcome string
	err = r.db.QueryRowContext(ctx,
		"SELECT id, complaint_id, narrative, outcome, resolved_by, resolved_at FROM resolutions WHERE complaint_id=? LIMIT 1", id).
		Scan(&res.ID, &res.ComplaintID, &res.Narrative, &outcome, &res.ResolvedBy, &res.ResolvedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return view, err
	default:
		res.Outcome = model.Outcome(outcome)
		view.Resolution = &res
	}
	return view, nil
}

func scanComplaint(row rowScanner) (model.Complaint, error) {
	var (
		c                                model.Complaint
		route, neighborhood, shift, unit sql.NullString
		lat, lng                         sql.NullFloat64
		variant, status                  string
	)
	err := row.Scan(&c.ID, &c.Folio, &c.EmployeeNumber, &c.Company, &route, &neighborhood, &shift,
		&lat, &lng, &unit, &variant, &status, &c.OriginIP, &c.ClientSignature, &c.CreatedAt)
	if err != nil {
		return model.Complaint{}, err
	}
	c.Route = nullString(route)
	c.Neighborhood = nullString(neighborhood)
	c.Shift = nullString(shift)
	c.UnitNumber = nullString(unit)
	if lat.Valid {
		c.Latitude = &lat.Float64
	}
	if lng.Valid {
		c.Longitude = &lng.Float64
	}
	c.Variant = model.Variant(variant)
	c.Status = model.Status(status)
	return c, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
