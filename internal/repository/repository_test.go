package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/qjdesk/complaint-desk/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func verify(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func dupFolio() error {
	return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'QJ-20260101-AAAAAA' for key 'complaints.uq_complaints_folio'"}
}

// sequenceFolios returns a folio generator yielding the given values in order.
func sequenceFolios(folios ...string) func(time.Time) (string, error) {
	i := 0
	return func(time.Time) (string, error) {
		if i >= len(folios) {
			return "", errors.New("out of folios")
		}
		f := folios[i]
		i++
		return f, nil
	}
}

func testComplaint(v model.Variant) *model.Complaint {
	return &model.Complaint{
		EmployeeNumber:  "104233",
		Company:         "Transportes Norte",
		Variant:         v,
		OriginIP:        "10.0.0.7",
		ClientSignature: "Mozilla/5.0",
	}
}

var insertHeader = regexp.QuoteMeta("INSERT INTO complaints")

func TestCreateWithDetailCommitsHeaderAndDetail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewComplaintRepo(db, 5)
	repo.newFolio = sequenceFolios("QJ-20261017-0A1B2C")

	mock.ExpectBegin()
	mock.ExpectExec(insertHeader).WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO complaint_delays (complaint_id, scheduled_time, actual_time, pickup_address) VALUES (?,?,?,?)")).
		WithArgs(int64(42), "07:30", "08:05", "Av. Reforma 120").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c := testComplaint(model.VariantDelay)
	d := &model.DelayDetail{ScheduledTime: "07:30", ActualTime: "08:05", PickupAddress: "Av. Reforma 120"}
	if err := repo.CreateWithDetail(context.Background(), c, d); err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID != 42 || c.Folio != "QJ-20261017-0A1B2C" || c.Status != model.StatusPending {
		t.Fatalf("complaint not populated: %+v", c)
	}
	verify(t, mock)
}

func TestCreateWithDetailRollsBackHeaderWhenDetailFails(t *testing.T) {
	db, mock := newMock(t)
	repo := NewComplaintRepo(db, 5)
	repo.newFolio = sequenceFolios("QJ-20261017-0A1B2C")

	mock.ExpectBegin()
	mock.ExpectExec(insertHeader).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO complaint_mistreatments")).
		WillReturnError(&mysql.MySQLError{Number: 1406, Message: "Data too long for column 'driver_id'"})
	mock.ExpectRollback()

	c := testComplaint(model.VariantMistreatment)
	d := &model.MistreatmentDetail{DriverID: "DRV-99", Description: "shouted at passengers"}
	err := repo.CreateWithDetail(context.Background(), c, d)
	if err == nil {
		t.Fatal("expected detail failure to surface")
	}
	if c.ID != 0 || c.Folio != "" {
		t.Fatalf("complaint must not look persisted: %+v", c)
	}
	verify(t, mock)
}

func TestCreateWithDetailRetriesFolioCollision(t *testing.T) {
	db, mock := newMock(t)
	repo := NewComplaintRepo(db, 5)
	repo.newFolio = sequenceFolios("QJ-20261017-AAAAAA", "QJ-20261017-BBBBBB")

	mock.ExpectBegin()
	mock.ExpectExec(insertHeader).WillReturnError(dupFolio())
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(insertHeader).WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO complaint_others")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c := testComplaint(model.VariantOther)
	d := &model.OtherDetail{Subject: "Lost item", Description: "left a bag in unit 42"}
	if err := repo.CreateWithDetail(context.Background(), c, d); err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Folio != "QJ-20261017-BBBBBB" {
		t.Fatalf("expected regenerated folio, got %s", c.Folio)
	}
	verify(t, mock)
}

func TestCreateWithDetailGivesUpAfterMaxAttempts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewComplaintRepo(db, 2)
	repo.newFolio = sequenceFolios("QJ-20261017-AAAAAA", "QJ-20261017-AAAAAA")
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(insertHeader).WillReturnError(dupFolio())
		mock.ExpectRollback()
	}
	err := repo.CreateWithDetail(context.Background(), testComplaint(model.VariantOther),
		&model.OtherDetail{Subject: "x", Description: "y"})
	if !errors.Is(err, ErrFolioExhausted) {
		t.Fatalf("expected ErrFolioExhausted, got %v", err)
	}
	verify(t, mock)
}

func TestCreateWithDetailRejectsMismatchedDetail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewComplaintRepo(db, 5)
	err := repo.CreateWithDetail(context.Background(), testComplaint(model.VariantDelay), &model.OtherDetail{})
	if err == nil {
		t.Fatal("mismatched detail must be rejected before touching the database")
	}
	verify(t, mock)
}

func TestListAppliesFilterAndPaging(t *testing.T) {
	db, mock := newMock(t)
	repo := NewComplaintRepo(db, 5)
	created := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM complaints WHERE status=?")).
		WithArgs("pending").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(21))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")).
		WithArgs("pending", 10, 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "folio", "employee_number", "company", "route", "neighborhood", "shift",
			"latitude", "longitude", "unit_number", "variant", "status", "origin_ip", "client_signature", "created_at",
		}).AddRow(int64(5), "QJ-20261017-ABCDEF", "104233", "Transportes Norte", "R-12", nil, "morning",
			19.4326, -99.1332, nil, "delay", "pending", "10.0.0.7", "Mozilla/5.0", created))

	items, total, err := repo.List(context.Background(), ComplaintFilter{Status: model.StatusPending, Page: 2, PageSize: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 21 || len(items) != 1 {
		t.Fatalf("total=%d items=%d", total, len(items))
	}
	got := items[0]
	if got.Route == nil || *got.Route != "R-12" || got.Neighborhood != nil || got.Latitude == nil {
		t.Fatalf("nullable columns mis-scanned: %+v", got)
	}
	verify(t, mock)
}

func TestComplaintFilterNormalize(t *testing.T) {
	f := ComplaintFilter{Page: -3, PageSize: 1000}.Normalize()
	if f.Page != 1 || f.PageSize != MaxPageSize {
		t.Fatalf("unexpected %+v", f)
	}
	if (ComplaintFilter{}).Normalize().PageSize != DefaultPageSize {
		t.Fatal("default page size not applied")
	}
}

func TestGetByIDMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewComplaintRepo(db, 5)
	mock.ExpectQuery(regexp.QuoteMeta("FROM complaints WHERE id=?")).WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	if _, err := repo.GetByID(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	verify(t, mock)
}

var conditionalUpdate = regexp.QuoteMeta("UPDATE complaints SET status=? WHERE id=? AND folio=? AND status=?")

func resolveParams() ResolveParams {
	return ResolveParams{
		ComplaintID: 5,
		Folio:       "QJ-20261017-ABCDEF",
		Target:      model.StatusReviewed,
		Narrative:   "Driver was reminded of the schedule.",
		Outcome:     model.OutcomeUpheld,
		ResolvedBy:  2,
	}
}

func TestResolveTransitionsPendingComplaint(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResolutionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(conditionalUpdate).
		WithArgs("reviewed", uint64(5), "QJ-20261017-ABCDEF", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO resolutions")).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	res, err := repo.Resolve(context.Background(), resolveParams())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.ID != 11 || res.Outcome != model.OutcomeUpheld || res.ResolvedBy != 2 {
		t.Fatalf("unexpected resolution %+v", res)
	}
	verify(t, mock)
}

func TestResolveNonPendingIsConflictAndWritesNothing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResolutionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(conditionalUpdate).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM complaints")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("escalated"))
	mock.ExpectRollback()

	_, err := repo.Resolve(context.Background(), resolveParams())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	verify(t, mock)
}

func TestResolveMissingComplaintIsNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResolutionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(conditionalUpdate).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM complaints")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	mock.ExpectRollback()

	if _, err := repo.Resolve(context.Background(), resolveParams()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	verify(t, mock)
}

func TestResolveDuplicateResolutionRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResolutionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(conditionalUpdate).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO resolutions")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '5' for key 'resolutions.uq_resolutions_complaint'"})
	mock.ExpectRollback()

	if _, err := repo.Resolve(context.Background(), resolveParams()); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	verify(t, mock)
}

func TestResolveRejectsNonTerminalTarget(t *testing.T) {
	db, mock := newMock(t)
	p := resolveParams()
	p.Target = model.StatusPending
	if _, err := NewResolutionRepo(db).Resolve(context.Background(), p); err == nil {
		t.Fatal("pending is not a valid target")
	}
	verify(t, mock)
}

func TestListLiveAndRevokeIDs(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC")).WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "revoked_at", "created_at"}).
			AddRow(int64(4), int64(1), "h4", now.Add(time.Hour), nil, now).
			AddRow(int64(3), int64(1), "h3", now.Add(time.Hour), nil, now.Add(-time.Minute)))
	live, err := repo.ListLive(context.Background(), 1)
	if err != nil {
		t.Fatalf("list live: %v", err)
	}
	if len(live) != 2 || live[0].ID != 4 || live[1].RevokedAt != nil {
		t.Fatalf("unexpected credentials %+v", live)
	}

	mock.ExpectExec(regexp.QuoteMeta("AND id IN (?,?)")).WithArgs(uint64(1), uint64(3), uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err := repo.RevokeIDs(context.Background(), 1, []uint64{3, 2})
	if err != nil || n != 2 {
		t.Fatalf("revoke ids: n=%d err=%v", n, err)
	}
	if n, err := repo.RevokeIDs(context.Background(), 1, nil); n != 0 || err != nil {
		t.Fatal("empty id list must be a no-op")
	}
	verify(t, mock)
}

func TestValidateRefreshHidesReason(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	past := time.Now().UTC().Add(-time.Hour)
	revokedAt := time.Now().UTC()

	cols := []string{"user_id", "expires_at", "revoked_at"}
	mock.ExpectQuery("FROM refresh_tokens WHERE token_hash").WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery("FROM refresh_tokens WHERE token_hash").WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(1), time.Now().Add(time.Hour), revokedAt))
	mock.ExpectQuery("FROM refresh_tokens WHERE token_hash").WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(1), past, nil))
	for i, name := range []string{"missing", "revoked", "expired"} {
		if _, err := repo.ValidateRefresh(context.Background(), fmt.Sprintf("h%d", i)); !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
	verify(t, mock)
}

func TestRevokeByHashOnlyClaimsLiveToken(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	q := regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL AND expires_at > UTC_TIMESTAMP()")
	mock.ExpectExec(q).WithArgs("h1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("h1").WillReturnResult(sqlmock.NewResult(0, 0))

	for i, want := range []int64{1, 0} {
		n, err := repo.RevokeByHash(context.Background(), "h1")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if n != want {
			t.Fatalf("call %d: expected %d rows, got %d", i, want, n)
		}
	}
	verify(t, mock)
}

func TestUserCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("ana", sqlmock.AnyArg(), "supervisor").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ana' for key 'users.uq_users_username'"})
	_, err := NewUserRepo(db).Create(context.Background(), "  Ana ", "s3cret-pass", model.RoleSupervisor, 4)
	if !errors.Is(err, ErrUsernameExists) {
		t.Fatalf("expected ErrUsernameExists, got %v", err)
	}
	verify(t, mock)
}

func TestIsDuplicateKey(t *testing.T) {
	if !isDuplicateKey(fmt.Errorf("wrap: %w", dupFolio()), "uq_complaints_folio") {
		t.Fatal("wrapped duplicate not detected")
	}
	if isDuplicateKey(dupFolio(), "uq_resolutions_complaint") {
		t.Fatal("duplicate on another key must not match")
	}
	if isDuplicateKey(errors.New("Duplicate entry"), "") {
		t.Fatal("non-mysql errors never match")
	}
}
