package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/qjdesk/complaint-desk/internal/lock"
	"github.com/qjdesk/complaint-desk/internal/model"
	"github.com/qjdesk/complaint-desk/internal/repository"
	"github.com/qjdesk/complaint-desk/internal/utils"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeUsers struct {
	mu    sync.Mutex
	users map[uint64]model.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{users: map[uint64]model.User{}} }

func (f *fakeUsers) add(t *testing.T, id uint64, name, password string, role model.Role, active bool) model.User {
	t.Helper()
	hash, err := utils.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := model.User{ID: id, Username: name, PasswordHash: hash, Role: role, IsActive: active}
	f.mu.Lock()
	f.users[id] = u
	f.mu.Unlock()
	return u
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) TouchLastLogin(_ context.Context, id uint64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.LastLoginAt = &at
	f.users[id] = u
	return nil
}

func (f *fakeUsers) UpdateAccess(_ context.Context, id uint64, role *model.Role, active *bool) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	if role != nil {
		u.Role = *role
	}
	if active != nil {
		u.IsActive = *active
	}
	f.users[id] = u
	return u, nil
}

// fakeCreds keeps refresh credentials in memory with the same liveness
// rules as the MySQL repository.
type fakeCreds struct {
	mu     sync.Mutex
	nextID uint64
	rows   []*model.RefreshCredential
}

func (f *fakeCreds) StoreRefresh(_ context.Context, userID uint64, hash string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.rows = append(f.rows, &model.RefreshCredential{
		ID: f.nextID, UserID: userID, TokenHash: hash, ExpiresAt: exp,
		CreatedAt: time.Now().Add(time.Duration(f.nextID) * time.Millisecond),
	})
	return nil
}

func (f *fakeCreds) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.TokenHash == hash && r.Live(time.Now()) {
			return r.UserID, nil
		}
	}
	return 0, repository.ErrNotFound
}

func (f *fakeCreds) revokeWhere(match func(*model.RefreshCredential) bool) int64 {
	now := time.Now()
	var n int64
	for _, r := range f.rows {
		if r.RevokedAt == nil && match(r) {
			r.RevokedAt = &now
			n++
		}
	}
	return n
}

func (f *fakeCreds) RevokeByHash(_ context.Context, hash string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	return f.revokeWhere(func(r *model.RefreshCredential) bool { return r.TokenHash == hash && r.Live(now) }), nil
}

func (f *fakeCreds) RevokeAllForUser(_ context.Context, userID uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokeWhere(func(r *model.RefreshCredential) bool { return r.UserID == userID }), nil
}

func (f *fakeCreds) ListLive(_ context.Context, userID uint64) ([]model.RefreshCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.RefreshCredential
	for _, r := range f.rows {
		if r.UserID == userID && r.Live(time.Now()) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeCreds) RevokeIDs(_ context.Context, userID uint64, ids []uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := map[uint64]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return f.revokeWhere(func(r *model.RefreshCredential) bool { return r.UserID == userID && set[r.ID] }), nil
}

func (f *fakeCreds) CountLive(ctx context.Context, userID uint64) (int, error) {
	live, _ := f.ListLive(ctx, userID)
	return len(live), nil
}

func (f *fakeCreds) byID(id uint64) model.RefreshCredential {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			return *r
		}
	}
	return model.RefreshCredential{}
}

type fakeComplaints struct {
	mu      sync.Mutex
	created []model.Complaint
	details []model.Detail
	err     error
}

func (f *fakeComplaints) CreateWithDetail(_ context.Context, c *model.Complaint, d model.Detail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	c.ID = uint64(len(f.created) + 1)
	c.Folio, _ = utils.NewFolio(time.Now())
	c.Status = model.StatusPending
	c.CreatedAt = time.Now().UTC()
	f.created = append(f.created, *c)
	f.details = append(f.details, d)
	return nil
}

func (f *fakeComplaints) List(_ context.Context, filter repository.ComplaintFilter) ([]model.Complaint, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Complaint
	for _, c := range f.created {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (f *fakeComplaints) GetByID(_ context.Context, id uint64) (model.ComplaintView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == 0 || int(id) > len(f.created) {
		return model.ComplaintView{}, repository.ErrNotFound
	}
	return model.ComplaintView{Complaint: f.created[id-1], Detail: f.details[id-1]}, nil
}

// fakeResolutions performs the pending check and the status change as
// one step, like the conditional UPDATE of the real repository.
type fakeResolutions struct {
	mu          sync.Mutex
	status      map[uint64]model.Status
	folios      map[uint64]string
	resolutions map[uint64]model.Resolution
	last        repository.ResolveParams
}

func newFakeResolutions() *fakeResolutions {
	return &fakeResolutions{
		status:      map[uint64]model.Status{},
		folios:      map[uint64]string{},
		resolutions: map[uint64]model.Resolution{},
	}
}

func (f *fakeResolutions) Resolve(_ context.Context, p repository.ResolveParams) (model.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = p
	st, ok := f.status[p.ComplaintID]
	if !ok || f.folios[p.ComplaintID] != p.Folio {
		return model.Resolution{}, repository.ErrNotFound
	}
	if st != model.StatusPending {
		return model.Resolution{}, repository.ErrConflict
	}
	f.status[p.ComplaintID] = p.Target
	r := model.Resolution{
		ID: uint64(len(f.resolutions) + 1), ComplaintID: p.ComplaintID, Narrative: p.Narrative,
		Outcome: p.Outcome, ResolvedBy: p.ResolvedBy, ResolvedAt: time.Now().UTC(),
	}
	f.resolutions[p.ComplaintID] = r
	return r, nil
}

type publishedEvent struct {
	key     string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, key string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, publishedEvent{key: key, payload: payload})
	return nil
}

var errBroker = errors.New("broker unreachable")

func newLocks() *lock.Manager { return lock.NewManager(time.Millisecond) }
