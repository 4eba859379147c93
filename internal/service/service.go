// Package service holds the workflows behind the HTTP handlers: login and
// session management, complaint intake, resolution and user access
// administration.  Services depend on the narrow interfaces below so
// tests can swap the MySQL repositories for in-memory fakes.  Every error
// a service returns is an *apperr.Error.
package service

import (
	"context"
	"time"

	"github.com/qjdesk/complaint-desk/internal/model"
	"github.com/qjdesk/complaint-desk/internal/repository"
)

// UserStore is the part of repository.UserRepo the services use.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	TouchLastLogin(ctx context.Context, id uint64, at time.Time) error
	UpdateAccess(ctx context.Context, id uint64, role *model.Role, active *bool) (model.User, error)
}

// SessionStore lists and prunes live refresh credentials.
type SessionStore interface {
	ListLive(ctx context.Context, userID uint64) ([]model.RefreshCredential, error)
	RevokeIDs(ctx context.Context, userID uint64, ids []uint64) (int64, error)
}

// CredentialStore is the part of repository.TokenRepo the services use.
type CredentialStore interface {
	SessionStore
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) (int64, error)
	RevokeAllForUser(ctx context.Context, userID uint64) (int64, error)
	CountLive(ctx context.Context, userID uint64) (int, error)
}

// ComplaintStore is implemented by repository.ComplaintRepo.
type ComplaintStore interface {
	CreateWithDetail(ctx context.Context, c *model.Complaint, d model.Detail) error
	List(ctx context.Context, f repository.ComplaintFilter) ([]model.Complaint, int, error)
	GetByID(ctx context.Context, id uint64) (model.ComplaintView, error)
}

// ResolutionStore is implemented by repository.ResolutionRepo.
type ResolutionStore interface {
	Resolve(ctx context.Context, p repository.ResolveParams) (model.Resolution, error)
}

// EventPublisher is implemented by queue.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// NopPublisher drops every event.  Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

var (
	_ UserStore       = (*repository.UserRepo)(nil)
	_ CredentialStore = (*repository.TokenRepo)(nil)
	_ ComplaintStore  = (*repository.ComplaintRepo)(nil)
	_ ResolutionStore = (*repository.ResolutionRepo)(nil)
)
