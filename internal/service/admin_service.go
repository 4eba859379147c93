package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/qjdesk/complaint-desk/internal/apperr"
	"github.com/qjdesk/complaint-desk/internal/model"
	"github.com/qjdesk/complaint-desk/internal/repository"
	"github.com/qjdesk/complaint-desk/internal/utils"
)

// AdminService changes user roles and the active flag.
type AdminService struct {
	users UserStore
	creds CredentialStore
	log   *slog.Logger
}

func NewAdminService(users UserStore, creds CredentialStore, log *slog.Logger) *AdminService {
	return &AdminService{users: users, creds: creds, log: log}
}

// AccessChange lists the fields to update; nil means unchanged.
type AccessChange struct {
	Role   *string
	Active *bool
}

// UpdateAccess applies change to the target user.  Deactivating a user
// or changing their role revokes all of their sessions, so the next
// refresh fails and a new login picks up the new role.  Admins cannot
// deactivate or demote themselves.
func (s *AdminService) UpdateAccess(ctx context.Context, actorID, targetID uint64, change AccessChange) (model.User, error) {
	if change.Role == nil && change.Active == nil {
		return model.User{}, apperr.BadRequest("role or is_active is required")
	}
	var role *model.Role
	if change.Role != nil {
		r := model.Role(utils.Fold(*change.Role))
		if !r.Valid() {
			return model.User{}, apperr.Validation(map[string]string{"role": "must be one of: admin, supervisor, standard"})
		}
		role = &r
	}
	if actorID == targetID && ((role != nil && *role != model.RoleAdmin) || (change.Active != nil && !*change.Active)) {
		return model.User{}, apperr.BadRequest("cannot remove your own admin access")
	}

	before, err := s.users.GetByID(ctx, targetID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return model.User{}, apperr.Internal("admin.users.load", err)
	}
	after, err := s.users.UpdateAccess(ctx, targetID, role, change.Active)
	if err != nil {
		return model.User{}, apperr.Internal("admin.users.update", err)
	}

	if (before.IsActive && !after.IsActive) || before.Role != after.Role {
		n, err := s.creds.RevokeAllForUser(ctx, targetID)
		if err != nil {
			return model.User{}, apperr.Internal("admin.users.revoke_sessions", err)
		}
		s.log.Info("sessions revoked after access change", "event", "sessions.revoked", "user_id", targetID, "revoked", n)
	}
	s.log.Info("user access updated", "event", "users.access_changed", "actor_id", actorID, "user_id", targetID,
		"role", after.Role, "active", after.IsActive)
	return after, nil
}
