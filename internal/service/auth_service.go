package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/qjdesk/complaint-desk/internal/apperr"
	"github.com/qjdesk/complaint-desk/internal/authz"
	"github.com/qjdesk/complaint-desk/internal/model"
	"github.com/qjdesk/complaint-desk/internal/repository"
	"github.com/qjdesk/complaint-desk/internal/utils"
)

// Client facing messages.  Login never says whether the username exists.
const (
	msgInvalidCredentials = "invalid credentials"
	msgInvalidRefresh     = "invalid refresh token"
	msgExpiredRefresh     = "refresh token expired"
)

// AuthService implements login, refresh and logout on top of the token
// issuer and the credential store.
type AuthService struct {
	users  UserStore
	creds  CredentialStore
	tokens *utils.TokenIssuer
	guard  *SessionGuard
	rotate bool
	// bcryptCost sizes the throwaway comparison for unknown usernames.
	bcryptCost int
	log        *slog.Logger
	now        func() time.Time
}

func NewAuthService(users UserStore, creds CredentialStore, tokens *utils.TokenIssuer, guard *SessionGuard, rotate bool, bcryptCost int, log *slog.Logger) *AuthService {
	return &AuthService{users: users, creds: creds, tokens: tokens, guard: guard, rotate: rotate, bcryptCost: bcryptCost, log: log, now: time.Now}
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User    model.User
	Access  utils.AccessToken
	Refresh utils.RefreshToken
}

// RefreshResult carries a new access token and, when rotation is
// enabled, the replacement refresh token.
type RefreshResult struct {
	Access  utils.AccessToken
	Refresh *utils.RefreshToken
}

// Login checks the password, issues an access/refresh pair, records the
// refresh credential and prunes the user's sessions down to the cap.
// Unknown user, wrong password and deactivated account are the same
// 401 to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = repository.NormalizeUsername(username)
	if username == "" || password == "" {
		return LoginResult{}, apperr.Validation(fieldMsgs{
			"username": requiredIfEmpty(username),
			"password": requiredIfEmpty(password),
		}.prune())
	}

	u, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		utils.BurnPasswordCheck(password, s.bcryptCost)
		s.log.Info("login rejected", "event", "authn.login_failed", "username", username)
		return LoginResult{}, apperr.Unauthenticated(msgInvalidCredentials)
	}
	if err != nil {
		return LoginResult{}, apperr.Internal("auth.login.lookup", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) || !u.IsActive {
		s.log.Info("login rejected", "event", "authn.login_failed", "user_id", u.ID)
		return LoginResult{}, apperr.Unauthenticated(msgInvalidCredentials)
	}

	access, err := s.tokens.NewAccessToken(u.ID, u.Username, string(u.Role))
	if err != nil {
		return LoginResult{}, apperr.Internal("auth.login.issue_access", err)
	}
	refresh, err := s.tokens.NewRefreshToken(u.ID)
	if err != nil {
		return LoginResult{}, apperr.Internal("auth.login.issue_refresh", err)
	}
	if err := s.creds.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return LoginResult{}, apperr.Internal("auth.login.store_refresh", err)
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.log.Warn("touch last login failed", "op", "auth.login.touch", "user_id", u.ID, "err", err)
	} else {
		u.LastLoginAt = &now
	}
	if s.guard != nil {
		if _, err := s.guard.Enforce(ctx, u.ID); err != nil {
			s.log.Warn("session guard failed after login", "op", "auth.login.guard", "user_id", u.ID, "err", err)
		}
	}
	s.log.Info("login succeeded", "event", "authn.login", "user_id", u.ID, "role", u.Role)
	return LoginResult{User: u, Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a refresh token for a new access token.  The token
// must verify cryptographically and match a live credential of an active
// user; which of those checks failed is not revealed, except that a
// cryptographically expired token gets its own message.
func (s *AuthService) Refresh(ctx context.Context, raw string) (RefreshResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RefreshResult{}, apperr.Validation(map[string]string{"refresh_token": "is required"})
	}
	claimedID, err := s.tokens.VerifyRefresh(raw)
	if errors.Is(err, utils.ErrTokenExpired) {
		return RefreshResult{}, apperr.Unauthenticated(msgExpiredRefresh)
	}
	if err != nil {
		return RefreshResult{}, apperr.Unauthenticated(msgInvalidRefresh)
	}

	hash := utils.HashRefreshRaw(raw)
	userID, err := s.creds.ValidateRefresh(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && userID != claimedID) {
		s.log.Info("refresh rejected", "event", "authn.refresh_denied", "user_id", claimedID)
		return RefreshResult{}, apperr.Unauthenticated(msgInvalidRefresh)
	}
	if err != nil {
		return RefreshResult{}, apperr.Internal("auth.refresh.validate", err)
	}

	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !u.IsActive) {
		return RefreshResult{}, apperr.Unauthenticated(msgInvalidRefresh)
	}
	if err != nil {
		return RefreshResult{}, apperr.Internal("auth.refresh.load_user", err)
	}

	access, err := s.tokens.NewAccessToken(u.ID, u.Username, string(u.Role))
	if err != nil {
		return RefreshResult{}, apperr.Internal("auth.refresh.issue_access", err)
	}
	out := RefreshResult{Access: access}
	if !s.rotate {
		return out, nil
	}

	// The old credential is claimed with a conditional revoke: of two
	// concurrent rotations of one token only the first gets a row back.
	err = s.guard.WithSessions(ctx, u.ID, func() error {
		n, err := s.creds.RevokeByHash(ctx, hash)
		if err != nil {
			return apperr.Internal("auth.refresh.revoke_old", err)
		}
		if n == 0 {
			s.log.Info("refresh rejected", "event", "authn.refresh_denied", "user_id", u.ID, "reason", "already_rotated")
			return apperr.Unauthenticated(msgInvalidRefresh)
		}
		next, err := s.tokens.NewRefreshToken(u.ID)
		if err != nil {
			return apperr.Internal("auth.refresh.issue_refresh", err)
		}
		if err := s.creds.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(next.Raw), next.Exp); err != nil {
			return apperr.Internal("auth.refresh.store_refresh", err)
		}
		out.Refresh = &next
		return nil
	})
	if err != nil {
		return RefreshResult{}, lockErr("auth.refresh.lock", err)
	}
	return out, nil
}

// Logout revokes every live refresh credential of the user, ending all of
// their sessions.
func (s *AuthService) Logout(ctx context.Context, userID uint64) error {
	var n int64
	err := s.guard.WithSessions(ctx, userID, func() error {
		var err error
		n, err = s.creds.RevokeAllForUser(ctx, userID)
		if err != nil {
			return apperr.Internal("auth.logout", err)
		}
		return nil
	})
	if err != nil {
		return lockErr("auth.logout.lock", err)
	}
	s.log.Info("logout", "event", "authn.logout", "user_id", userID, "revoked", n)
	return nil
}

// Profile is what /v1/me reports about the caller.
type Profile struct {
	User         model.User
	LiveSessions int
	Capabilities []string
}

// Me loads the caller and counts their live sessions.
func (s *AuthService) Me(ctx context.Context, userID uint64) (Profile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return Profile{}, apperr.Unauthenticated("authentication required")
	}
	if err != nil {
		return Profile{}, apperr.Internal("auth.me.load_user", err)
	}
	n, err := s.creds.CountLive(ctx, userID)
	if err != nil {
		return Profile{}, apperr.Internal("auth.me.count_sessions", err)
	}
	caps := authz.Capabilities(u.Role)
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, string(c))
	}
	return Profile{User: u, LiveSessions: n, Capabilities: names}, nil
}

// lockErr passes service errors through and wraps lock failures.
func lockErr(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(op, err)
}

type fieldMsgs map[string]string

func (m fieldMsgs) prune() map[string]string {
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	return m
}

func requiredIfEmpty(s string) string {
	if s == "" {
		return "is required"
	}
	return ""
}
