package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/qjdesk/complaint-desk/internal/apperr"
	"github.com/qjdesk/complaint-desk/internal/model"
	"github.com/qjdesk/complaint-desk/internal/service"
)

// Authenticator is implemented by service.AuthService.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (service.LoginResult, error)
	Refresh(ctx context.Context, raw string) (service.RefreshResult, error)
	Logout(ctx context.Context, userID uint64) error
	Me(ctx context.Context, userID uint64) (service.Profile, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	responder
	auth Authenticator
	cap  int
}

// NewAuthHandler builds the auth endpoints.  sessionCap is only reported
// by Me.
func NewAuthHandler(auth Authenticator, sessionCap int, o Options) *AuthHandler {
	return &AuthHandler{responder: newResponder(o), auth: auth, cap: sessionCap}
}

// ----- DTOs -----

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID          uint64     `json:"id"`
	Username    string     `json:"username"`
	Role        model.Role `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func toUserPart(u model.User) userPart {
	return userPart{ID: u.ID, Username: u.Username, Role: u.Role, IsActive: u.IsActive, LastLoginAt: u.LastLoginAt}
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

type refreshResp struct {
	Access  tokenPart  `json:"access"`
	Refresh *tokenPart `json:"refresh,omitempty"`
}

type meResp struct {
	User         userPart `json:"user"`
	LiveSessions int      `json:"live_sessions"`
	SessionCap   int      `json:"session_cap"`
	Capabilities []string `json:"capabilities"`
}

// Login: verify credentials and return a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return h.fail(c, bindError(err))
	}
	ctx, cancel := h.reqCtx(c)
	defer cancel()

	res, err := h.auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, authResp{
		User:    toUserPart(res.User),
		Access:  tokenPart{Token: res.Access.Token, Expires: res.Access.Exp},
		Refresh: tokenPart{Token: res.Refresh.Raw, Expires: res.Refresh.Exp},
	})
}

// Refresh: exchange a refresh token for a new access token.  The refresh
// token is rotated only when rotation is enabled.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return h.fail(c, apperr.Validation(map[string]string{"refresh_token": "is required"}))
	}
	ctx, cancel := h.reqCtx(c)
	defer cancel()

	res, err := h.auth.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return h.fail(c, err)
	}
	out := refreshResp{Access: tokenPart{Token: res.Access.Token, Expires: res.Access.Exp}}
	if res.Refresh != nil {
		out.Refresh = &tokenPart{Token: res.Refresh.Raw, Expires: res.Refresh.Exp}
	}
	return c.JSON(http.StatusOK, out)
}

// Logout: revoke every refresh credential of the caller (protected).
func (h *AuthHandler) Logout(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.reqCtx(c)
	defer cancel()

	if err := h.auth.Logout(ctx, uid); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me reports the caller's identity and session usage.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.reqCtx(c)
	defer cancel()

	p, err := h.auth.Me(ctx, uid)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, meResp{
		User:         toUserPart(p.User),
		LiveSessions: p.LiveSessions,
		SessionCap:   h.cap,
		Capabilities: p.Capabilities,
	})
}
