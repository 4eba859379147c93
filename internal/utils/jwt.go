package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA‑256 hashing for refresh tokens
	"encoding/hex"  // hex encoding and decoding functions
	"errors"
	"strconv"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

var (
	// ErrTokenInvalid covers malformed, unsigned, wrongly signed or
	// otherwise unacceptable tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for a correctly signed token whose exp
	// claim is in the past.
	ErrTokenExpired = errors.New("token expired")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	tokenIssuer      = "complaint-desk"
)

// AccessToken represents a signed JWT access token along with its expiry.
// Access tokens are short‑lived and sent in the Authorization header when
// calling protected endpoints.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// RefreshToken represents a long‑lived token used to obtain new access
// tokens.  Raw is returned to the client; the database only keeps
// HashRefreshRaw(Raw).
type RefreshToken struct {
	Raw string    // raw token string returned to the client
	Exp time.Time // UTC expiration time
}

// AccessClaims are embedded in access tokens.  Verifying them needs no I/O.
type AccessClaims struct {
	UserID   uint64 `json:"uid"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

// refreshClaims carry only the user id (sub) and a random jti so that two
// tokens issued in the same second never collide.
type refreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies both token classes.  Access and refresh
// tokens use distinct HMAC keys so leaking one cannot forge the other.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenIssuer validates the key material and returns an issuer.  Both
// secrets must be non-empty and different from each other.
func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token issuer: secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("token issuer: access and refresh secrets must differ")
	}
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// NewAccessToken builds and signs an HS256 access token for a user.
func (t *TokenIssuer) NewAccessToken(userID uint64, username, role string) (AccessToken, error) {
	now := t.now()
	exp := now.Add(t.accessTTL)
	claims := AccessClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		Type:     tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.accessSecret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// NewRefreshToken builds and signs an HS256 refresh token carrying only
// the user id.  The caller persists HashRefreshRaw(Raw).
func (t *TokenIssuer) NewRefreshToken(userID uint64) (RefreshToken, error) {
	jti, err := randomHex(16)
	if err != nil {
		return RefreshToken{}, err
	}
	now := t.now()
	exp := now.Add(t.refreshTTL)
	claims := refreshClaims{
		Type: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatUint(userID, 10),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.refreshSecret)
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: signed, Exp: exp}, nil
}

// VerifyAccess checks signature and expiry of an access token.  It is
// pure: no storage is consulted.
func (t *TokenIssuer) VerifyAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := t.parse(raw, claims, t.accessSecret); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeAccess || claims.UserID == 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyRefresh checks signature and expiry of a refresh token and
// returns the embedded user id.  It does NOT check revocation; callers
// must confirm a live credential exists for HashRefreshRaw(raw).
func (t *TokenIssuer) VerifyRefresh(raw string) (uint64, error) {
	claims := &refreshClaims{}
	if err := t.parse(raw, claims, t.refreshSecret); err != nil {
		return 0, err
	}
	if claims.Type != tokenTypeRefresh {
		return 0, ErrTokenInvalid
	}
	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || uid == 0 {
		return 0, ErrTokenInvalid
	}
	return uid, nil
}

func (t *TokenIssuer) parse(raw string, claims jwt.Claims, secret []byte) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}

// HashRefreshRaw returns the SHA‑256 hash of the raw refresh token as a hex
// string.  Storing only the hash prevents stolen database rows from being
// replayed as tokens.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
