package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/config"
)

// AccessClaims travel inside the short-lived access token. The token is
// stateless: verification never touches the datastore.
type AccessClaims struct {
	UserID   uint64 `json:"user_id"`
	Handle   string `json:"handle"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

// RefreshClaims carry only the account id. The token's current value is
// also persisted on the account row so it can be rotated and revoked.
type RefreshClaims struct {
	UserID uint64 `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies the access/refresh token pair. Access
// and refresh tokens are signed with distinct HMAC secrets and distinct
// TTLs (minutes vs days scale).
type TokenService struct {
	cfg *config.Config
}

func NewTokenService(cfg *config.Config) *TokenService {
	return &TokenService{cfg: cfg}
}

func (s *TokenService) IssuePair(account *entity.Account) (accessToken, refreshToken string, err error) {
	now := time.Now()

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, &AccessClaims{
		UserID:   account.ID,
		Handle:   account.Handle,
		Email:    account.Email,
		FullName: account.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   account.Handle,
		},
	})
	accessToken, err = access.SignedString([]byte(s.cfg.AccessTokenSecret))
	if err != nil {
		return "", "", err
	}

	// The jti claim makes every refresh token unique even when two are
	// minted within the same second; rotation's compare-and-swap relies
	// on the old and new values differing.
	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, &RefreshClaims{
		UserID: account.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	})
	refreshToken, err = refresh.SignedString([]byte(s.cfg.RefreshTokenSecret))
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

// VerifyAccess checks signature and expiry only; it is the stateless
// fast path in front of every protected operation.
func (s *TokenService) VerifyAccess(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyRefresh validates a refresh token's signature and expiry and
// returns the embedded account id. Whether the value is still the
// current one for that account is decided by the rotation step, not
// here.
func (s *TokenService) VerifyRefresh(tokenString string) (uint64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.RefreshTokenSecret), nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}

	return claims.UserID, nil
}
