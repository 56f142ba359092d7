package middleware

import (
	"context"
	"net/http"
	"strings"

	dto "github.com/vibast-solutions/ms-go-accounts/app/dto/http"
	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// AccessCookie is the cookie carrying the access token. When present it
// takes precedence over the Authorization header.
const AccessCookie = "accessToken"

// ContextAccount is the echo context key holding the authenticated
// account, secrets stripped.
const ContextAccount = "account"

type accessTokenVerifier interface {
	VerifyAccess(tokenString string) (*service.AccessClaims, error)
}

type accountFinder interface {
	FindByID(ctx context.Context, id uint64) (*entity.Account, error)
}

type AuthMiddleware struct {
	tokens   accessTokenVerifier
	accounts accountFinder
}

func NewAuthMiddleware(tokens accessTokenVerifier, accounts accountFinder) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, accounts: accounts}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString := extractToken(c)
		if tokenString == "" {
			logrus.Debug("Missing access token")
			return c.JSON(http.StatusUnauthorized, dto.Fail(http.StatusUnauthorized, "Unauthorized request"))
		}

		claims, err := m.tokens.VerifyAccess(tokenString)
		if err != nil {
			logrus.Debug("Invalid or expired access token")
			return c.JSON(http.StatusUnauthorized, dto.Fail(http.StatusUnauthorized, "Invalid access token"))
		}

		account, err := m.accounts.FindByID(c.Request().Context(), claims.UserID)
		if err != nil {
			logrus.WithError(err).Error("Failed to load account for access token")
			return c.JSON(http.StatusInternalServerError, dto.Fail(http.StatusInternalServerError, "Internal server error"))
		}
		if account == nil {
			logrus.WithField("user_id", claims.UserID).Debug("Access token for deleted account")
			return c.JSON(http.StatusUnauthorized, dto.Fail(http.StatusUnauthorized, "Invalid access token"))
		}

		c.Set(ContextAccount, account.Sanitized())
		return next(c)
	}
}

// Account returns the authenticated account stored by RequireAuth, or
// nil when the route is reached without it.
func Account(c echo.Context) *entity.Account {
	account, _ := c.Get(ContextAccount).(*entity.Account)
	return account
}

func extractToken(c echo.Context) string {
	if cookie, err := c.Cookie(AccessCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := c.Request().Header.Get("Authorization")
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
