package controller

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	httpdto "github.com/vibast-solutions/ms-go-accounts/app/dto/http"
	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/middleware"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const refreshCookie = "refreshToken"

type UserController struct {
	accounts *service.AccountService
	cfg      *config.Config
}

func NewUserController(accounts *service.AccountService, cfg *config.Config) *UserController {
	return &UserController{accounts: accounts, cfg: cfg}
}

func (c *UserController) Register(ctx echo.Context) error {
	var req httpdto.RegisterRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind register request")
		return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Invalid request body"))
	}

	avatarPath, avatarCleanup, err := c.saveUpload(ctx, "avatar")
	if err != nil {
		logrus.WithError(err).Error("Failed to stage avatar upload")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}
	defer avatarCleanup()
	if avatarPath == "" {
		logrus.Debug("Register request without avatar file")
		return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Avatar file is required"))
	}

	coverPath, coverCleanup, err := c.saveUpload(ctx, "coverImage")
	if err != nil {
		logrus.WithError(err).Error("Failed to stage cover image upload")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}
	defer coverCleanup()

	logrus.WithField("handle", req.Handle).Info("Register request received")
	account, err := c.accounts.Register(ctx.Request().Context(), service.RegisterInput{
		FullName:       req.FullName,
		Email:          req.Email,
		Handle:         req.Handle,
		Password:       req.Password,
		AvatarPath:     avatarPath,
		CoverImagePath: coverPath,
	})
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			logrus.WithField("handle", req.Handle).Debug("Register validation failed")
			return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "All fields are required"))
		}
		if errors.Is(err, service.ErrAvatarRequired) {
			logrus.WithField("handle", req.Handle).Warn("Register failed: avatar upload failed")
			return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Avatar file is required"))
		}
		if errors.Is(err, service.ErrAccountExists) {
			logrus.WithField("handle", req.Handle).Warn("Register failed: account already exists")
			return ctx.JSON(http.StatusConflict, httpdto.Fail(http.StatusConflict, "Account with this email or handle already exists"))
		}
		logrus.WithError(err).WithField("handle", req.Handle).Error("Register failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}

	logrus.WithFields(logrus.Fields{
		"user_id": account.ID,
		"handle":  account.Handle,
	}).Info("Account registered")

	return ctx.JSON(http.StatusCreated, httpdto.OK(http.StatusCreated, httpdto.NewAccountResponse(account), "Account registered successfully"))
}

func (c *UserController) Login(ctx echo.Context) error {
	var req httpdto.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Invalid request body"))
	}

	identifier := req.Handle
	if identifier == "" {
		identifier = req.Email
	}

	logrus.WithField("identifier", identifier).Info("Login request received")
	result, err := c.accounts.Login(ctx.Request().Context(), identifier, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			logrus.Debug("Login validation failed")
			return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Handle or email and password are required"))
		}
		if errors.Is(err, service.ErrAccountNotFound) {
			logrus.WithField("identifier", identifier).Warn("Login failed: account not found")
			return ctx.JSON(http.StatusNotFound, httpdto.Fail(http.StatusNotFound, "Account does not exist"))
		}
		if errors.Is(err, service.ErrWrongPassword) {
			logrus.WithField("identifier", identifier).Warn("Login failed: invalid credentials")
			return ctx.JSON(http.StatusUnauthorized, httpdto.Fail(http.StatusUnauthorized, "Invalid credentials"))
		}
		logrus.WithError(err).WithField("identifier", identifier).Error("Login failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}

	c.setSessionCookies(ctx, result.AccessToken, result.RefreshToken)

	logrus.WithField("user_id", result.Account.ID).Info("Login successful")
	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, httpdto.LoginResponse{
		Account:      httpdto.NewAccountResponse(result.Account),
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}, "Logged in successfully"))
}

func (c *UserController) Logout(ctx echo.Context) error {
	account := middleware.Account(ctx)
	if account == nil {
		logrus.Warn("Logout failed: missing account in context")
		return ctx.JSON(http.StatusUnauthorized, httpdto.Fail(http.StatusUnauthorized, "Unauthorized request"))
	}

	logrus.WithField("user_id", account.ID).Info("Logout request received")
	if err := c.accounts.Logout(ctx.Request().Context(), account.ID); err != nil {
		logrus.WithError(err).WithField("user_id", account.ID).Error("Logout failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}

	c.clearSessionCookies(ctx)

	logrus.WithField("user_id", account.ID).Info("Logout successful")
	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, nil, "Logged out successfully"))
}

// RefreshToken exchanges the refresh token from the cookie, or from the
// request body when no cookie is present, for a fresh pair.
func (c *UserController) RefreshToken(ctx echo.Context) error {
	presented := ""
	if cookie, err := ctx.Cookie(refreshCookie); err == nil {
		presented = cookie.Value
	}
	if presented == "" {
		var req httpdto.RefreshTokenRequest
		if err := ctx.Bind(&req); err == nil {
			presented = req.RefreshToken
		}
	}

	logrus.Info("Refresh token request received")
	result, err := c.accounts.Rotate(ctx.Request().Context(), presented)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			logrus.Debug("Refresh failed: no token presented")
			return ctx.JSON(http.StatusUnauthorized, httpdto.Fail(http.StatusUnauthorized, "Unauthorized request"))
		}
		if errors.Is(err, service.ErrInvalidToken) {
			logrus.Warn("Refresh failed: invalid refresh token")
			return ctx.JSON(http.StatusUnauthorized, httpdto.Fail(http.StatusUnauthorized, "Invalid refresh token"))
		}
		if errors.Is(err, service.ErrTokenReused) {
			logrus.Warn("Refresh failed: refresh token is expired or used")
			return ctx.JSON(http.StatusUnauthorized, httpdto.Fail(http.StatusUnauthorized, "Refresh token is expired or used"))
		}
		logrus.WithError(err).Error("Refresh failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}

	c.setSessionCookies(ctx, result.AccessToken, result.RefreshToken)

	logrus.WithField("user_id", result.Account.ID).Info("Refresh token successful")
	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, httpdto.RefreshTokenResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}, "Access token refreshed"))
}

func (c *UserController) ChangePassword(ctx echo.Context) error {
	var req httpdto.ChangePasswordRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind change password request")
		return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Invalid request body"))
	}

	account := middleware.Account(ctx)
	if account == nil {
		logrus.Warn("Change password failed: missing account in context")
		return ctx.JSON(http.StatusUnauthorized, httpdto.Fail(http.StatusUnauthorized, "Unauthorized request"))
	}

	logrus.WithField("user_id", account.ID).Info("Change password request received")
	err := c.accounts.ChangePassword(ctx.Request().Context(), account.ID, req.OldPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			logrus.WithField("user_id", account.ID).Debug("Change password validation failed")
			return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Old and new password are required"))
		}
		if errors.Is(err, service.ErrWrongPassword) {
			logrus.WithField("user_id", account.ID).Warn("Change password failed: old password mismatch")
			return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Invalid old password"))
		}
		logrus.WithError(err).WithField("user_id", account.ID).Error("Change password failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}

	logrus.WithField("user_id", account.ID).Info("Password changed")
	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, nil, "Password changed successfully"))
}

func (c *UserController) GetProfile(ctx echo.Context) error {
	account := middleware.Account(ctx)
	if account == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.Fail(http.StatusUnauthorized, "Unauthorized request"))
	}
	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, httpdto.NewAccountResponse(account), "Current account fetched successfully"))
}

func (c *UserController) UpdateProfile(ctx echo.Context) error {
	var req httpdto.UpdateProfileRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind update profile request")
		return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Invalid request body"))
	}

	account := middleware.Account(ctx)
	if account == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.Fail(http.StatusUnauthorized, "Unauthorized request"))
	}

	updated, err := c.accounts.UpdateProfile(ctx.Request().Context(), account.ID, req.FullName, req.Email)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			logrus.WithField("user_id", account.ID).Debug("Update profile validation failed")
			return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Full name and email are required"))
		}
		if errors.Is(err, service.ErrAccountExists) {
			logrus.WithField("user_id", account.ID).Warn("Update profile failed: email already taken")
			return ctx.JSON(http.StatusConflict, httpdto.Fail(http.StatusConflict, "Email is already taken"))
		}
		logrus.WithError(err).WithField("user_id", account.ID).Error("Update profile failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}

	logrus.WithField("user_id", account.ID).Info("Profile updated")
	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, httpdto.NewAccountResponse(updated), "Account details updated successfully"))
}

func (c *UserController) UpdateAvatar(ctx echo.Context) error {
	return c.updateImage(ctx, "avatar", "Avatar updated successfully", c.accounts.UpdateAvatar)
}

func (c *UserController) UpdateCoverImage(ctx echo.Context) error {
	return c.updateImage(ctx, "coverImage", "Cover image updated successfully", c.accounts.UpdateCoverImage)
}

func (c *UserController) ChannelProfile(ctx echo.Context) error {
	account := middleware.Account(ctx)
	if account == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.Fail(http.StatusUnauthorized, "Unauthorized request"))
	}

	handle := ctx.Param("handle")
	profile, err := c.accounts.ChannelProfile(ctx.Request().Context(), handle, account.ID)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Handle is required"))
		}
		if errors.Is(err, service.ErrAccountNotFound) {
			logrus.WithField("handle", handle).Debug("Channel profile not found")
			return ctx.JSON(http.StatusNotFound, httpdto.Fail(http.StatusNotFound, "Channel does not exist"))
		}
		logrus.WithError(err).WithField("handle", handle).Error("Channel profile failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}

	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, profile, "Channel profile fetched successfully"))
}

func (c *UserController) WatchHistory(ctx echo.Context) error {
	account := middleware.Account(ctx)
	if account == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.Fail(http.StatusUnauthorized, "Unauthorized request"))
	}

	history, err := c.accounts.WatchHistory(ctx.Request().Context(), account.ID)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			return ctx.JSON(http.StatusNotFound, httpdto.Fail(http.StatusNotFound, "Account does not exist"))
		}
		logrus.WithError(err).WithField("user_id", account.ID).Error("Watch history failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}

	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, history, "Watch history fetched successfully"))
}

func (c *UserController) Subscribe(ctx echo.Context) error {
	account := middleware.Account(ctx)
	if account == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.Fail(http.StatusUnauthorized, "Unauthorized request"))
	}

	handle := ctx.Param("handle")
	err := c.accounts.Subscribe(ctx.Request().Context(), account.ID, handle)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			logrus.WithField("user_id", account.ID).Debug("Subscribe rejected: cannot subscribe to own channel")
			return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Cannot subscribe to your own channel"))
		}
		if errors.Is(err, service.ErrAccountNotFound) {
			return ctx.JSON(http.StatusNotFound, httpdto.Fail(http.StatusNotFound, "Channel does not exist"))
		}
		if errors.Is(err, service.ErrSubscriptionExists) {
			return ctx.JSON(http.StatusConflict, httpdto.Fail(http.StatusConflict, "Already subscribed to this channel"))
		}
		logrus.WithError(err).WithField("user_id", account.ID).Error("Subscribe failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}

	logrus.WithFields(logrus.Fields{
		"user_id": account.ID,
		"channel": handle,
	}).Info("Subscribed to channel")
	return ctx.JSON(http.StatusCreated, httpdto.OK(http.StatusCreated, nil, "Subscribed successfully"))
}

func (c *UserController) Unsubscribe(ctx echo.Context) error {
	account := middleware.Account(ctx)
	if account == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.Fail(http.StatusUnauthorized, "Unauthorized request"))
	}

	handle := ctx.Param("handle")
	err := c.accounts.Unsubscribe(ctx.Request().Context(), account.ID, handle)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			return ctx.JSON(http.StatusNotFound, httpdto.Fail(http.StatusNotFound, "Channel does not exist"))
		}
		if errors.Is(err, service.ErrSubscriptionNotFound) {
			return ctx.JSON(http.StatusNotFound, httpdto.Fail(http.StatusNotFound, "Not subscribed to this channel"))
		}
		logrus.WithError(err).WithField("user_id", account.ID).Error("Unsubscribe failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}

	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, nil, "Unsubscribed successfully"))
}

func (c *UserController) AddToWatchHistory(ctx echo.Context) error {
	account := middleware.Account(ctx)
	if account == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.Fail(http.StatusUnauthorized, "Unauthorized request"))
	}

	videoID, err := strconv.ParseUint(ctx.Param("videoId"), 10, 64)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Invalid video id"))
	}

	if err := c.accounts.AddToWatchHistory(ctx.Request().Context(), account.ID, videoID); err != nil {
		if errors.Is(err, service.ErrVideoNotFound) {
			return ctx.JSON(http.StatusNotFound, httpdto.Fail(http.StatusNotFound, "Video does not exist"))
		}
		logrus.WithError(err).WithField("user_id", account.ID).Error("Add to watch history failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}

	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, nil, "Video added to watch history"))
}

func (c *UserController) updateImage(
	ctx echo.Context,
	field, message string,
	update func(context.Context, uint64, string) (*entity.Account, error),
) error {
	account := middleware.Account(ctx)
	if account == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.Fail(http.StatusUnauthorized, "Unauthorized request"))
	}

	path, cleanup, err := c.saveUpload(ctx, field)
	if err != nil {
		logrus.WithError(err).WithField("field", field).Error("Failed to stage image upload")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}
	defer cleanup()
	if path == "" {
		return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Image file is required"))
	}

	updated, err := update(ctx.Request().Context(), account.ID, path)
	if err != nil {
		if errors.Is(err, service.ErrValidation) || errors.Is(err, service.ErrAvatarRequired) {
			return ctx.JSON(http.StatusBadRequest, httpdto.Fail(http.StatusBadRequest, "Image file is required"))
		}
		logrus.WithError(err).WithField("user_id", account.ID).Error("Image update failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.Fail(http.StatusInternalServerError, "Internal server error"))
	}

	logrus.WithField("user_id", account.ID).Info("Image updated")
	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, httpdto.NewAccountResponse(updated), message))
}

// saveUpload stages a multipart file into the temp directory under a
// random name and returns its path together with a cleanup that removes
// it. A missing file field is not an error: the path comes back empty.
func (c *UserController) saveUpload(ctx echo.Context, field string) (string, func(), error) {
	noop := func() {}

	fileHeader, err := ctx.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", noop, nil
		}
		return "", noop, err
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", noop, err
	}
	defer src.Close()

	path := filepath.Join(c.cfg.TempDir, uuid.NewString()+strings.ToLower(filepath.Ext(fileHeader.Filename)))
	dst, err := os.Create(path)
	if err != nil {
		return "", noop, err
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", noop, err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", noop, err
	}

	return path, func() { _ = os.Remove(path) }, nil
}

func (c *UserController) setSessionCookies(ctx echo.Context, accessToken, refreshToken string) {
	ctx.SetCookie(sessionCookie(middleware.AccessCookie, accessToken, c.cfg.AccessTokenTTL))
	ctx.SetCookie(sessionCookie(refreshCookie, refreshToken, c.cfg.RefreshTokenTTL))
}

func (c *UserController) clearSessionCookies(ctx echo.Context) {
	ctx.SetCookie(expiredCookie(middleware.AccessCookie))
	ctx.SetCookie(expiredCookie(refreshCookie))
}

func sessionCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func expiredCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}
