package controller_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/aggregate"
	"github.com/vibast-solutions/ms-go-accounts/app/controller"
	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/middleware"
	"github.com/vibast-solutions/ms-go-accounts/app/repository"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

const (
	findByHandleOrEmailQuery = `SELECT id, handle, email, full_name, avatar, cover_image, password_hash, refresh_token, created_at, updated_at FROM accounts WHERE handle = \? OR email = \?`
	findByIDQuery            = `SELECT id, handle, email, full_name, avatar, cover_image, password_hash, refresh_token, created_at, updated_at FROM accounts WHERE id = \?`
	findByHandleQuery        = `SELECT id, handle, email, full_name, avatar, cover_image, password_hash, refresh_token, created_at, updated_at FROM accounts WHERE handle = \?`
	insertAccountQuery       = `(?s)INSERT INTO accounts \(handle, email, full_name, avatar, cover_image, password_hash, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?, \?, \?\)`
	existsSubscriptionQuery  = `SELECT 1 FROM subscriptions WHERE subscriber_id = \? AND channel_id = \? LIMIT 1`
	setRefreshTokenQuery     = `UPDATE accounts SET refresh_token = \?, updated_at = \? WHERE id = \?$`
	rotateRefreshTokenQuery  = `UPDATE accounts SET refresh_token = \?, updated_at = \? WHERE id = \? AND refresh_token = \?`
)

var accountColumns = []string{
	"id",
	"handle",
	"email",
	"full_name",
	"avatar",
	"cover_image",
	"password_hash",
	"refresh_token",
	"created_at",
	"updated_at",
}

type fakeUploader struct {
	err error
}

func (f *fakeUploader) Upload(_ context.Context, localPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example.com/" + localPath, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    10 * 24 * time.Hour,
		BcryptCost:         bcrypt.MinCost,
		TempDir:            t.TempDir(),
		S3:                 config.S3Config{UploadMaxBytes: 32 << 20},
	}
}

func newControllerWithMock(t *testing.T) (*controller.UserController, sqlmock.Sqlmock, *config.Config) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := testConfig(t)
	watchRepo := repository.NewWatchHistoryRepository(db)
	accountService := service.NewAccountService(
		repository.NewAccountRepository(db),
		repository.NewSubscriptionRepository(db),
		repository.NewVideoRepository(db),
		watchRepo,
		aggregate.Memory{},
		aggregate.Memory{},
		aggregate.Memory{},
		service.NewTokenService(cfg),
		&fakeUploader{},
		cfg,
	)
	return controller.NewUserController(accountService, cfg), mock, cfg
}

func newJSONRequest(t *testing.T, method, path string, body any) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req, httptest.NewRecorder()
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	return body
}

func contextAccount() *entity.Account {
	return &entity.Account{
		ID:       1,
		Handle:   "alpha",
		Email:    "alpha@example.com",
		FullName: "Alpha One",
		Avatar:   "https://cdn/a.png",
	}
}

func addAccountRow(rows *sqlmock.Rows, id uint64, handle, email, passwordHash string, refreshToken sql.NullString) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id,
		handle,
		email,
		"Alpha One",
		"https://cdn/a.png",
		sql.NullString{},
		passwordHash,
		refreshToken,
		now,
		now,
	)
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestRegister_Multipart(t *testing.T) {
	userController, mock, _ := newControllerWithMock(t)

	mock.ExpectQuery(findByHandleOrEmailQuery).
		WithArgs("alpha", "alpha@example.com").
		WillReturnRows(sqlmock.NewRows(accountColumns))
	mock.ExpectExec(insertAccountQuery).
		WillReturnResult(sqlmock.NewResult(1, 1))

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("fullName", "Alpha One")
	_ = writer.WriteField("email", "alpha@example.com")
	_ = writer.WriteField("handle", "alpha")
	_ = writer.WriteField("password", "password123")
	part, err := writer.CreateFormFile("avatar", "avatar.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := io.WriteString(part, "fake image bytes"); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/users/register", &buf)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	ctx := echo.New().NewContext(req, rec)

	if err := userController.Register(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %s", rec.Body.String())
	}

	body := decodeEnvelope(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success envelope, got %v", body)
	}
	data, ok := body["data"].(map[string]any)
	if !ok || data["handle"] != "alpha" {
		t.Fatalf("unexpected data: %v", body["data"])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegister_MissingAvatar(t *testing.T) {
	userController, _, _ := newControllerWithMock(t)

	req, rec := newJSONRequest(t, http.MethodPost, "/users/register", map[string]string{
		"fullName": "Alpha One",
		"email":    "alpha@example.com",
		"handle":   "alpha",
		"password": "password123",
	})
	ctx := echo.New().NewContext(req, rec)

	if err := userController.Register(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["message"] != "Avatar file is required" {
		t.Fatalf("unexpected envelope: %v", body)
	}
}

func TestLogin_SetsSessionCookies(t *testing.T) {
	userController, mock, _ := newControllerWithMock(t)

	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	rows := addAccountRow(sqlmock.NewRows(accountColumns), 1, "alpha", "alpha@example.com", string(hashed), sql.NullString{})
	mock.ExpectQuery(findByHandleOrEmailQuery).
		WithArgs("alpha", "alpha").
		WillReturnRows(rows)
	mock.ExpectExec(setRefreshTokenQuery).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req, rec := newJSONRequest(t, http.MethodPost, "/users/login", map[string]string{
		"handle":   "alpha",
		"password": "password123",
	})
	ctx := echo.New().NewContext(req, rec)

	if err := userController.Login(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	for _, name := range []string{"accessToken", "refreshToken"} {
		cookie := responseCookie(rec, name)
		if cookie == nil || cookie.Value == "" {
			t.Fatalf("expected %s cookie to be set", name)
		}
		if !cookie.HttpOnly || !cookie.Secure {
			t.Fatalf("expected %s cookie to be httpOnly and secure", name)
		}
	}

	body := decodeEnvelope(t, rec)
	data, ok := body["data"].(map[string]any)
	if !ok || data["accessToken"] == "" || data["refreshToken"] == "" {
		t.Fatalf("expected tokens in response data, got %v", body["data"])
	}
	account, ok := data["account"].(map[string]any)
	if !ok || account["handle"] != "alpha" {
		t.Fatalf("unexpected account in response: %v", data["account"])
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	userController, mock, _ := newControllerWithMock(t)

	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	rows := addAccountRow(sqlmock.NewRows(accountColumns), 1, "alpha", "alpha@example.com", string(hashed), sql.NullString{})
	mock.ExpectQuery(findByHandleOrEmailQuery).
		WillReturnRows(rows)

	req, rec := newJSONRequest(t, http.MethodPost, "/users/login", map[string]string{
		"handle":   "alpha",
		"password": "wrong",
	})
	ctx := echo.New().NewContext(req, rec)

	if err := userController.Login(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["success"] != false {
		t.Fatalf("expected failure envelope, got %v", body)
	}
}

func TestRefreshToken_FromCookie(t *testing.T) {
	userController, mock, cfg := newControllerWithMock(t)

	tokens := service.NewTokenService(cfg)
	_, presented, err := tokens.IssuePair(contextAccount())
	if err != nil {
		t.Fatalf("issue pair failed: %v", err)
	}

	rows := addAccountRow(sqlmock.NewRows(accountColumns), 1, "alpha", "alpha@example.com", "hash", sql.NullString{String: presented, Valid: true})
	mock.ExpectQuery(findByIDQuery).WillReturnRows(rows)
	mock.ExpectExec(rotateRefreshTokenQuery).WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/users/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: presented})
	rec := httptest.NewRecorder()
	ctx := echo.New().NewContext(req, rec)

	if err := userController.RefreshToken(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	refreshed := responseCookie(rec, "refreshToken")
	if refreshed == nil || refreshed.Value == "" || refreshed.Value == presented {
		t.Fatalf("expected a rotated refreshToken cookie")
	}
}

func TestRefreshToken_MissingToken(t *testing.T) {
	userController, _, _ := newControllerWithMock(t)

	req := httptest.NewRequest(http.MethodPost, "/users/refresh-token", nil)
	rec := httptest.NewRecorder()
	ctx := echo.New().NewContext(req, rec)

	if err := userController.RefreshToken(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestRefreshToken_Reused(t *testing.T) {
	userController, mock, cfg := newControllerWithMock(t)

	tokens := service.NewTokenService(cfg)
	_, presented, err := tokens.IssuePair(contextAccount())
	if err != nil {
		t.Fatalf("issue pair failed: %v", err)
	}

	rows := addAccountRow(sqlmock.NewRows(accountColumns), 1, "alpha", "alpha@example.com", "hash", sql.NullString{String: "rotated-away", Valid: true})
	mock.ExpectQuery(findByIDQuery).WillReturnRows(rows)
	mock.ExpectExec(rotateRefreshTokenQuery).WillReturnResult(sqlmock.NewResult(0, 0))

	req, rec := newJSONRequest(t, http.MethodPost, "/users/refresh-token", map[string]string{
		"refreshToken": presented,
	})
	ctx := echo.New().NewContext(req, rec)

	if err := userController.RefreshToken(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["message"] != "Refresh token is expired or used" {
		t.Fatalf("unexpected envelope: %v", body)
	}
}

func TestLogout_ClearsCookies(t *testing.T) {
	userController, mock, _ := newControllerWithMock(t)

	mock.ExpectExec(setRefreshTokenQuery).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/users/logout", nil)
	rec := httptest.NewRecorder()
	ctx := echo.New().NewContext(req, rec)
	ctx.Set(middleware.ContextAccount, contextAccount())

	if err := userController.Logout(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	for _, name := range []string{"accessToken", "refreshToken"} {
		cookie := responseCookie(rec, name)
		if cookie == nil || cookie.MaxAge >= 0 || cookie.Value != "" {
			t.Fatalf("expected %s cookie to be cleared", name)
		}
	}
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	userController, mock, _ := newControllerWithMock(t)

	hashed, _ := bcrypt.GenerateFromPassword([]byte("old-pass"), bcrypt.MinCost)
	rows := addAccountRow(sqlmock.NewRows(accountColumns), 1, "alpha", "alpha@example.com", string(hashed), sql.NullString{})
	mock.ExpectQuery(findByIDQuery).WillReturnRows(rows)

	req, rec := newJSONRequest(t, http.MethodPut, "/users/change-password", map[string]string{
		"oldPassword": "not-old-pass",
		"newPassword": "new-pass",
	})
	ctx := echo.New().NewContext(req, rec)
	ctx.Set(middleware.ContextAccount, contextAccount())

	if err := userController.ChangePassword(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["message"] != "Invalid old password" {
		t.Fatalf("unexpected envelope: %v", body)
	}
}

func TestGetProfile(t *testing.T) {
	userController, _, _ := newControllerWithMock(t)

	req := httptest.NewRequest(http.MethodGet, "/users/profile", nil)
	rec := httptest.NewRecorder()
	ctx := echo.New().NewContext(req, rec)
	ctx.Set(middleware.ContextAccount, contextAccount())

	if err := userController.GetProfile(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := decodeEnvelope(t, rec)
	data, ok := body["data"].(map[string]any)
	if !ok || data["handle"] != "alpha" {
		t.Fatalf("unexpected profile data: %v", body["data"])
	}
	if _, leaked := data["passwordHash"]; leaked {
		t.Fatalf("profile response leaked a secret field")
	}
}

func TestSubscribe_Conflict(t *testing.T) {
	userController, mock, _ := newControllerWithMock(t)

	rows := addAccountRow(sqlmock.NewRows(accountColumns), 2, "beta", "beta@example.com", "hash", sql.NullString{})
	mock.ExpectQuery(findByHandleQuery).
		WithArgs("beta").
		WillReturnRows(rows)
	mock.ExpectQuery(existsSubscriptionQuery).
		WithArgs(uint64(1), uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	req := httptest.NewRequest(http.MethodPost, "/users/subscribe/beta", nil)
	rec := httptest.NewRecorder()
	ctx := echo.New().NewContext(req, rec)
	ctx.SetParamNames("handle")
	ctx.SetParamValues("beta")
	ctx.Set(middleware.ContextAccount, contextAccount())

	if err := userController.Subscribe(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
}

func TestSubscribe_OwnChannel(t *testing.T) {
	userController, mock, _ := newControllerWithMock(t)

	rows := addAccountRow(sqlmock.NewRows(accountColumns), 1, "alpha", "alpha@example.com", "hash", sql.NullString{})
	mock.ExpectQuery(findByHandleQuery).
		WithArgs("alpha").
		WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodPost, "/users/subscribe/alpha", nil)
	rec := httptest.NewRecorder()
	ctx := echo.New().NewContext(req, rec)
	ctx.SetParamNames("handle")
	ctx.SetParamValues("alpha")
	ctx.Set(middleware.ContextAccount, contextAccount())

	if err := userController.Subscribe(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestAddToWatchHistory_InvalidVideoID(t *testing.T) {
	userController, _, _ := newControllerWithMock(t)

	req := httptest.NewRequest(http.MethodPost, "/users/watch/abc", nil)
	rec := httptest.NewRecorder()
	ctx := echo.New().NewContext(req, rec)
	ctx.SetParamNames("videoId")
	ctx.SetParamValues("abc")
	ctx.Set(middleware.ContextAccount, contextAccount())

	if err := userController.AddToWatchHistory(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}
