package http

import (
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
)

// Envelope is the uniform response body. Success mirrors whether
// StatusCode is below 400 so clients can branch without inspecting the
// code.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func OK(statusCode int, data any, message string) Envelope {
	return Envelope{
		StatusCode: statusCode,
		Data:       data,
		Message:    message,
		Success:    statusCode < 400,
	}
}

func Fail(statusCode int, message string) Envelope {
	return Envelope{
		StatusCode: statusCode,
		Data:       nil,
		Message:    message,
		Success:    false,
	}
}

type AccountResponse struct {
	ID         uint64    `json:"id"`
	Handle     string    `json:"handle"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func NewAccountResponse(account *entity.Account) *AccountResponse {
	if account == nil {
		return nil
	}
	return &AccountResponse{
		ID:         account.ID,
		Handle:     account.Handle,
		Email:      account.Email,
		FullName:   account.FullName,
		Avatar:     account.Avatar,
		CoverImage: account.CoverImage.String,
		CreatedAt:  account.CreatedAt,
		UpdatedAt:  account.UpdatedAt,
	}
}

type LoginResponse struct {
	Account      *AccountResponse `json:"account"`
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
}

type RefreshTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
