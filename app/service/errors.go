package service

import "errors"

var (
	ErrValidation           = errors.New("required field is missing or empty")
	ErrAvatarRequired       = errors.New("avatar file is required")
	ErrAccountExists        = errors.New("account with this handle or email already exists")
	ErrAccountNotFound      = errors.New("account not found")
	ErrVideoNotFound        = errors.New("video not found")
	ErrSubscriptionExists   = errors.New("already subscribed to this channel")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrWrongPassword        = errors.New("password is incorrect")
	ErrUnauthorized         = errors.New("missing authentication credential")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrTokenReused          = errors.New("refresh token has already been used or was revoked")
)
