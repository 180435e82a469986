package domain

import "errors"

var (
	ErrClientNotFound   = errors.New("client not found")
	ErrUnknownScope     = errors.New("unknown scope")
	ErrUserNotFound     = errors.New("user not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrConsentNotFound  = errors.New("consent grant not found")
	ErrTokenNotFound    = errors.New("token not found")
	ErrAuthCodeNotFound = errors.New("authorization code not found")
	ErrAuthCodeUsed     = errors.New("authorization code already used")
)
