package storage

import "errors"

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrRefreshTokenAbsent = errors.New("refresh token not in user token list")
	ErrTokenNotFound      = errors.New("one-time token not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrImageNotFound      = errors.New("image not found")
)
