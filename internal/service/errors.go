package service

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrRoomNotFound        = errors.New("room not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrIncorrectCredential = errors.New("incorrect password")
	ErrInternalServer      = errors.New("internal server error")
)
