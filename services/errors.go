package services

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrBadRequest       = errors.New("bad request")
	ErrInternal         = errors.New("internal error")
)
