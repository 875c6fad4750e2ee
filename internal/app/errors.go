package app

import "errors"

var (
	// ErrContentNotFound indicates an unknown catalog id.
	ErrContentNotFound = errors.New("content not found")
	// ErrExamInputNotFound indicates an unknown or foreign exam input.
	ErrExamInputNotFound = errors.New("exam input not found")
	// ErrForbidden indicates the caller's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")
)
