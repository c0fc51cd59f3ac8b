package model

import "errors"

var (
	// ErrExtraction means the upload is not a readable PDF or has no extractable text.
	ErrExtraction = errors.New("pdf extraction failed")
	// ErrSessionNotFound means the session token is unknown, malformed or expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrGateway means the external AI call failed.
	ErrGateway = errors.New("ai gateway failed")

	ErrInvalidInput = errors.New("invalid input")
	ErrNoDocument   = errors.New("session has no document")
)
