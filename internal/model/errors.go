package model

import "errors"

// Core delivery errors. Every failure the output layer can produce maps to
// exactly one of these sentinels so tool handlers can translate them into
// stable client-facing codes.
var (
	// ErrInvalidPath marks an output directory that is malformed or would
	// escape the configured base directory.
	ErrInvalidPath = errors.New("invalid path")
	// ErrIOFailure marks a filesystem read or write error.
	ErrIOFailure = errors.New("io failure")
	// ErrFileNotFound marks a missing user-supplied input file.
	ErrFileNotFound = errors.New("file not found")
	// ErrUnsupportedContent marks an input file that fails the audio
	// heuristic.
	ErrUnsupportedContent = errors.New("unsupported content")
	// ErrPathEscape marks a resource read-back that resolves outside the
	// base directory.
	ErrPathEscape = errors.New("path escape")
	// ErrNotFound marks a resource read-back target that no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrInvalidConfiguration marks a startup configuration problem; the
	// process must not start when it is returned.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// VendorError is the uniform wrapper for failures reported by the ElevenLabs
// API. The adapter never inspects vendor payloads beyond this mapping.
type VendorError struct {
	Code       string
	Message    string
	Retryable  bool
	StatusCode int
	Cause      error
}

func (e *VendorError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

func (e *VendorError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
