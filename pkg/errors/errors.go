// Package errors provides structured error types for the conversion pipeline.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across CLI and preview server
//   - Machine-readable error codes for programmatic handling
//   - A fatal/recoverable split matching the pipeline's failure model
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - PARSE_*: malformed book input (fatal, no container is produced)
//   - ASSET_*: missing or corrupt fonts/images/dictionaries (recoverable,
//     degrades to placeholders or fallbacks and continues)
//   - LAYOUT_OVERFLOW: a block cannot be placed under the configuration
//     (fatal, carries the offending block id)
//   - ENCODE_*: serialization invariant violations (fatal, pipeline bug)
//
// # Usage
//
//	err := errors.New(errors.ErrCodeParseEPUB, "missing container.xml")
//	if errors.Is(err, errors.ErrCodeParseEPUB) {
//	    // Handle parse error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeAssetImage, origErr, "decode %s", name)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Parse errors (fatal)
	ErrCodeParseEPUB  Code = "PARSE_EPUB"
	ErrCodeParseOPF   Code = "PARSE_OPF"
	ErrCodeParseBook  Code = "PARSE_BOOK"
	ErrCodeParseInput Code = "PARSE_INPUT"

	// Asset errors (recoverable)
	ErrCodeAssetFont  Code = "ASSET_FONT"
	ErrCodeAssetImage Code = "ASSET_IMAGE"
	ErrCodeAssetDict  Code = "ASSET_DICTIONARY"

	// Layout errors (fatal)
	ErrCodeLayoutOverflow Code = "LAYOUT_OVERFLOW"
	ErrCodeInvalidConfig  Code = "INVALID_CONFIG"

	// Encode/decode errors (fatal, indicate a pipeline bug or corrupt file)
	ErrCodeEncode Code = "ENCODE_ERROR"
	ErrCodeDecode Code = "DECODE_ERROR"

	// Resource not found (preview server surface)
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodePageNotFound    Code = "PAGE_NOT_FOUND"
	ErrCodeChapterNotFound Code = "CHAPTER_NOT_FOUND"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	BlockID string // Offending block, set for layout overflow errors
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Overflow creates a LAYOUT_OVERFLOW error identifying the block that could
// not be placed.
func Overflow(blockID, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeLayoutOverflow,
		Message: fmt.Sprintf(format, args...),
		BlockID: blockID,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Recoverable reports whether the error degrades gracefully. Asset errors are
// the only recoverable category: the pipeline substitutes placeholders and
// records a warning instead of aborting.
func Recoverable(err error) bool {
	switch GetCode(err) {
	case ErrCodeAssetFont, ErrCodeAssetImage, ErrCodeAssetDict:
		return true
	}
	return false
}
