package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by a command wraps exactly one of these.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrTransport         = errors.New("transport error")
	ErrMalformedResponse = errors.New("malformed response")
	ErrValidation        = errors.New("validation error")
	ErrStateCorruption   = errors.New("state corruption")
)

// Code identifies which validation rule failed.
type Code string

const (
	CodeMissingDeclaration     Code = "MissingDeclaration"
	CodeInvalidFormat          Code = "InvalidFormat"
	CodeUnsupportedFields      Code = "UnsupportedFields"
	CodeMissingFields          Code = "MissingFields"
	CodeInvalidField           Code = "InvalidField"
	CodeInvalidTags            Code = "InvalidTags"
	CodeTooManyTags            Code = "TooManyTags"
	CodeRepoUnresolvable       Code = "RepoUnresolvable"
	CodeRepoMissingDeclaration Code = "RepoMissingDeclaration"

	CodeNoChanges              Code = "NoChanges"
	CodeOutOfScope             Code = "OutOfScope"
	CodeMultiplePluginsTouched Code = "MultiplePluginsTouched"
	CodeReservedName           Code = "ReservedName"
	CodeUnsupportedFile        Code = "UnsupportedFile"
	CodeSubdirectoryNotAllowed Code = "SubdirectoryNotAllowed"
	CodeMultipleThumbnails     Code = "MultipleThumbnails"
	CodeThumbnailTooLarge      Code = "ThumbnailTooLarge"
	CodeThumbnailUnreadable    Code = "ThumbnailUnreadable"
	CodeThumbnailNotSquare     Code = "ThumbnailNotSquare"
	CodeDeletionNotAllowed     Code = "DeletionNotAllowed"

	CodeTooManyPlugins   Code = "TooManyPlugins"
	CodeCategoryNotFound Code = "CategoryNotFound"
	CodeReopenFailed     Code = "ReopenFailed"
)

// ValidationError reports the first violated rule of a validation run.
type ValidationError struct {
	Code    Code
	Path    string
	Message string
}

// Fail builds a ValidationError with a formatted message.
func Fail(code Code, path string, format string, args ...any) *ValidationError {
	return &ValidationError{
		Code:    code,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// CodeOf returns the validation code carried by err, or "" if err is not a
// validation failure.
func CodeOf(err error) Code {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// TransportError describes a failed HTTP exchange with the GitHub API.
type TransportError struct {
	Method string
	URL    string
	Status int
	Body   string
	Err    error
}

const maxErrorBody = 500

// NewTransportError truncates body to keep error messages readable.
func NewTransportError(method, url string, status int, body []byte, err error) *TransportError {
	b := string(body)
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return &TransportError{Method: method, URL: url, Status: status, Body: b, Err: err}
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("GitHub API request failed (%d) %s %s: %s", e.Status, e.Method, e.URL, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("GitHub API request failed (%d) %s %s", e.Status, e.Method, e.URL)
	case e.Err != nil:
		return fmt.Sprintf("GitHub API request failed %s %s: %v", e.Method, e.URL, e.Err)
	default:
		return fmt.Sprintf("GitHub API request failed %s %s", e.Method, e.URL)
	}
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
