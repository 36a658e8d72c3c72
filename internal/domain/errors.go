package domain

import (
	"errors"
	"fmt"
)

// Kind classifies errors by how callers must react to them.
type Kind string

const (
	// KindConfiguration covers schema mismatches and invalid addresses. Not auto-recoverable.
	KindConfiguration Kind = "configuration"
	// KindConnectivity means the embedding service or vector store could not be reached.
	KindConnectivity Kind = "connectivity"
	// KindEmbedding means the service answered but produced no usable vector.
	KindEmbedding Kind = "embedding"
	// KindNotReady means the collection could not be made query-ready.
	KindNotReady Kind = "not_ready"
	// KindValidation is raised before any network call.
	KindValidation Kind = "validation"
	// KindNotFound means a note vanished between listing and reading.
	KindNotFound Kind = "not_found"
)

// Error is a typed error carrying a Kind and the operation that failed.
// It can be unwrapped with errors.As and matched by kind with errors.Is.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind, so sentinel values below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is matching by kind.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrConnectivity  = &Error{Kind: KindConnectivity}
	ErrEmbedding     = &Error{Kind: KindEmbedding}
	ErrNotReady      = &Error{Kind: KindNotReady}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
)

func newError(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: cause}
}

func ConfigurationError(op, msg string, cause error) *Error {
	return newError(KindConfiguration, op, msg, cause)
}

func ConnectivityError(op, msg string, cause error) *Error {
	return newError(KindConnectivity, op, msg, cause)
}

func EmbeddingError(op, msg string, cause error) *Error {
	return newError(KindEmbedding, op, msg, cause)
}

func NotReadyError(op, msg string, cause error) *Error {
	return newError(KindNotReady, op, msg, cause)
}

func ValidationError(op, msg string) *Error {
	return newError(KindValidation, op, msg, nil)
}

func NotFoundError(op, msg string, cause error) *Error {
	return newError(KindNotFound, op, msg, cause)
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
