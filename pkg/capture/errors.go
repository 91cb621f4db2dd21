package capture

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a capture job failed or degraded.
type ErrorKind string

const (
	// KindNone means no error.
	KindNone ErrorKind = ""
	// KindAcquireTimeout is never terminal: acquisition retries indefinitely.
	KindAcquireTimeout ErrorKind = "acquire_timeout"
	// KindNavigation is logged and absorbed; the capture proceeds with the loaded page.
	KindNavigation ErrorKind = "navigation_failure"
	// KindBehavior is logged and absorbed; the behavior degrades to a no-op.
	KindBehavior ErrorKind = "behavior_failure"
	// KindInvalidURL means the capture URL is not an absolute http(s) URL. Job-fatal.
	KindInvalidURL ErrorKind = "invalid_url"
	// KindInvalidEmbed means the proxy rejected the embed wrapper. Job-fatal.
	KindInvalidEmbed ErrorKind = "invalid_embed"
	// KindCommit means the proxy rejected archive finalization. Job-fatal.
	KindCommit ErrorKind = "commit_failure"
	// KindUpload means the archive could not be stored. Job-fatal.
	KindUpload ErrorKind = "upload_failure"
	// KindCanceled means the job was cancelled by its owner.
	KindCanceled ErrorKind = "canceled"
	// KindChannelDisconnect means the requesting client went away.
	KindChannelDisconnect ErrorKind = "channel_disconnect"
	// KindInternal is a job-fatal failure that carries no more specific kind.
	KindInternal ErrorKind = "internal_failure"
)

// Fatal reports whether errors of this kind end the job.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindInvalidURL, KindInvalidEmbed, KindCommit, KindUpload, KindCanceled, KindChannelDisconnect, KindInternal:
		return true
	default:
		return false
	}
}

// Error is a capture failure tagged with its kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

// NewError wraps err with the given kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Sentinel errors for failures without an underlying cause.
var (
	ErrInvalidEmbed = errors.New("embed rejected by recording proxy")
	ErrNoURL        = errors.New("no capture url")
)

// KindOf extracts the ErrorKind from err. Context cancellation maps to KindCanceled.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindNone
}
