package engine

import "fmt"

// MaxDocumentBytes is the inclusive upload size limit. A file of exactly
// this size is accepted.
const MaxDocumentBytes = 10 << 20

// ValidationError rejects caller-supplied input that fails a domain rule.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// PreconditionFailed rejects an operation whose target is in the wrong
// state, e.g. attaching a completion document to a challenge with no portal
// account.
type PreconditionFailed struct {
	Reason string
}

func (e *PreconditionFailed) Error() string { return e.Reason }

// PayloadTooLarge rejects an upload over the size limit.
type PayloadTooLarge struct {
	Size  int64
	Limit int64
}

func (e *PayloadTooLarge) Error() string {
	return fmt.Sprintf("file is %d bytes, limit is %d", e.Size, e.Limit)
}

// UploadFailed wraps a blob store failure. The document row is never created
// when the bytes did not land.
type UploadFailed struct {
	Err error
}

func (e *UploadFailed) Error() string { return fmt.Sprintf("upload failed: %v", e.Err) }
func (e *UploadFailed) Unwrap() error { return e.Err }

// AuthError rejects a login or token with bad credentials.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return e.Reason }
