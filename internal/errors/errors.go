package errors

import "errors"

// Snapshot and store errors.
var (
	ErrInvalidFormat = errors.New("invalid or unsupported backup format")
	ErrNotFound      = errors.New("entity not found")
	ErrPersistence   = errors.New("changes could not be saved to disk")
)

// Collaborator errors.
var (
	ErrAuth    = errors.New("invalid or expired API key")
	ErrService = errors.New("AI service request failed")
)

// Workspace errors.
var (
	ErrDuplicateName   = errors.New("name already exists")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNoPendingItem   = errors.New("no upload awaiting this action")
)

// IsAuth reports whether err (or any error in its chain) is a credential
// failure. Callers halt batch work and ask for a new key when it is.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsPersistence reports whether err is a non-fatal durability failure.
// The in-memory state already reflects the change.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}
