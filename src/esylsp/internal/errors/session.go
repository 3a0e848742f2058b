package errors

import (
	stderr "errors"
	"fmt"

	"github.com/gofrs/uuid"
)

// DuplicateSessionError indicates that a session already exists for a
// workspace root. At most one session may exist per root at a time.
type DuplicateSessionError struct {
	WorkspaceRoot string
	Existing      uuid.UUID
}

// Error is an implementation of the error interface.
func (n *DuplicateSessionError) Error() string {
	return fmt.Sprintf("session %q already exists for workspace root %q", n.Existing, n.WorkspaceRoot)
}

// IsDuplicateSession reports whether DuplicateSessionError is part of the
// error chain.
func IsDuplicateSession(e error) bool {
	var dup *DuplicateSessionError
	return stderr.As(e, &dup)
}
