package syncer

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when an enterprise already has a run in
// flight and overlapping runs are not allowed
var ErrSyncInProgress = errors.New("a sync is already in progress for this enterprise")

// CredentialError means the run could not authenticate. It is fatal to the
// whole run.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("invalid credential: %v", e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// OrganizationListError means the enterprise's organizations could not be
// listed. It is fatal to the whole run.
type OrganizationListError struct {
	Enterprise string
	Err        error
}

func (e *OrganizationListError) Error() string {
	return fmt.Sprintf("failed to list organizations for enterprise %s: %v", e.Enterprise, e.Err)
}

func (e *OrganizationListError) Unwrap() error { return e.Err }

// PageFetchError aborts one organization; the run continues
type PageFetchError struct {
	Org  string
	Page int
	Err  error
}

func (e *PageFetchError) Error() string {
	return fmt.Sprintf("failed to fetch page %d for organization %s: %v", e.Page, e.Org, e.Err)
}

func (e *PageFetchError) Unwrap() error { return e.Err }

// DanglingReferenceError ends an organization's pagination early without
// marking it as failed
type DanglingReferenceError struct {
	Org  string
	Page int
	Err  error
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("dangling reference on page %d for organization %s: %v", e.Page, e.Org, e.Err)
}

func (e *DanglingReferenceError) Unwrap() error { return e.Err }

// RecordProcessingError rejects a single malformed record. The rest of the
// page is still processed.
type RecordProcessingError struct {
	ProviderID string
	Field      string
	Reason     string
}

func (e *RecordProcessingError) Error() string {
	id := e.ProviderID
	if id == "" {
		id = "<unknown>"
	}
	return fmt.Sprintf("migration %s: %s %s", id, e.Field, e.Reason)
}

// IsFatal reports whether err ends a run before any organization is touched
func IsFatal(err error) bool {
	var credErr *CredentialError
	var listErr *OrganizationListError
	return errors.As(err, &credErr) || errors.As(err, &listErr)
}
