package models

import "fmt"

// RunState is the lifecycle of a whole sync run
type RunState string

const (
	RunInitiated  RunState = "INITIATED"
	RunProcessing RunState = "PROCESSING"
	RunCompleted  RunState = "COMPLETED"
	RunFailed     RunState = "FAILED"
)

// RunEvent drives RunState transitions
type RunEvent string

const (
	RunEventOrganizationsListed RunEvent = "organizations_listed"
	RunEventListFailed          RunEvent = "list_failed"
	RunEventAllAttempted        RunEvent = "all_attempted"
	RunEventRecordingFailed     RunEvent = "recording_failed"
)

// Next returns the state reached from s on event, or an error if the
// transition is not allowed. Once organizations are known the run reaches
// COMPLETED unless an organization's outcome could not be persisted.
func (s RunState) Next(event RunEvent) (RunState, error) {
	switch {
	case s == RunInitiated && event == RunEventOrganizationsListed:
		return RunProcessing, nil
	case s == RunInitiated && event == RunEventListFailed:
		return RunFailed, nil
	case s == RunProcessing && event == RunEventAllAttempted:
		return RunCompleted, nil
	case s == RunProcessing && event == RunEventRecordingFailed:
		return RunFailed, nil
	}
	return s, fmt.Errorf("invalid run transition from %s on %s", s, event)
}

// IsTerminal reports whether the run has ended
func (s RunState) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// HistoryStatus maps the run state to the persisted status
func (s RunState) HistoryStatus() SyncStatus {
	switch s {
	case RunCompleted:
		return SyncStatusCompleted
	case RunFailed:
		return SyncStatusFailed
	default:
		return SyncStatusInProgress
	}
}

// OrgState is the lifecycle of one organization within a run
type OrgState string

const (
	OrgPending    OrgState = "PENDING"
	OrgFetching   OrgState = "FETCHING"
	OrgPaginating OrgState = "PAGINATING"
	OrgDoneOK     OrgState = "DONE_OK"
	OrgDoneError  OrgState = "DONE_ERROR"
)

// OrgEvent drives OrgState transitions
type OrgEvent string

const (
	OrgEventStart        OrgEvent = "start"
	OrgEventFirstPage    OrgEvent = "first_page"
	OrgEventExhausted    OrgEvent = "exhausted"
	OrgEventSoftTerminal OrgEvent = "soft_terminate"
	OrgEventFailed       OrgEvent = "failed"
)

// Next returns the state reached from s on event. A dangling reference
// soft-terminates into DONE_OK, any other failure lands in DONE_ERROR.
func (s OrgState) Next(event OrgEvent) (OrgState, error) {
	switch s {
	case OrgPending:
		if event == OrgEventStart {
			return OrgFetching, nil
		}
	case OrgFetching:
		switch event {
		case OrgEventFirstPage:
			return OrgPaginating, nil
		case OrgEventExhausted, OrgEventSoftTerminal:
			return OrgDoneOK, nil
		case OrgEventFailed:
			return OrgDoneError, nil
		}
	case OrgPaginating:
		switch event {
		case OrgEventExhausted, OrgEventSoftTerminal:
			return OrgDoneOK, nil
		case OrgEventFailed:
			return OrgDoneError, nil
		}
	}
	return s, fmt.Errorf("invalid organization transition from %s on %s", s, event)
}

// IsDone reports whether the organization has finished either way
func (s OrgState) IsDone() bool {
	return s == OrgDoneOK || s == OrgDoneError
}
