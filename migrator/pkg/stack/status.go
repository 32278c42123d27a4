package stack

import "fmt"

// Status is the lifecycle state of a CloudFormation stack.
type Status struct {
	slug string
}

func (s Status) String() string {
	return s.slug
}

var (
	StatusUndefined = Status{""}

	StatusCreateInProgress = Status{"CREATE_IN_PROGRESS"}
	StatusCreateFailed     = Status{"CREATE_FAILED"}
	StatusCreateComplete   = Status{"CREATE_COMPLETE"}

	StatusRollbackInProgress = Status{"ROLLBACK_IN_PROGRESS"}
	StatusRollbackFailed     = Status{"ROLLBACK_FAILED"}
	StatusRollbackComplete   = Status{"ROLLBACK_COMPLETE"}

	StatusDeleteInProgress = Status{"DELETE_IN_PROGRESS"}
	StatusDeleteFailed     = Status{"DELETE_FAILED"}
	StatusDeleteComplete   = Status{"DELETE_COMPLETE"}

	StatusUpdateInProgress                        = Status{"UPDATE_IN_PROGRESS"}
	StatusUpdateCompleteCleanupInProgress         = Status{"UPDATE_COMPLETE_CLEANUP_IN_PROGRESS"}
	StatusUpdateComplete                          = Status{"UPDATE_COMPLETE"}
	StatusUpdateFailed                            = Status{"UPDATE_FAILED"}
	StatusUpdateRollbackInProgress                = Status{"UPDATE_ROLLBACK_IN_PROGRESS"}
	StatusUpdateRollbackFailed                    = Status{"UPDATE_ROLLBACK_FAILED"}
	StatusUpdateRollbackCompleteCleanupInProgress = Status{"UPDATE_ROLLBACK_COMPLETE_CLEANUP_IN_PROGRESS"}
	StatusUpdateRollbackComplete                  = Status{"UPDATE_ROLLBACK_COMPLETE"}

	StatusReviewInProgress = Status{"REVIEW_IN_PROGRESS"}

	StatusImportInProgress         = Status{"IMPORT_IN_PROGRESS"}
	StatusImportComplete           = Status{"IMPORT_COMPLETE"}
	StatusImportRollbackInProgress = Status{"IMPORT_ROLLBACK_IN_PROGRESS"}
	StatusImportRollbackFailed     = Status{"IMPORT_ROLLBACK_FAILED"}
	StatusImportRollbackComplete   = Status{"IMPORT_ROLLBACK_COMPLETE"}
)

var knownStatuses = map[string]Status{}

func init() {
	for _, s := range []Status{
		StatusCreateInProgress, StatusCreateFailed, StatusCreateComplete,
		StatusRollbackInProgress, StatusRollbackFailed, StatusRollbackComplete,
		StatusDeleteInProgress, StatusDeleteFailed, StatusDeleteComplete,
		StatusUpdateInProgress, StatusUpdateCompleteCleanupInProgress, StatusUpdateComplete, StatusUpdateFailed,
		StatusUpdateRollbackInProgress, StatusUpdateRollbackFailed,
		StatusUpdateRollbackCompleteCleanupInProgress, StatusUpdateRollbackComplete,
		StatusReviewInProgress,
		StatusImportInProgress, StatusImportComplete,
		StatusImportRollbackInProgress, StatusImportRollbackFailed, StatusImportRollbackComplete,
	} {
		knownStatuses[s.slug] = s
	}
}

// ParseStatus maps a provider status string to a Status. Unknown values are an
// error rather than a silent fallthrough.
func ParseStatus(s string) (Status, error) {
	if status, ok := knownStatuses[s]; ok {
		return status, nil
	}
	return StatusUndefined, fmt.Errorf("unknown stack status %q", s)
}

// IsComplete reports a settled, successful state.
func (s Status) IsComplete() bool {
	switch s {
	case StatusCreateComplete, StatusUpdateComplete, StatusImportComplete:
		return true
	}
	return false
}

// IsFailed reports a settled state the stack cannot be used in.
func (s Status) IsFailed() bool {
	switch s {
	case StatusCreateFailed, StatusRollbackFailed, StatusRollbackComplete,
		StatusDeleteFailed, StatusUpdateFailed, StatusUpdateRollbackFailed,
		StatusUpdateRollbackComplete, StatusImportRollbackFailed, StatusImportRollbackComplete:
		return true
	}
	return false
}

func (s Status) IsInProgress() bool {
	switch s {
	case StatusCreateInProgress, StatusRollbackInProgress, StatusDeleteInProgress,
		StatusUpdateInProgress, StatusUpdateCompleteCleanupInProgress,
		StatusUpdateRollbackInProgress, StatusUpdateRollbackCompleteCleanupInProgress,
		StatusReviewInProgress, StatusImportInProgress, StatusImportRollbackInProgress:
		return true
	}
	return false
}
