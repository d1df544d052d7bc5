package domain

// Challenge review statuses. The forward path runs submitted through
// completed; rejected is a terminal exit reachable from any earlier status.
const (
	StatusSubmitted           = "submitted"
	StatusPendingVerification = "pending_verification"
	StatusVerified            = "verified"
	StatusInProgress          = "in_progress"
	StatusCompleted           = "completed"
	StatusRejected            = "rejected"
)

// Timeline lists the forward stages in display order. Rejected is not a
// stage; it renders as its own terminal marker.
var Timeline = []string{
	StatusSubmitted,
	StatusPendingVerification,
	StatusVerified,
	StatusInProgress,
	StatusCompleted,
}

// Document types.
const (
	DocumentInitialSubmission = "initial-submission"
	DocumentCompletion        = "completion-document"
	DocumentSupporting        = "supporting-document"
)

// Portal user roles.
const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

// KnownStatus reports whether s is a recognized challenge status.
func KnownStatus(s string) bool {
	switch s {
	case StatusSubmitted, StatusPendingVerification, StatusVerified,
		StatusInProgress, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// KnownDocumentType reports whether t is a recognized document type.
func KnownDocumentType(t string) bool {
	switch t {
	case DocumentInitialSubmission, DocumentCompletion, DocumentSupporting:
		return true
	}
	return false
}

// TimelinePosition maps a status to its index in Timeline. Rejected and
// unknown statuses return (-1, false): they occupy no forward position.
func TimelinePosition(status string) (int, bool) {
	for i, s := range Timeline {
		if s == status {
			return i, true
		}
	}
	return -1, false
}

// ProgressPercent returns the fixed progress table used by the portal's
// progress displays. Rejected intentionally keeps the pending_verification
// value; do not change one without the other being a product decision.
func ProgressPercent(status string) int {
	switch status {
	case StatusSubmitted:
		return 20
	case StatusPendingVerification:
		return 25
	case StatusVerified:
		return 50
	case StatusInProgress:
		return 75
	case StatusCompleted:
		return 100
	case StatusRejected:
		return 25
	default:
		return 0
	}
}
