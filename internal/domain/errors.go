package domain

import "errors"

var (
	ErrJobNotFound           = errors.New("job not found")
	ErrAgentNotFound         = errors.New("agent not found")
	ErrInsufficientBalance   = errors.New("insufficient credit balance")
	ErrPricingTooHigh        = errors.New("agent pricing exceeds allowed maximum")
	ErrAgentJobStartFailed   = errors.New("agent failed to start job")
	ErrRefundRequestFailed   = errors.New("refund request failed")
	ErrInputHashMismatch     = errors.New("input hash mismatch")
	ErrPricingSchemaMismatch = errors.New("pricing schema mismatch")

	ErrJobNotRefundable = errors.New("job is not refundable in its current state")
	ErrForbidden        = errors.New("forbidden")
	ErrSyncInProgress   = errors.New("sync already in progress for job")

	// Collaborator-side failures. Sync treats these as "no update this round".
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrPurchaseNotFound        = errors.New("purchase not found")
	ErrUnknownEnumValue        = errors.New("unknown enum value")
)
