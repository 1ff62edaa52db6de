package handler

const (
	errInternalServer   = "Internal server error"
	errJobNotFound      = "Job not found"
	errJobNotRefundable = "Job cannot be refunded in its current state"
	errRefundFailed     = "Refund request failed, try again later"
	errSyncInProgress   = "Job is already being synced"
)
