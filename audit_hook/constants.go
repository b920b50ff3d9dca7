package audithook

// Action constants for audit events.
const (
	// Payment actions
	ActionPaymentPlaced   = "payment.placed"
	ActionPaymentMerged   = "payment.merged"
	ActionPaymentRefunded = "payment.refunded"
	ActionPaymentReviewed = "payment.reviewed"

	// Bucket actions
	ActionBucketFrozen    = "bucket.frozen"
	ActionBucketApproved  = "bucket.approved"
	ActionBucketProcessed = "bucket.processed"

	// Payout actions
	ActionPayoutReleased = "payout.released"
	ActionPayoutFailed   = "payout.failed"

	// Configuration actions
	ActionFeeChanged = "fee.changed"

	// Access actions
	ActionAccessDenied = "access.denied"
)

// Resource constants for audit events.
const (
	ResourcePayment = "payment"
	ResourceBucket  = "bucket"
	ResourcePayout  = "payout"
	ResourceFee     = "fee"
	ResourceRole    = "role"
)

// Category constants for audit events.
const (
	CategoryPayment    = "payment"
	CategorySettlement = "settlement"
	CategoryPayout     = "payout"
	CategoryConfig     = "config"
	CategoryAccess     = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
