package errors

// ErrorCode represents a specific error code in the system.
type ErrorCode string

const (
	// GeneralInternalServerError represents a generic internal server error.
	GeneralInternalServerError ErrorCode = "general_internal_server_error"
	// GeneralBadRequestError represents a generic bad request error.
	GeneralBadRequestError ErrorCode = "general_bad_request_error"
	// GeneralNotFoundError represents a generic not found error.
	GeneralNotFoundError ErrorCode = "general_not_found_error"
	// GeneralRepositoryError represents a generic repository error.
	GeneralRepositoryError ErrorCode = "general_repository_error"

	// InvariantViolation represents an impossible matching precondition.
	// The enclosing transaction must be aborted; continuing would corrupt
	// the book state.
	InvariantViolation ErrorCode = "invariant_violation"
	// LiquidityShortfall represents not enough resting liquidity to
	// complete an instant fill. Non-fatal, degrades to a resting order.
	LiquidityShortfall ErrorCode = "liquidity_shortfall"
	// PayoutFailure represents an external payment rail error. The
	// execution marker is rolled back and the obligation retried on the
	// next sweep.
	PayoutFailure ErrorCode = "payout_failure"
	// DustPayment represents a payout rejected by the rail as below its
	// minimum. Terminal, success-like, never retried.
	DustPayment ErrorCode = "dust_payment"
	// DuplicateAttempt represents a second attempt at an already-consumed
	// resource, such as finishing a finished deposit.
	DuplicateAttempt ErrorCode = "duplicate_attempt"

	// BitcoinRPCError represents an error talking to the bitcoind RPC.
	BitcoinRPCError ErrorCode = "bitcoin_rpc_error"
	// WalletRPCError represents an error talking to the headless wallet RPC.
	WalletRPCError ErrorCode = "wallet_rpc_error"
	// MessagingError represents an error publishing a device message.
	MessagingError ErrorCode = "messaging_error"
	// RedisPublishError represents an error mirroring rates to Redis.
	RedisPublishError ErrorCode = "redis_publish_error"
)

// Severity represents the severity level of an error.
type Severity string

const (
	// SeverityCritical indicates a critical error that requires immediate attention.
	SeverityCritical Severity = "critical"
	// SeverityHigh indicates a high severity error that should be addressed promptly.
	SeverityHigh Severity = "high"
	// SeverityMedium indicates a medium severity error that should be addressed in due course.
	SeverityMedium Severity = "medium"
	// SeverityLow indicates a low severity error that can be addressed at a later time.
	SeverityLow Severity = "low"
)

// Category represents the category of an error.
type Category string

const (
	// CategoryDatabase indicates an error related to database operations.
	CategoryDatabase Category = "database"
	// CategoryExternal indicates an error related to external services or rails.
	CategoryExternal Category = "external"
	// CategoryValidation indicates an error related to validation of input data.
	CategoryValidation Category = "validation"
	// CategoryBusinessLogic indicates an error related to business logic processing.
	CategoryBusinessLogic Category = "business_logic"
	// CategoryUnknown indicates an unknown error category.
	CategoryUnknown Category = "unknown"
)
