package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown   ErrorCode = 1
	ErrCodeCancelled ErrorCode = 2

	// Data/load errors (100-199) - fatal, detected before any simulation begins
	ErrCodeDataNotFound          ErrorCode = 100
	ErrCodeNonMonotonicTimestamp ErrorCode = 101
	ErrCodeDuplicateTimestamp    ErrorCode = 102
	ErrCodeInvalidBar            ErrorCode = 103
	ErrCodeMissingField          ErrorCode = 104
	ErrCodeEmptyFeed             ErrorCode = 105
	ErrCodeQueryFailed           ErrorCode = 106
	ErrCodeIndexOutOfRange       ErrorCode = 107

	// Validation errors (200-299)
	ErrCodeInvalidParameter ErrorCode = 200
	ErrCodeInvalidPeriod    ErrorCode = 201
	ErrCodeInvalidOrder     ErrorCode = 202
	ErrCodeInvalidConfig    ErrorCode = 203
	ErrCodeInvalidType      ErrorCode = 204
	ErrCodeMissingParameter ErrorCode = 205

	// Policy errors (300-399) - rejected at submission, run continues
	ErrCodeNonPositiveQuantity ErrorCode = 300
	ErrCodeUnreadyIndicator    ErrorCode = 301
	ErrCodeUnknownSizing       ErrorCode = 302

	// Execution/liquidity errors (400-499) - order rejected, reported, not fatal
	ErrCodeInsufficientCash ErrorCode = 400
	ErrCodeOversell         ErrorCode = 401
	ErrCodeOrderExpired     ErrorCode = 402

	// Engine errors (500-599)
	ErrCodeEngineNotFinished ErrorCode = 500
	ErrCodeEngineReused      ErrorCode = 501
	ErrCodeNoPolicy          ErrorCode = 502

	// Indicator errors (600-699)
	ErrCodeIndicatorNotFound      ErrorCode = 600
	ErrCodeIndicatorAlreadyExists ErrorCode = 601

	// Sweep errors (700-799) - fatal before any worker is spawned
	ErrCodeEmptyGrid           ErrorCode = 700
	ErrCodeUnknownMetric       ErrorCode = 701
	ErrCodeWindowTooLarge      ErrorCode = 702
	ErrCodeInvalidWindowConfig ErrorCode = 703

	// Strategy errors (800-899)
	ErrCodeUnknownStrategy     ErrorCode = 800
	ErrCodeStrategyConfigError ErrorCode = 801

	// Ledger errors (900-999)
	ErrCodeLedgerWriteFailed  ErrorCode = 900
	ErrCodeLedgerExportFailed ErrorCode = 901
)
