package middleware

// Error codes shared with the handler layer.
const (
	ErrorCodeInternal          = "INTERNAL_ERROR"
	ErrorCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrorCodeRequestTimeout    = "REQUEST_TIMEOUT"
)

const (
	errorMessageInternal          = "An internal error occurred"
	errorMessageRateLimitExceeded = "Too many requests"
	errorMessageRequestTimeout    = "Request timeout"
)
