// Package whatsapp implements a single-attempt templated-message delivery
// client for the WhatsApp Business Cloud API.
package whatsapp

// ErrorKind is the closed classification every provider failure is
// normalized into at the client boundary. Raw provider error bodies never
// leave this package.
type ErrorKind string

const (
	KindInvalidRequest     ErrorKind = "invalid_request"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindForbidden          ErrorKind = "forbidden"
	KindNotFound           ErrorKind = "not_found"
	KindRateLimited        ErrorKind = "rate_limited"
	KindProviderInternal   ErrorKind = "provider_internal"
	KindNetworkUnreachable ErrorKind = "network_unreachable"
	KindUnknown            ErrorKind = "unknown"
)

// Retryable reports whether a later attempt can plausibly succeed.
// Client-side errors (bad request, auth, missing template) are permanent
// and must not burn retry budget.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindProviderInternal, KindNetworkUnreachable:
		return true
	default:
		return false
	}
}

func kindForStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == 400:
		return KindInvalidRequest
	case statusCode == 401:
		return KindUnauthorized
	case statusCode == 403:
		return KindForbidden
	case statusCode == 404:
		return KindNotFound
	case statusCode == 429:
		return KindRateLimited
	case statusCode >= 500 && statusCode <= 599:
		return KindProviderInternal
	default:
		return KindUnknown
	}
}
