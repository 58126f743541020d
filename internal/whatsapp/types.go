package whatsapp

import "time"

// SendRequest is one templated-message delivery attempt.
type SendRequest struct {
	RecipientPhone   string
	TemplateName     string
	LanguageCode     string
	VariableBindings []string
}

// SendResult is the normalized outcome of a single attempt. Expected
// failures are values, not errors, so the caller's retry policy can
// inspect Kind.
type SendResult struct {
	OK                bool
	ProviderMessageID string
	Kind              ErrorKind
	Message           string
	// RetryAfter carries the provider's advertised backoff window on a
	// rate-limit response, zero when not advertised.
	RetryAfter time.Duration
}

// Template is a provider-approved message skeleton.
type Template struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Category string `json:"category"`
	Status   string `json:"status"`
}

// Graph API wire shapes.

type templateMessagePayload struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Template         templatePayload `json:"template"`
}

type templatePayload struct {
	Name       string             `json:"name"`
	Language   languagePayload    `json:"language"`
	Components []componentPayload `json:"components,omitempty"`
}

type languagePayload struct {
	Code string `json:"code"`
}

type componentPayload struct {
	Type       string             `json:"type"`
	Parameters []parameterPayload `json:"parameters"`
}

type parameterPayload struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type templateListResponse struct {
	Data  []Template `json:"data"`
	Error *apiError  `json:"error,omitempty"`
}
