package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/develper21/kyvro/internal/config"
	"github.com/develper21/kyvro/internal/secrets"
)

// Sender is the delivery seam consumed by the dispatcher.
type Sender interface {
	SendTemplate(ctx context.Context, req SendRequest) SendResult
}

// Client performs one delivery attempt per call against the Cloud API.
// Retry policy lives with the caller, never here.
type Client struct {
	cfg        *config.WhatsAppConfig
	secrets    secrets.Store
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg *config.WhatsAppConfig, store secrets.Store, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		secrets: store,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SendTemplate delivers one templated message. Every expected failure
// category comes back as a value; an error is never returned to the
// caller through panics or exceptions.
func (c *Client) SendTemplate(ctx context.Context, req SendRequest) SendResult {
	cred, err := c.secrets.GetCredential(ctx)
	if err != nil {
		return SendResult{Kind: KindUnauthorized, Message: fmt.Sprintf("credential lookup failed: %v", err)}
	}
	if cred == nil {
		return SendResult{Kind: KindUnauthorized, Message: "no credential available"}
	}

	payload := templateMessagePayload{
		MessagingProduct: "whatsapp",
		To:               req.RecipientPhone,
		Type:             "template",
		Template: templatePayload{
			Name:     req.TemplateName,
			Language: languagePayload{Code: req.LanguageCode},
		},
	}
	if len(req.VariableBindings) > 0 {
		parameters := make([]parameterPayload, len(req.VariableBindings))
		for i, binding := range req.VariableBindings {
			parameters[i] = parameterPayload{Type: "text", Text: binding}
		}
		payload.Template.Components = []componentPayload{
			{Type: "body", Parameters: parameters},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{Kind: KindUnknown, Message: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.cfg.BaseURL, c.cfg.APIVersion, cred.PhoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SendResult{Kind: KindUnknown, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Timeouts and connection failures: no response was received.
		return SendResult{Kind: KindNetworkUnreachable, Message: err.Error()}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", zap.Error(closeErr))
		}
	}()

	var decoded sendResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&decoded)

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		if decodeErr != nil || len(decoded.Messages) == 0 {
			return SendResult{Kind: KindUnknown, Message: "provider accepted but returned no message id"}
		}
		return SendResult{OK: true, ProviderMessageID: decoded.Messages[0].ID}
	}

	result := SendResult{
		Kind:    kindForStatus(resp.StatusCode),
		Message: fmt.Sprintf("provider returned status %d", resp.StatusCode),
	}
	if decodeErr == nil && decoded.Error != nil {
		result.Message = decoded.Error.Message
	}
	if result.Kind == KindRateLimited {
		result.RetryAfter = retryAfter(resp.Header)
	}

	c.logger.Debug("Send attempt failed",
		zap.String("kind", string(result.Kind)),
		zap.Int("status", resp.StatusCode),
		zap.String("to", req.RecipientPhone))

	return result
}

// ListTemplates fetches the account's approved templates.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	cred, err := c.secrets.GetCredential(ctx)
	if err != nil {
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}
	if cred == nil {
		return nil, fmt.Errorf("no credential available")
	}

	url := fmt.Sprintf("%s/%s/%s/message_templates", c.cfg.BaseURL, c.cfg.APIVersion, cred.AccountID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", zap.Error(closeErr))
		}
	}()

	var decoded templateListResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode template list: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if decoded.Error != nil {
			return nil, fmt.Errorf("provider rejected template list: %s", decoded.Error.Message)
		}
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	return decoded.Data, nil
}

func retryAfter(header http.Header) time.Duration {
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
