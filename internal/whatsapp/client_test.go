package whatsapp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/develper21/kyvro/internal/config"
	"github.com/develper21/kyvro/internal/secrets"
	"github.com/develper21/kyvro/internal/whatsapp"
)

func testCredential() *secrets.Credential {
	return &secrets.Credential{
		AccountID:     "acct-1",
		PhoneNumberID: "phone-1",
		AccessToken:   "test-token",
	}
}

func newTestClient(baseURL string, cred *secrets.Credential, timeoutSeconds int) *whatsapp.Client {
	cfg := &config.WhatsAppConfig{
		BaseURL:    baseURL,
		APIVersion: "v19.0",
		Timeout:    timeoutSeconds,
	}
	return whatsapp.NewClient(cfg, &secrets.StaticStore{Credential: cred}, zap.NewNop())
}

func TestClient_SendTemplate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v19.0/phone-1/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "whatsapp", payload["messaging_product"])
		assert.Equal(t, "15551234567", payload["to"])
		assert.Equal(t, "template", payload["type"])

		template := payload["template"].(map[string]any)
		assert.Equal(t, "order_update", template["name"])
		components := template["components"].([]any)
		require.Len(t, components, 1)
		parameters := components[0].(map[string]any)["parameters"].([]any)
		require.Len(t, parameters, 2)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.abc123"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, testCredential(), 30)
	result := client.SendTemplate(context.Background(), whatsapp.SendRequest{
		RecipientPhone:   "15551234567",
		TemplateName:     "order_update",
		LanguageCode:     "en_US",
		VariableBindings: []string{"Ada", "#4521"},
	})

	assert.True(t, result.OK)
	assert.Equal(t, "wamid.abc123", result.ProviderMessageID)
}

func TestClient_SendTemplate_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantKind   whatsapp.ErrorKind
		retryable  bool
	}{
		{"bad request", http.StatusBadRequest, whatsapp.KindInvalidRequest, false},
		{"unauthorized", http.StatusUnauthorized, whatsapp.KindUnauthorized, false},
		{"forbidden", http.StatusForbidden, whatsapp.KindForbidden, false},
		{"not found", http.StatusNotFound, whatsapp.KindNotFound, false},
		{"rate limited", http.StatusTooManyRequests, whatsapp.KindRateLimited, true},
		{"server error", http.StatusInternalServerError, whatsapp.KindProviderInternal, true},
		{"bad gateway", http.StatusBadGateway, whatsapp.KindProviderInternal, true},
		{"teapot", http.StatusTeapot, whatsapp.KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(`{"error":{"message":"provider error","type":"OAuthException","code":1}}`))
			}))
			defer server.Close()

			client := newTestClient(server.URL, testCredential(), 30)
			result := client.SendTemplate(context.Background(), whatsapp.SendRequest{
				RecipientPhone: "15551234567",
				TemplateName:   "order_update",
				LanguageCode:   "en_US",
			})

			assert.False(t, result.OK)
			assert.Equal(t, tt.wantKind, result.Kind)
			assert.Equal(t, tt.retryable, result.Kind.Retryable())
			assert.Equal(t, "provider error", result.Message)
		})
	}
}

func TestClient_SendTemplate_RetryAfterHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit hit","type":"OAuthException","code":80007}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, testCredential(), 30)
	result := client.SendTemplate(context.Background(), whatsapp.SendRequest{
		RecipientPhone: "15551234567",
		TemplateName:   "order_update",
		LanguageCode:   "en_US",
	})

	assert.Equal(t, whatsapp.KindRateLimited, result.Kind)
	assert.Equal(t, 17*time.Second, result.RetryAfter)
}

func TestClient_SendTemplate_NoCredential(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil, 30)
	result := client.SendTemplate(context.Background(), whatsapp.SendRequest{
		RecipientPhone: "15551234567",
		TemplateName:   "order_update",
		LanguageCode:   "en_US",
	})

	assert.False(t, result.OK)
	assert.Equal(t, whatsapp.KindUnauthorized, result.Kind)
	assert.Equal(t, 0, requests, "no network traffic without a credential")
}

func TestClient_SendTemplate_NetworkUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClient(server.URL, testCredential(), 30)
	result := client.SendTemplate(context.Background(), whatsapp.SendRequest{
		RecipientPhone: "15551234567",
		TemplateName:   "order_update",
		LanguageCode:   "en_US",
	})

	assert.False(t, result.OK)
	assert.Equal(t, whatsapp.KindNetworkUnreachable, result.Kind)
}

func TestClient_SendTemplate_Timeout(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		server.Close()
	}()

	client := newTestClient(server.URL, testCredential(), 1)
	result := client.SendTemplate(context.Background(), whatsapp.SendRequest{
		RecipientPhone: "15551234567",
		TemplateName:   "order_update",
		LanguageCode:   "en_US",
	})

	assert.False(t, result.OK)
	assert.Equal(t, whatsapp.KindNetworkUnreachable, result.Kind)
}

func TestClient_ListTemplates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v19.0/acct-1/message_templates", r.URL.Path)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":[
			{"id":"t1","name":"order_update","language":"en_US","category":"UTILITY","status":"APPROVED"},
			{"id":"t2","name":"promo_blast","language":"es_MX","category":"MARKETING","status":"PENDING"}
		]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, testCredential(), 30)
	templates, err := client.ListTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "order_update", templates[0].Name)
	assert.Equal(t, "APPROVED", templates[0].Status)
}

func TestClient_ListTemplates_NoCredential(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0", nil, 30)
	_, err := client.ListTemplates(context.Background())
	assert.Error(t, err)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		cc   string
		want string
	}{
		{"already canonical", "15551234567", "1", "15551234567"},
		{"plus prefix", "+1 (555) 123-4567", "1", "15551234567"},
		{"formatting stripped", "555-123-4567", "1", "15551234567"},
		{"international 00 prefix", "0049301234567", "1", "49301234567"},
		{"national leading zero", "05551234567", "49", "495551234567"},
		{"empty", "  ", "1", ""},
		{"plus keeps foreign cc", "+447911123456", "1", "447911123456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, whatsapp.NormalizePhone(tt.raw, tt.cc))
		})
	}
}
