package whatsapp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"salesops_backend/platform/logger"
)

type testConfig struct {
	url string
	key string
}

func (c testConfig) GetWhatsAppAPIURL() string { return c.url }
func (c testConfig) GetWhatsAppAPIKey() string { return c.key }
func (c testConfig) GetTeamGroupID() string    { return "5511999990000-group@g.us" }
func (c testConfig) IsWhatsAppEnabled() bool   { return c.url != "" }

type capturedSend struct {
	path string
	auth string
	body sendRequest
}

func captureServer(t *testing.T, status int, reply string) (*httptest.Server, *capturedSend) {
	t.Helper()
	captured := &capturedSend{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &captured.body)
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestSendMessageNormalizesPhone(t *testing.T) {
	srv, captured := captureServer(t, http.StatusOK, `{"code":"SUCCESS"}`)
	client := NewClient(testConfig{url: srv.URL, key: "secret"}, logger.New("development"))

	if err := client.SendMessage(context.Background(), "(11) 98877-6655", "Olá Bruno"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if captured.path != "/send/message" {
		t.Errorf("path = %q, want /send/message", captured.path)
	}
	if captured.body.Phone != "5511988776655" {
		t.Errorf("phone = %q, want 5511988776655", captured.body.Phone)
	}
	if captured.body.Message != "Olá Bruno" {
		t.Errorf("message = %q", captured.body.Message)
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("secret"))
	if captured.auth != want {
		t.Errorf("Authorization = %q, want %q", captured.auth, want)
	}
}

func TestSendGroupMessageKeepsJID(t *testing.T) {
	srv, captured := captureServer(t, http.StatusOK, "")
	client := NewClient(testConfig{url: srv.URL}, logger.New("development"))

	if err := client.SendGroupMessage(context.Background(), "5511999990000-group@g.us", "alerta"); err != nil {
		t.Fatalf("SendGroupMessage: %v", err)
	}
	if captured.body.Phone != "5511999990000-group@g.us" {
		t.Errorf("phone = %q, group JIDs must pass through untouched", captured.body.Phone)
	}
	if captured.auth != "" {
		t.Errorf("Authorization = %q, want none without an api key", captured.auth)
	}
}

func TestSendSurfacesGatewayErrors(t *testing.T) {
	srv, _ := captureServer(t, http.StatusTooManyRequests, "queue full")
	client := NewClient(testConfig{url: srv.URL}, logger.New("development"))

	err := client.SendMessage(context.Background(), "5511988776655", "oi")
	if err == nil {
		t.Fatal("SendMessage should fail on a gateway error")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "queue full") {
		t.Errorf("err = %v, want status and body surfaced", err)
	}
}

func TestDisabledIntegrationIsNil(t *testing.T) {
	client := NewClient(testConfig{}, logger.New("development"))
	if client != nil {
		t.Fatal("NewClient should return nil when the integration is disabled")
	}
	if err := client.SendMessage(context.Background(), "5511988776655", "oi"); err != nil {
		t.Errorf("nil client send = %v, want nil", err)
	}
}
