package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"salesops_backend/platform/logger"
)

type testConfig struct {
	url string
	key string
}

func (c testConfig) GetCRMAPIURL() string        { return c.url }
func (c testConfig) GetCRMAPIKey() string        { return c.key }
func (c testConfig) GetCRMStageAttended() string { return "atendido" }
func (c testConfig) IsCRMEnabled() bool          { return c.url != "" }

func TestFindContactByPhone(t *testing.T) {
	var gotAuth, gotPhone string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/contacts" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotPhone = r.URL.Query().Get("phone")
		json.NewEncoder(w).Encode(map[string]any{
			"contacts": []Contact{{ID: "c-81", Name: "Bruno Lima", Phone: "5511988776655"}},
		})
	}))
	defer srv.Close()

	client := NewClient(testConfig{url: srv.URL, key: "tok"}, logger.New("development"))
	contact, err := client.FindContactByPhone(context.Background(), "5511988776655")
	if err != nil {
		t.Fatalf("FindContactByPhone: %v", err)
	}

	if contact == nil || contact.ID != "c-81" {
		t.Fatalf("contact = %+v, want c-81", contact)
	}
	if gotPhone != "5511988776655" {
		t.Errorf("phone query = %q", gotPhone)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", gotAuth)
	}
}

func TestFindContactByPhoneMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"contacts": []Contact{}})
	}))
	defer srv.Close()

	client := NewClient(testConfig{url: srv.URL}, logger.New("development"))
	contact, err := client.FindContactByPhone(context.Background(), "5511988776655")
	if err != nil {
		t.Fatalf("FindContactByPhone: %v", err)
	}
	if contact != nil {
		t.Errorf("contact = %+v, want nil for an unknown phone", contact)
	}
}

func TestFindContactRetriesTransientErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"contacts": []Contact{{ID: "c-81"}}})
	}))
	defer srv.Close()

	client := NewClient(testConfig{url: srv.URL}, logger.New("development"))
	contact, err := client.FindContactByPhone(context.Background(), "5511988776655")
	if err != nil {
		t.Fatalf("FindContactByPhone: %v", err)
	}
	if contact == nil || attempts.Load() != 3 {
		t.Errorf("contact = %+v after %d attempts, want success on the third", contact, attempts.Load())
	}
}

func TestCreatesNeverRetry(t *testing.T) {
	tests := []struct {
		name string
		call func(*Client) error
	}{
		{"contact", func(c *Client) error {
			_, err := c.CreateContact(context.Background(), Contact{Name: "Bruno", Phone: "5511988776655"})
			return err
		}},
		{"deal", func(c *Client) error {
			_, err := c.CreateDeal(context.Background(), Deal{Title: "Bruno Lima - Meta Ads", ContactID: "c-81"})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer srv.Close()

			client := NewClient(testConfig{url: srv.URL}, logger.New("development"))
			if err := tt.call(client); err == nil {
				t.Fatal("create should fail on a server error")
			}
			if attempts.Load() != 1 {
				t.Errorf("attempts = %d, creates must not retry", attempts.Load())
			}
		})
	}
}

func TestUpdateDealStage(t *testing.T) {
	var gotPath, gotStage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		var payload struct {
			Stage string `json:"stage"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		gotStage = payload.Stage
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(testConfig{url: srv.URL}, logger.New("development"))
	if err := client.UpdateDealStage(context.Background(), "d-7", "atendido"); err != nil {
		t.Fatalf("UpdateDealStage: %v", err)
	}
	if gotPath != "PUT /deals/d-7/stage" {
		t.Errorf("request = %q", gotPath)
	}
	if gotStage != "atendido" {
		t.Errorf("stage = %q, want atendido", gotStage)
	}
}

func TestClientErrorSurfacesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"phone already registered"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig{url: srv.URL}, logger.New("development"))
	_, err := client.CreateContact(context.Background(), Contact{Phone: "5511988776655"})
	if err == nil {
		t.Fatal("CreateContact should fail")
	}
	if !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "phone already registered") {
		t.Errorf("err = %v, want status and body surfaced", err)
	}
}

func TestDisabledIntegrationIsNil(t *testing.T) {
	if client := NewClient(testConfig{}, logger.New("development")); client != nil {
		t.Fatal("NewClient should return nil when the integration is disabled")
	}
}
