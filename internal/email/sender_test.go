package email

import (
	"context"
	"strings"
	"testing"

	"salesops_backend/platform/logger"
)

type testConfig struct {
	host string
	from string
}

func (c testConfig) GetSMTPHost() string     { return c.host }
func (c testConfig) GetSMTPPort() int        { return 587 }
func (c testConfig) GetSMTPUser() string     { return "mailer" }
func (c testConfig) GetSMTPPassword() string { return "secret" }
func (c testConfig) GetSMTPFrom() string     { return c.from }
func (c testConfig) IsEmailEnabled() bool    { return c.host != "" && c.from != "" }

func TestNewSenderRequiresConfiguration(t *testing.T) {
	log := logger.New("development")

	if s := NewSender(testConfig{}, log); s != nil {
		t.Error("NewSender should return nil without SMTP settings")
	}
	if s := NewSender(testConfig{host: "smtp.exemplo.com.br"}, log); s != nil {
		t.Error("NewSender should return nil without a from address")
	}
	if s := NewSender(testConfig{host: "smtp.exemplo.com.br", from: "vendas@exemplo.com.br"}, log); s == nil {
		t.Error("NewSender should build a sender from full settings")
	}
}

func TestSendRejectsInvalidRecipient(t *testing.T) {
	s := NewSender(testConfig{host: "smtp.exemplo.com.br", from: "vendas@exemplo.com.br"}, logger.New("development"))

	err := s.Send(context.Background(), "not-an-address", "Oi", "corpo")
	if err == nil || !strings.Contains(err.Error(), "email to") {
		t.Fatalf("err = %v, want recipient rejection before any dial", err)
	}
}

func TestNilSenderIsSafe(t *testing.T) {
	var s *Sender
	if err := s.Send(context.Background(), "bruno@exemplo.com.br", "Oi", "corpo"); err != nil {
		t.Fatalf("nil sender Send: %v", err)
	}
}
