package mail

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
)

func TestRenderWelcomeIncludesCodeAndName(t *testing.T) {
	msg, err := render(TemplateWelcome, map[string]string{
		"otp":           "042137",
		"givenName":     "Ada",
		"expiryMinutes": "5",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if msg.Subject == "" {
		t.Fatal("expected non-empty subject")
	}
	if !strings.Contains(msg.Body, "042137") {
		t.Errorf("body missing code: %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "Ada") {
		t.Errorf("body missing given name: %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "5 minutes") {
		t.Errorf("body missing expiry: %q", msg.Body)
	}
}

func TestRenderLoginWithoutOptionalFields(t *testing.T) {
	msg, err := render(TemplateLogin, map[string]string{"otp": "000000"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if !strings.Contains(msg.Body, "000000") {
		t.Errorf("body missing code: %q", msg.Body)
	}
	if strings.Contains(msg.Body, "expires in  minutes") {
		t.Errorf("empty expiry leaked into body: %q", msg.Body)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := render("otp_unheard_of", map[string]string{"otp": "123456"})
	if !errors.Is(err, errUnknownTemplate) {
		t.Fatalf("expected errUnknownTemplate, got %v", err)
	}
}

func TestLogSenderReturnsMessageID(t *testing.T) {
	var buf bytes.Buffer
	sender := &LogSender{Logger: log.New(&buf, "", 0)}

	id, err := sender.Send(context.Background(), TemplateLogin, "a@example.com", map[string]string{"otp": "314159"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty message id")
	}
	if !strings.Contains(buf.String(), "314159") {
		t.Errorf("log output missing code: %q", buf.String())
	}
	if !strings.Contains(buf.String(), id) {
		t.Errorf("log output missing message id %q", id)
	}
}
