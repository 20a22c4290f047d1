package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

func TestSMSConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  SMSConfig
		wantErr bool
	}{
		{"empty", SMSConfig{}, true},
		{"bad scheme", SMSConfig{GatewayURL: "ftp://sms.example.com"}, true},
		{"valid", SMSConfig{GatewayURL: "https://sms.example.com/send"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSMSNotifierDeliver(t *testing.T) {
	var got smsRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n, err := NewSMSNotifier(SMSConfig{GatewayURL: server.URL, APIKey: "secret", From: "Nursery"})
	if err != nil {
		t.Fatalf("NewSMSNotifier failed: %v", err)
	}
	if n.Name() != models.ChannelSMS {
		t.Errorf("Name() = %s, want sms", n.Name())
	}

	msg := testMessage()
	msg.Contact = "+15550100"
	if err := n.Deliver(context.Background(), msg); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if auth != "Bearer secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.To != "+15550100" || got.From != "Nursery" {
		t.Errorf("unexpected request: %+v", got)
	}
	if got.Message != strings.TrimSpace(msg.Body) {
		t.Errorf("Message = %q", got.Message)
	}
}

func TestSMSNotifierGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	n, err := NewSMSNotifier(SMSConfig{GatewayURL: server.URL})
	if err != nil {
		t.Fatalf("NewSMSNotifier failed: %v", err)
	}

	msg := testMessage()
	msg.Contact = "+15550100"
	err = n.Deliver(context.Background(), msg)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestSMSNotifierRequiresContact(t *testing.T) {
	n, err := NewSMSNotifier(SMSConfig{GatewayURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewSMSNotifier failed: %v", err)
	}
	msg := testMessage()
	msg.Contact = ""
	if err := n.Deliver(context.Background(), msg); !errors.Is(err, ErrContactRequired) {
		t.Errorf("expected ErrContactRequired, got %v", err)
	}
}

func TestSMSText(t *testing.T) {
	msg := &Message{Title: "Title only", Test: true}
	if got := smsText(msg); got != "[TEST] Title only" {
		t.Errorf("smsText = %q", got)
	}

	msg = &Message{Body: strings.Repeat("a", 600)}
	got := smsText(msg)
	if len([]rune(got)) != maxSMSLength || !strings.HasSuffix(got, "...") {
		t.Errorf("expected truncated text of %d runes, got %d", maxSMSLength, len([]rune(got)))
	}
}
