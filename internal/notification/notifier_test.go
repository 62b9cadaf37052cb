package notification

import (
	"Go2NetGuard/internal/config"
	"net/smtp"
	"strings"
	"testing"
)

func TestRecipients(t *testing.T) {
	got := Recipients(" soc@example.com, ,oncall@example.com ")
	if len(got) != 2 || got[0] != "soc@example.com" || got[1] != "oncall@example.com" {
		t.Fatalf("unexpected recipients: %v", got)
	}
}

func TestNewEmailNotifierRequiresHost(t *testing.T) {
	if _, err := NewEmailNotifier(config.SMTPConfig{To: "a@example.com"}); err == nil {
		t.Fatal("expected error without host")
	}
}

func TestSendBuildsHTMLMessage(t *testing.T) {
	n, err := NewEmailNotifier(config.SMTPConfig{Host: "mail.local", From: "ids@example.com", To: "a@example.com,b@example.com"})
	if err != nil {
		t.Fatalf("NewEmailNotifier: %v", err)
	}
	var gotAddr string
	var gotTo []string
	var gotMsg string
	n.(*EmailNotifier).sendFn = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}
	if err := n.Send("Alert", "<p>hi</p>"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "mail.local:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if len(gotTo) != 2 {
		t.Errorf("recipients = %v", gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: Alert\r\n") || !strings.HasSuffix(gotMsg, "<p>hi</p>") {
		t.Errorf("unexpected message:\n%s", gotMsg)
	}
}
