package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"grievance/libs/backend"
	"grievance/libs/mailer"
)

func TestBuildComplaintReceiptEmail(t *testing.T) {
	app := &App{cfg: &Config{Timezone: defaultTimezone}}
	receipt := backend.ComplaintReceipt{
		ID:                 "CMP-42",
		AssignedDepartment: "Sanitation <Ward 5>",
		Urgency:            "critical",
		SLADeadline:        "2025-03-02T04:30:00",
	}
	form := complaintForm{CitizenName: "Farhan", CitizenEmail: "farhan@example.in"}

	msg := app.buildComplaintReceiptEmail("en", receipt, form, "http://portal.test/status?id=CMP-42")

	if len(msg.To) != 1 || msg.To[0] != "farhan@example.in" {
		t.Fatalf("wrong recipients: %v", msg.To)
	}
	if !strings.Contains(msg.Subject, "CMP-42") {
		t.Errorf("subject should contain complaint id, got %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "Dear Farhan,") {
		t.Error("body should greet the citizen")
	}
	if !strings.Contains(msg.HTML, "Sanitation &lt;Ward 5&gt;") {
		t.Error("department should be escaped in the html body")
	}
	if !strings.Contains(msg.HTML, "02 Mar 2025 10:00 IST") || !strings.Contains(msg.Text, "02 Mar 2025 10:00 IST") {
		t.Error("deadline should be shown in portal time")
	}
	if !strings.Contains(msg.Text, "http://portal.test/status?id=CMP-42") {
		t.Error("text body should contain the status link")
	}
	if msg.Tags["kind"] != "complaint_receipt" {
		t.Errorf("unexpected tags: %v", msg.Tags)
	}
}

type chanProvider struct {
	sent chan mailer.Message
}

func (p *chanProvider) Name() string { return "chan" }

func (p *chanProvider) Send(ctx context.Context, msg mailer.Message) (mailer.SendResult, error) {
	p.sent <- msg
	return mailer.SendResult{ProviderMessageID: "msg-1"}, nil
}

func TestSendComplaintReceiptInBackground(t *testing.T) {
	provider := &chanProvider{sent: make(chan mailer.Message, 1)}
	app := &App{
		cfg:    &Config{Timezone: defaultTimezone},
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		mailer: mailer.New(provider, "noreply@grievance.test"),
	}

	app.sendComplaintReceipt("hi", backend.ComplaintReceipt{ID: "CMP-7"}, complaintForm{CitizenName: "Ravi", CitizenEmail: "ravi@example.in"}, "http://portal.test/status?id=CMP-7")

	select {
	case msg := <-provider.sent:
		if msg.From != "noreply@grievance.test" {
			t.Errorf("expected default sender, got %q", msg.From)
		}
		if msg.Subject != tf("hi", "email_receipt_subject", "CMP-7") {
			t.Errorf("expected hindi subject, got %q", msg.Subject)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receipt was not sent")
	}
}

func TestSendComplaintReceiptSkipsWithoutEmail(t *testing.T) {
	provider := &chanProvider{sent: make(chan mailer.Message, 1)}
	app := &App{
		cfg:    &Config{Timezone: defaultTimezone},
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		mailer: mailer.New(provider, "noreply@grievance.test"),
	}

	app.sendComplaintReceipt("en", backend.ComplaintReceipt{ID: "CMP-8"}, complaintForm{CitizenName: "Anon"}, "")

	select {
	case <-provider.sent:
		t.Fatal("no receipt expected without an address")
	case <-time.After(50 * time.Millisecond):
	}
}
