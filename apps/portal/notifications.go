package main

import (
	"context"
	"fmt"
	"html"
	"time"

	"grievance/libs/backend"
	"grievance/libs/mailer"
)

const receiptEmailTimeout = 30 * time.Second

func (a *App) buildComplaintReceiptEmail(lang string, receipt backend.ComplaintReceipt, form complaintForm, statusURL string) mailer.Message {
	subject := tf(lang, "email_receipt_subject", receipt.ID)
	greeting := tf(lang, "email_receipt_greeting", form.CitizenName)
	deadline := a.formatTimestamp(receipt.SLADeadline)

	htmlBody := fmt.Sprintf(`
		<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto; line-height: 1.6; color: #333;">
			<h2>%s</h2>
			<p>%s</p>
			<table style="border-collapse: collapse; margin: 20px 0;">
				<tr><td style="padding: 4px 12px 4px 0; color: #666;">%s</td><td><strong>%s</strong></td></tr>
				<tr><td style="padding: 4px 12px 4px 0; color: #666;">%s</td><td>%s</td></tr>
				<tr><td style="padding: 4px 12px 4px 0; color: #666;">%s</td><td>%s</td></tr>
				<tr><td style="padding: 4px 12px 4px 0; color: #666;">%s</td><td>%s</td></tr>
			</table>
			<p style="margin: 30px 0;">
				<a href="%s" style="background-color: #1a5fb4; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; font-weight: bold; display: inline-block;">
					%s
				</a>
			</p>
			<hr style="margin-top: 40px; border: 0; border-top: 1px solid #eee;" />
			<p style="font-size: 12px; color: #999; text-align: center;">%s</p>
		</div>
	`,
		html.EscapeString(greeting),
		html.EscapeString(t(lang, "email_receipt_body")),
		html.EscapeString(t(lang, "label_complaint_id")), html.EscapeString(receipt.ID),
		html.EscapeString(t(lang, "label_department")), html.EscapeString(receipt.AssignedDepartment),
		html.EscapeString(t(lang, "label_urgency")), html.EscapeString(urgencyLabel(lang, receipt.Urgency)),
		html.EscapeString(t(lang, "label_sla_deadline")), html.EscapeString(deadline),
		html.EscapeString(statusURL),
		html.EscapeString(t(lang, "email_receipt_button")),
		html.EscapeString(t(lang, "email_receipt_footer")),
	)

	text := fmt.Sprintf(
		"%s\n\n%s\n\n%s: %s\n%s: %s\n%s: %s\n%s: %s\n\n%s\n",
		greeting,
		t(lang, "email_receipt_body"),
		t(lang, "label_complaint_id"), receipt.ID,
		t(lang, "label_department"), receipt.AssignedDepartment,
		t(lang, "label_urgency"), urgencyLabel(lang, receipt.Urgency),
		t(lang, "label_sla_deadline"), deadline,
		statusURL,
	)

	return mailer.Message{
		To:      []string{form.CitizenEmail},
		Subject: subject,
		HTML:    htmlBody,
		Text:    text,
		Tags:    map[string]string{"kind": "complaint_receipt"},
	}
}

// sendComplaintReceipt mails the receipt in the background. The request that
// created the complaint does not wait for it and never sees its failure.
func (a *App) sendComplaintReceipt(lang string, receipt backend.ComplaintReceipt, form complaintForm, statusURL string) {
	if a.mailer == nil || form.CitizenEmail == "" {
		return
	}
	msg := a.buildComplaintReceiptEmail(lang, receipt, form, statusURL)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), receiptEmailTimeout)
		defer cancel()
		result, err := a.mailer.Send(ctx, msg)
		if err != nil {
			a.log.Error("failed to send complaint receipt", "complaint_id", receipt.ID, "err", err)
			return
		}
		a.log.Info("sent complaint receipt", "complaint_id", receipt.ID, "provider_message_id", result.ProviderMessageID)
	}()
}
