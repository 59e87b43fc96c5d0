package main

import (
	"math"
	"strings"
	"time"

	"grievance/libs/backend"
)

// remainingTime is the broken-down SLA time left. Overdue is set for any
// non-positive value; Known is false when the backend sent nothing.
type remainingTime struct {
	Known   bool
	Overdue bool
	Days    int
	Hours   int
}

func computeRemainingTime(hours *float64) remainingTime {
	if hours == nil || math.IsNaN(*hours) {
		return remainingTime{}
	}
	h := *hours
	if h <= 0 {
		return remainingTime{Known: true, Overdue: true}
	}
	return remainingTime{
		Known: true,
		Days:  int(math.Floor(h / 24)),
		Hours: int(math.Floor(math.Mod(h, 24))),
	}
}

func formatRemainingTime(lang string, hours *float64) string {
	remaining := computeRemainingTime(hours)
	switch {
	case !remaining.Known:
		return t(lang, "common_dash")
	case remaining.Overdue:
		return t(lang, "status_overdue")
	default:
		return tf(lang, "remaining_days_hours", remaining.Days, remaining.Hours)
	}
}

// Layouts the backend uses for timestamps. Zoneless values are UTC.
var backendTimestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseBackendTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range backendTimestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// formatTimestamp renders a backend timestamp in the portal time zone. Values
// that do not parse are shown as received.
func (a *App) formatTimestamp(raw string) string {
	parsed, ok := parseBackendTimestamp(raw)
	if !ok {
		if strings.TrimSpace(raw) == "" {
			return "-"
		}
		return raw
	}
	return parsed.In(a.timeLocation()).Format("02 Jan 2006 15:04 MST")
}

type complaintStatusView struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	StatusLabel     string `json:"status_label"`
	Department      string `json:"department"`
	Urgency         string `json:"urgency"`
	UrgencyLabel    string `json:"urgency_label"`
	Description     string `json:"description"`
	RemainingTime   string `json:"remaining_time"`
	Overdue         bool   `json:"overdue"`
	LastUpdate      string `json:"last_update"`
	EscalationLevel string `json:"escalation_level"`
	EscalationLabel string `json:"escalation_label"`
	Escalated       bool   `json:"escalated"`
}

func (a *App) buildStatusView(lang string, status *backend.ComplaintStatus) complaintStatusView {
	remaining := computeRemainingTime(status.TimeRemainingHours)
	escalation := strings.TrimSpace(status.EscalationLevel)
	return complaintStatusView{
		ID:              status.ID,
		Status:          status.Status,
		StatusLabel:     statusLabel(lang, status.Status),
		Department:      status.CurrentDepartment,
		Urgency:         status.Urgency,
		UrgencyLabel:    urgencyLabel(lang, status.Urgency),
		Description:     status.Description,
		RemainingTime:   formatRemainingTime(lang, status.TimeRemainingHours),
		Overdue:         remaining.Overdue,
		LastUpdate:      a.formatTimestamp(status.LastUpdate),
		EscalationLevel: escalation,
		EscalationLabel: escalationLabel(lang, escalation),
		Escalated:       escalation != "" && escalation != backend.EscalationNone,
	}
}
