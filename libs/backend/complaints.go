package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// CreateComplaint submits a new complaint and returns the backend's receipt.
func (c *Client) CreateComplaint(ctx context.Context, payload ComplaintCreate) (*ComplaintReceipt, error) {
	if strings.TrimSpace(payload.Location.Country) == "" {
		payload.Location.Country = "India"
	}
	var out struct {
		Complaint *ComplaintReceipt `json:"complaint"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/complaints", "/api/complaints", nil, payload, &out); err != nil {
		return nil, err
	}
	if out.Complaint == nil || out.Complaint.ID == "" {
		return nil, &Error{Status: http.StatusBadGateway, Code: "EMPTY_RECEIPT"}
	}
	return out.Complaint, nil
}

// GetComplaint fetches the citizen-facing status of one complaint.
func (c *Client) GetComplaint(ctx context.Context, complaintID string) (*ComplaintStatus, error) {
	var out struct {
		Complaint *ComplaintStatus `json:"complaint"`
	}
	path := "/api/complaints/" + url.PathEscape(complaintID)
	if err := c.do(ctx, http.MethodGet, "/api/complaints/{id}", path, nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Complaint == nil {
		return nil, &Error{Status: http.StatusNotFound, Code: "COMPLAINT_NOT_FOUND"}
	}
	return out.Complaint, nil
}

// Dashboard fetches the aggregate admin metrics.
func (c *Client) Dashboard(ctx context.Context) (*DashboardMetrics, error) {
	var out struct {
		Metrics DashboardMetrics `json:"metrics"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/admin/dashboard", "/api/admin/dashboard", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Metrics, nil
}

// ListComplaints fetches the filtered admin complaint list.
func (c *Client) ListComplaints(ctx context.Context, filter ListFilter) ([]Complaint, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	setIfPresent(query, "status", filter.Status)
	setIfPresent(query, "department", filter.Department)

	var out struct {
		Complaints []Complaint `json:"complaints"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/admin/complaints", "/api/admin/complaints", query, nil, &out); err != nil {
		return nil, err
	}
	if out.Complaints == nil {
		out.Complaints = []Complaint{}
	}
	return out.Complaints, nil
}

// UpdateComplaintStatus changes a complaint's status. Parameters travel in the
// query string, as the backend expects.
func (c *Client) UpdateComplaintStatus(ctx context.Context, complaintID, newStatus, notes string) (*Complaint, error) {
	query := url.Values{}
	query.Set("new_status", newStatus)
	setIfPresent(query, "notes", notes)

	var out struct {
		Complaint *Complaint `json:"complaint"`
	}
	path := "/api/admin/complaints/" + url.PathEscape(complaintID) + "/status"
	if err := c.do(ctx, http.MethodPatch, "/api/admin/complaints/{id}/status", path, query, nil, &out); err != nil {
		return nil, err
	}
	return out.Complaint, nil
}

// SendNotification asks the backend to notify the citizen about the current status.
func (c *Client) SendNotification(ctx context.Context, complaintID string) (*OperationResult, error) {
	path := "/api/notifications/" + url.PathEscape(complaintID)
	return c.operation(ctx, "/api/notifications/{id}", path, nil)
}

// RunFollowups runs the follow-up pass over complaints without updates for the given days.
func (c *Client) RunFollowups(ctx context.Context, daysWithoutUpdate int) (*OperationResult, error) {
	query := url.Values{}
	if daysWithoutUpdate > 0 {
		query.Set("days_without_update", strconv.Itoa(daysWithoutUpdate))
	}
	return c.operation(ctx, "/api/followups/run", "/api/followups/run", query)
}

// FollowupComplaint runs the follow-up for a single complaint.
func (c *Client) FollowupComplaint(ctx context.Context, complaintID string) (*OperationResult, error) {
	path := "/api/followups/" + url.PathEscape(complaintID)
	return c.operation(ctx, "/api/followups/{id}", path, nil)
}

// RunMonitoring triggers one SLA monitoring cycle.
func (c *Client) RunMonitoring(ctx context.Context) (*OperationResult, error) {
	return c.operation(ctx, "/api/monitoring/run", "/api/monitoring/run", nil)
}

func (c *Client) operation(ctx context.Context, endpoint, path string, query url.Values) (*OperationResult, error) {
	var raw map[string]json.RawMessage
	if err := c.do(ctx, http.MethodPost, endpoint, path, query, nil, &raw); err != nil {
		return nil, err
	}
	result := &OperationResult{Details: map[string]any{}}
	for key, value := range raw {
		if key == "success" {
			continue
		}
		var decoded any
		if err := json.Unmarshal(value, &decoded); err != nil {
			return nil, fmt.Errorf("%w: decode %s field %s: %v", ErrUnavailable, endpoint, key, err)
		}
		if key == "message" {
			if text, ok := decoded.(string); ok {
				result.Message = text
				continue
			}
		}
		result.Details[key] = decoded
	}
	return result, nil
}
