package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// AskChatbot sends one question to the chatbot. Parameters travel in the query string.
func (c *Client) AskChatbot(ctx context.Context, q ChatQuery) (*ChatReply, error) {
	query := url.Values{}
	query.Set("question", q.Question)
	setIfPresent(query, "complaint_id", q.ComplaintID)
	setIfPresent(query, "citizen_email", q.CitizenEmail)
	language := q.Language
	if language == "" {
		language = "en"
	}
	query.Set("language", language)

	var out ChatReply
	if err := c.do(ctx, http.MethodPost, "/api/chatbot/query", "/api/chatbot/query", query, nil, &out); err != nil {
		return nil, err
	}
	if out.SuggestedActions == nil {
		out.SuggestedActions = []string{}
	}
	return &out, nil
}

// HeatmapData fetches geographic complaint density.
func (c *Client) HeatmapData(ctx context.Context, filter HeatmapFilter) (*Heatmap, error) {
	query := url.Values{}
	setIfPresent(query, "state", filter.State)
	setIfPresent(query, "city", filter.City)
	if filter.Days > 0 {
		query.Set("days", strconv.Itoa(filter.Days))
	}

	var out struct {
		Data      Heatmap   `json:"data"`
		DateRange DateRange `json:"date_range"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/heatmap/data", "/api/heatmap/data", query, nil, &out); err != nil {
		return nil, err
	}
	out.Data.DateRange = out.DateRange
	if out.Data.Locations == nil {
		out.Data.Locations = []HeatmapLocation{}
	}
	return &out.Data, nil
}

// SentimentMetrics fetches citizen sentiment aggregates.
func (c *Client) SentimentMetrics(ctx context.Context, filter SentimentFilter) (*SentimentMetrics, error) {
	query := url.Values{}
	if filter.Days > 0 {
		query.Set("days", strconv.Itoa(filter.Days))
	}
	setIfPresent(query, "department", filter.Department)
	setIfPresent(query, "state", filter.State)

	var out struct {
		Metrics         SentimentMetrics `json:"metrics"`
		TotalComplaints int              `json:"total_complaints"`
		DateRange       DateRange        `json:"date_range"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sentiment/metrics", "/api/sentiment/metrics", query, nil, &out); err != nil {
		return nil, err
	}
	out.Metrics.TotalComplaints = out.TotalComplaints
	out.Metrics.DateRange = out.DateRange
	return &out.Metrics, nil
}
