package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Forum fetches the discussion thread and community aggregates of a complaint.
func (c *Client) Forum(ctx context.Context, complaintID string) (*ForumThread, error) {
	var out ForumThread
	path := "/api/forum/complaint/" + url.PathEscape(complaintID)
	if err := c.do(ctx, http.MethodGet, "/api/forum/complaint/{id}", path, nil, nil, &out); err != nil {
		return nil, err
	}
	if out.ComplaintID == "" {
		out.ComplaintID = complaintID
	}
	if out.Posts == nil {
		out.Posts = []ForumPost{}
	}
	if out.SimilarComplaints == nil {
		out.SimilarComplaints = []Complaint{}
	}
	return &out, nil
}

// CreateForumPost creates a post referencing already uploaded image URLs.
func (c *Client) CreateForumPost(ctx context.Context, payload ForumPostCreate) (*ForumPost, error) {
	query := url.Values{}
	query.Set("complaint_id", payload.ComplaintID)
	query.Set("author_name", payload.AuthorName)
	query.Set("author_email", payload.AuthorEmail)
	query.Set("content", payload.Content)
	if len(payload.ImageURLs) > 0 {
		query.Set("image_urls", strings.Join(payload.ImageURLs, ","))
	}

	var out struct {
		Post *ForumPost `json:"post"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/forum/post", "/api/forum/post", query, nil, &out); err != nil {
		return nil, err
	}
	if out.Post == nil {
		return nil, &Error{Status: http.StatusBadGateway, Code: "POST_CREATION_FAILED"}
	}
	return out.Post, nil
}

// Vote toggles a vote on a complaint.
func (c *Client) Vote(ctx context.Context, vote VoteRequest) (*VoteResult, error) {
	query := url.Values{}
	query.Set("complaint_id", vote.ComplaintID)
	query.Set("voter_email", vote.VoterEmail)
	query.Set("vote_type", vote.VoteType)

	var out VoteResult
	if err := c.do(ctx, http.MethodPost, "/api/forum/vote", "/api/forum/vote", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Trending returns the most upvoted complaints.
func (c *Client) Trending(ctx context.Context, limit int) ([]Complaint, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Complaints []Complaint `json:"complaints"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/forum/trending", "/api/forum/trending", query, nil, &out); err != nil {
		return nil, err
	}
	if out.Complaints == nil {
		out.Complaints = []Complaint{}
	}
	return out.Complaints, nil
}
