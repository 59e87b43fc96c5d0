package main

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forumPostRequest(t *testing.T, complaintID string, fields map[string]string, images int) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for i := 1; i <= images; i++ {
		part, err := writer.CreateFormFile("images", fmt.Sprintf("photo-%d.png", i))
		require.NoError(t, err)
		_, err = part.Write([]byte(pngHeader + fmt.Sprintf("photo %d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/forum/"+complaintID+"/posts", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func validForumFields() map[string]string {
	return map[string]string{
		"author_name":  "Meera Joshi",
		"author_email": "Meera@Example.in",
		"content":      "Same problem on the next street",
	}
}

func TestForumPostWithTooManyImagesKeepsFirstFive(t *testing.T) {
	app, router, fake := newPortalTestServer(t)
	storage := newFakeStorage()
	app.storage = storage
	fake.reply(http.MethodPost, "/api/forum/post", http.StatusOK, `{"success":true,"post":{"id":"post-9"}}`)

	res := serve(router, forumPostRequest(t, "CMP-1", validForumFields(), 6))

	require.Equal(t, http.StatusSeeOther, res.Code)
	location, err := url.Parse(res.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/forum/CMP-1", location.Path)
	assert.Equal(t, mustText(t, "en", "notice_post_created"), location.Query().Get("notice"))
	assert.Equal(t, tf("en", "warning_images_rejected", 5, 1), location.Query().Get("warning"))

	assert.Equal(t, 5, storage.uploads)
	calls := fake.callsTo(http.MethodPost, "/api/forum/post")
	require.Len(t, calls, 1)
	assert.Len(t, strings.Split(calls[0].Query.Get("image_urls"), ","), 5)
	assert.Equal(t, "meera@example.in", calls[0].Query.Get("author_email"))
}

func TestForumPostMissingFieldsKeepsDraft(t *testing.T) {
	_, router, fake := newPortalTestServer(t)

	fields := validForumFields()
	fields["author_name"] = " "
	res := serve(router, forumPostRequest(t, "CMP-1", fields, 0))

	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Contains(t, res.Body.String(), mustText(t, "en", "error_forum_fields_required"))
	assert.Contains(t, res.Body.String(), "Same problem on the next street")
	assert.Empty(t, fake.callsTo(http.MethodPost, "/api/forum/post"))
}

func TestForumPostWithImagesNeedsStorage(t *testing.T) {
	_, router, fake := newPortalTestServer(t)

	res := serve(router, forumPostRequest(t, "CMP-1", validForumFields(), 1))

	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.Contains(t, res.Body.String(), mustText(t, "en", "error_uploads_unavailable"))
	assert.Empty(t, fake.callsTo(http.MethodPost, "/api/forum/post"))
}

func TestForumPostUploadFailureRendersError(t *testing.T) {
	app, router, fake := newPortalTestServer(t)
	storage := newFakeStorage()
	storage.failUploadOn = 1
	app.storage = storage

	res := serve(router, forumPostRequest(t, "CMP-1", validForumFields(), 2))

	assert.Equal(t, http.StatusBadGateway, res.Code)
	assert.Contains(t, res.Body.String(), tf("en", "error_image_upload_failed", "photo-1.png"))
	assert.Contains(t, res.Body.String(), mustText(t, "en", "forum_reselect_images")+" photo-1.png, photo-2.png")
	assert.Empty(t, fake.callsTo(http.MethodPost, "/api/forum/post"))
}

func TestForumVoteRequiresEmail(t *testing.T) {
	_, router, fake := newPortalTestServer(t)

	form := url.Values{"voter_email": {"not-an-email"}, "vote_type": {"upvote"}}
	req := httptest.NewRequest(http.MethodPost, "/forum/CMP-1/vote", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := serve(router, req)

	require.Equal(t, http.StatusSeeOther, res.Code)
	location, err := url.Parse(res.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, mustText(t, "en", "error_voter_email_required"), location.Query().Get("error"))
	assert.Zero(t, fake.callCount())
}

func TestForumVoteRecordsResult(t *testing.T) {
	_, router, fake := newPortalTestServer(t)
	fake.reply(http.MethodPost, "/api/forum/vote", http.StatusOK,
		`{"success":true,"action":"added","vote_type":"upvote","upvote_count":12,"community_priority_boost":1.5}`)

	form := url.Values{"voter_email": {" Voter@Example.in "}, "vote_type": {"upvote"}}
	req := httptest.NewRequest(http.MethodPost, "/forum/CMP-1/vote", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := serve(router, req)

	require.Equal(t, http.StatusSeeOther, res.Code)
	location, err := url.Parse(res.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, tf("en", "notice_vote_recorded", mustText(t, "en", "vote_action_added"), 12), location.Query().Get("notice"))

	calls := fake.callsTo(http.MethodPost, "/api/forum/vote")
	require.Len(t, calls, 1)
	assert.Equal(t, "voter@example.in", calls[0].Query.Get("voter_email"))
	assert.Equal(t, "CMP-1", calls[0].Query.Get("complaint_id"))
}

func TestForumPageListsNewestPostFirst(t *testing.T) {
	_, router, fake := newPortalTestServer(t)
	fake.reply(http.MethodGet, "/api/forum/complaint/CMP-1", http.StatusOK, `{
		"complaint_id": "CMP-1",
		"upvote_count": 4,
		"post_count": 2,
		"community_priority_boost": 0.4,
		"posts": [
			{"author_name": "Older", "content": "first", "created_at": "2025-03-01T04:30:00"},
			{"author_name": "Newer", "content": "second", "created_at": "2025-03-02T04:30:00"}
		]
	}`)

	res := serve(router, httptest.NewRequest(http.MethodGet, "/forum/CMP-1", nil))

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	require.Contains(t, body, "Newer")
	require.Contains(t, body, "Older")
	assert.Less(t, strings.Index(body, "Newer"), strings.Index(body, "Older"))
	assert.Contains(t, body, "0.4")
}

func TestForumPostRejectsOversizedBody(t *testing.T) {
	app, router, fake := newPortalTestServer(t)
	storage := newFakeStorage()
	app.storage = storage

	req := forumPostRequest(t, "CMP-1", validForumFields(), 1)
	req.ContentLength = maxForumPostBytes + 1
	res := serve(router, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, res.Code)
	assert.Contains(t, res.Body.String(), tf("en", "error_post_too_large", maxForumImages, maxForumImageBytes>>20))
	assert.Zero(t, storage.uploads)
	assert.Empty(t, fake.callsTo(http.MethodPost, "/api/forum/post"))
}

func TestForumPostRateLimitKeepsDraft(t *testing.T) {
	_, router, fake := newPortalTestServer(t)
	fake.reply(http.MethodPost, "/api/forum/post", http.StatusOK, `{"success":true,"post":{"id":"post-1"}}`)

	for i := 0; i < forumPostRateLimitRequests; i++ {
		res := serve(router, forumPostRequest(t, "CMP-1", validForumFields(), 0))
		require.Equal(t, http.StatusSeeOther, res.Code, "post %d", i+1)
	}

	fields := validForumFields()
	fields["content"] = "Water logging near the school gate"
	res := serve(router, forumPostRequest(t, "CMP-1", fields, 0))

	assert.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.Contains(t, res.Body.String(), mustText(t, "en", "error_rate_limited"))
	assert.Contains(t, res.Body.String(), "Water logging near the school gate")
	assert.Contains(t, res.Body.String(), "Meera Joshi")
	assert.Len(t, fake.callsTo(http.MethodPost, "/api/forum/post"), forumPostRateLimitRequests)
}

func TestForumPostReleasesBufferedImages(t *testing.T) {
	app, router, fake := newPortalTestServer(t)
	storage := newFakeStorage()
	storage.failUploadOn = 2
	app.storage = storage
	fake.reply(http.MethodPost, "/api/forum/post", http.StatusOK, `{"success":true,"post":{"id":"post-3"}}`)

	res := serve(router, forumPostRequest(t, "CMP-1", validForumFields(), 3))
	require.Equal(t, http.StatusBadGateway, res.Code)
	assert.Zero(t, testutil.ToFloat64(app.metrics.ForumImageBuffer))

	storage.failUploadOn = 0
	res = serve(router, forumPostRequest(t, "CMP-1", validForumFields(), 2))
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Zero(t, testutil.ToFloat64(app.metrics.ForumImageBuffer))
}
