package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"grievance/libs/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatChatReplyAndSpeech(t *testing.T) {
	reply := backend.ChatReply{
		Response: "Your complaint is being handled.",
		ComplaintInfo: &backend.ChatComplaintInfo{
			ID:         "CMP-1",
			Status:     "in_progress",
			Department: "Roads",
		},
		SuggestedActions: []string{"Check back tomorrow", " "},
	}

	display := formatChatReply("en", reply)
	assert.Equal(t, "Your complaint is being handled.\n\n"+
		"📋 Complaint ID: CMP-1\n📊 Status: In progress\n🏢 Department: Roads\n\n"+
		"💡 Suggested actions:\n• Check back tomorrow", display)

	assert.Equal(t,
		"Your complaint is being handled. Complaint ID: CMP-1. Status: In progress. Department: Roads. Suggested actions: Check back tomorrow",
		speechText(display))
}

func TestFormatChatReplyResponseOnly(t *testing.T) {
	assert.Equal(t, "Namaste", formatChatReply("en", backend.ChatReply{Response: " Namaste "}))
	assert.Empty(t, formatChatReply("en", backend.ChatReply{}))
}

func TestSpeechTextKeepsDevanagariStops(t *testing.T) {
	assert.Equal(t, "शिकायत दर्ज हुई। धन्यवाद", speechText("✅ शिकायत दर्ज हुई।\n• धन्यवाद"))
}

func TestMemoryTranscriptStoreTrimsAndExpires(t *testing.T) {
	ctx := context.Background()
	store := newMemoryTranscriptStore()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	for i := 0; i < maxTranscriptMessages+5; i++ {
		require.NoError(t, store.Append(ctx, "s1", chatMessage{Role: chatRoleUser, Text: strings.Repeat("x", i+1)}))
	}
	greeting := chatMessage{Role: chatRoleBot, Text: "hello"}
	messages, err := store.Seed(ctx, "s1", greeting)
	require.NoError(t, err)
	require.Len(t, messages, maxTranscriptMessages)
	assert.Len(t, messages[0].Text, 6, "the oldest messages are dropped")

	now = now.Add(transcriptTTL - time.Minute)
	messages, err = store.Seed(ctx, "s1", greeting)
	require.NoError(t, err)
	assert.Len(t, messages, maxTranscriptMessages)

	now = now.Add(2 * time.Minute)
	messages, err = store.Seed(ctx, "s1", greeting)
	require.NoError(t, err)
	assert.Equal(t, []chatMessage{greeting}, messages)
}

func TestConcurrentFirstMessagesSeedOneGreeting(t *testing.T) {
	app, _, _ := newPortalTestServer(t)
	sessionID := "7c9e6679-7425-40de-944b-e07fc1f90ae7"

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.loadTranscript(context.Background(), sessionID, "en")
		}()
	}
	wg.Wait()

	messages := app.loadTranscript(context.Background(), sessionID, "en")
	require.Len(t, messages, 1)
	assert.Equal(t, mustText(t, "en", "chat_greeting"), messages[0].Text)
}

func TestChatQueryReportsBackendFailureInline(t *testing.T) {
	_, router, fake := newPortalTestServer(t)
	fake.reply(http.MethodPost, "/api/chatbot/query", http.StatusInternalServerError, `{}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"question":"Where is my complaint?","complaint_id":"CMP 1"}`))
	req.Header.Set("Content-Type", "application/json")
	res := serve(router, req)

	require.Equal(t, http.StatusOK, res.Code)
	var body struct {
		Message chatMessage `json:"message"`
		Failed  bool        `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.True(t, body.Failed)
	assert.True(t, body.Message.Failed)
	assert.Equal(t, mustText(t, "en", "chat_error_generic"), body.Message.Text)

	calls := fake.callsTo(http.MethodPost, "/api/chatbot/query")
	require.Len(t, calls, 1)
	assert.Equal(t, "CMP1", calls[0].Query.Get("complaint_id"))
	assert.Equal(t, "en", calls[0].Query.Get("language"))

	var cookie *http.Cookie
	for _, c := range res.Result().Cookies() {
		if c.Name == chatSessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	transcriptReq := httptest.NewRequest(http.MethodGet, "/api/v1/chat/transcript", nil)
	transcriptReq.AddCookie(cookie)
	transcriptRes := serve(router, transcriptReq)
	require.Equal(t, http.StatusOK, transcriptRes.Code)

	var transcript struct {
		Messages []chatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(transcriptRes.Body.Bytes(), &transcript))
	require.Len(t, transcript.Messages, 3)
	assert.Equal(t, mustText(t, "en", "chat_greeting"), transcript.Messages[0].Text)
	assert.Equal(t, "Where is my complaint?", transcript.Messages[1].Text)
	assert.True(t, transcript.Messages[2].Failed)
}

func TestChatQueryRejectsEmptyQuestion(t *testing.T) {
	_, router, fake := newPortalTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"question":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	res := serve(router, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Zero(t, fake.callCount())
}

func TestChatResetStartsOver(t *testing.T) {
	app, router, _ := newPortalTestServer(t)
	sessionID := "0f8fad5b-d9cb-469f-a165-70867728950e"
	require.NoError(t, app.transcripts.Append(context.Background(), sessionID,
		chatMessage{Role: chatRoleUser, Text: "hello"}))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/chat/transcript", nil)
	req.AddCookie(&http.Cookie{Name: chatSessionCookieName, Value: sessionID})
	res := serve(router, req)

	require.Equal(t, http.StatusOK, res.Code)
	var transcript struct {
		Messages []chatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &transcript))
	require.Len(t, transcript.Messages, 1)
	assert.Equal(t, chatRoleBot, transcript.Messages[0].Role)
}
