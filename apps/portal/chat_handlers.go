package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"grievance/libs/backend"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const chatSessionCookieMaxAge = transcriptTTL

type chatQueryRequest struct {
	Question     string `json:"question"`
	ComplaintID  string `json:"complaint_id"`
	CitizenEmail string `json:"citizen_email"`
}

// chatSessionID returns the chat session id from its cookie, issuing a new
// one when the cookie is missing or malformed.
func (a *App) chatSessionID(c *gin.Context) string {
	if value, err := c.Cookie(chatSessionCookieName); err == nil {
		if parsed, err := uuid.Parse(value); err == nil {
			return parsed.String()
		}
	}
	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(chatSessionCookieName, id, int(chatSessionCookieMaxAge.Seconds()), "/", "", a.secureCookies(), true)
	return id
}

// loadTranscript returns the stored transcript, seeding it with the greeting
// when it is empty.
func (a *App) loadTranscript(ctx context.Context, sessionID, lang string) []chatMessage {
	greeting := chatGreeting(lang, time.Now())
	messages, err := a.transcripts.Seed(ctx, sessionID, greeting)
	if err != nil {
		a.log.Error("load chat transcript failed", "err", err)
	}
	if len(messages) > 0 {
		return messages
	}
	return []chatMessage{greeting}
}

func (a *App) chatQueryHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	var req chatQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_request", Message: t(lang, "error_invalid_form")})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "empty_question", Message: t(lang, "chat_empty_question")})
		return
	}

	ctx := c.Request.Context()
	sessionID := a.chatSessionID(c)
	a.loadTranscript(ctx, sessionID, lang)

	userMessage := chatMessage{Role: chatRoleUser, Text: question, At: time.Now()}
	reply, err := a.backend.AskChatbot(ctx, backend.ChatQuery{
		Question:     question,
		ComplaintID:  normalizeComplaintID(req.ComplaintID),
		CitizenEmail: strings.TrimSpace(req.CitizenEmail),
		Language:     lang,
	})

	var botMessage chatMessage
	if err != nil {
		a.log.Warn("chatbot query failed", "err", err)
		text := backendErrorMessage(err, lang, "chat_error_generic")
		botMessage = chatMessage{Role: chatRoleBot, Text: text, Speech: speechText(text), Failed: true, At: time.Now()}
	} else {
		text := formatChatReply(lang, *reply)
		botMessage = chatMessage{Role: chatRoleBot, Text: text, Speech: speechText(text), At: time.Now()}
	}

	if err := a.transcripts.Append(ctx, sessionID, userMessage, botMessage); err != nil {
		a.log.Error("append chat transcript failed", "err", err)
	}

	response := gin.H{"message": botMessage, "failed": botMessage.Failed}
	if reply != nil {
		response["confidence"] = reply.Confidence
	}
	c.JSON(http.StatusOK, response)
}

func (a *App) chatTranscriptHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	messages := a.loadTranscript(c.Request.Context(), a.chatSessionID(c), lang)
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (a *App) chatResetHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	ctx := c.Request.Context()
	sessionID := a.chatSessionID(c)
	if err := a.transcripts.Reset(ctx, sessionID); err != nil {
		a.log.Error("reset chat transcript failed", "err", err)
		writeAPIError(c, &apiError{Status: http.StatusInternalServerError, Code: "transcript_error", Message: t(lang, "chat_error_generic")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": a.loadTranscript(ctx, sessionID, lang)})
}
