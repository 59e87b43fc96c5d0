package main

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"grievance/libs/voice"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	voiceLookupDelay   = 500 * time.Millisecond
	voiceLookupTimeout = 10 * time.Second
	voiceLookupField   = "complaint_id"
)

// voiceSession is the server half of one browser voice connection.
type voiceSession struct {
	app      *App
	lang     string
	bridge   *voice.Bridge
	listener *voice.Listener
	policy   voice.FieldPolicy
	lookup   *voice.Debouncer

	mu     sync.Mutex
	fields map[string]string
}

func (a *App) voiceUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				return true
			}
			parsed, err := url.Parse(origin)
			if err == nil && strings.EqualFold(parsed.Host, r.Host) {
				return true
			}
			return a.isAllowedCORSOrigin(origin)
		},
	}
}

func (a *App) voiceSocketHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	conn, err := a.voiceUpgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Warn("voice upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	a.metrics.voiceSessionOpened()
	defer a.metrics.voiceSessionClosed()

	session := a.newVoiceSession(conn, lang)
	defer session.close()

	if err := session.bridge.Run(c.Request.Context()); err != nil {
		a.log.Debug("voice session ended", "err", err)
	}
}

func (a *App) newVoiceSession(conn *websocket.Conn, lang string) *voiceSession {
	bridge := voice.NewBridge(conn)
	session := &voiceSession{
		app:      a,
		lang:     lang,
		bridge:   bridge,
		listener: voice.NewListener(bridge),
		policy:   voice.DefaultFieldPolicy(),
		lookup:   voice.NewDebouncer(voiceLookupDelay),
		fields:   map[string]string{},
	}
	session.listener.OnTranscript(session.handleTranscript)
	session.listener.OnError(session.handleError)
	bridge.OnListen(session.handleListen)
	return session
}

func (s *voiceSession) close() {
	s.lookup.Stop()
	_ = s.listener.Stop()
}

// handleListen binds the requested field. An empty field stops listening.
func (s *voiceSession) handleListen(msg voice.Message) {
	field := strings.TrimSpace(msg.Field)
	if field == "" {
		_ = s.listener.Stop()
		_ = s.bridge.Cancel()
		return
	}
	if previous, ok := s.listener.Active(); ok && previous != field {
		s.app.log.Debug("voice field switched", "from", previous, "to", field)
	}

	s.mu.Lock()
	s.fields[field] = msg.Value
	s.mu.Unlock()

	lang := s.lang
	if base, _, _ := strings.Cut(strings.ReplaceAll(msg.Lang, "_", "-"), "-"); isSupportedLanguage(base) {
		lang = normalizeLanguage(base)
	}
	if err := s.listener.Listen(context.Background(), field, lang); err != nil {
		s.handleError(field, err)
	}
}

func (s *voiceSession) handleTranscript(field, transcript string) {
	s.mu.Lock()
	value := s.policy.Apply(field, s.fields[field], transcript)
	s.fields[field] = value
	s.mu.Unlock()

	if err := s.bridge.Send(voice.Message{Type: voice.TypeField, Field: field, Value: value}); err != nil {
		s.app.log.Debug("voice field send failed", "err", err)
		return
	}
	if field == voiceLookupField {
		id := normalizeComplaintID(value)
		s.lookup.Trigger(func() { s.lookupStatus(id) })
	}
}

func (s *voiceSession) handleError(field string, err error) {
	if voice.IsUnsupported(err) {
		return
	}
	s.app.log.Debug("voice recognition error", "field", field, "err", err)
	_ = s.bridge.Send(voice.Message{Type: voice.TypeError, Field: field, Error: t(s.lang, "voice_error")})
}

// lookupStatus fetches the complaint a spoken id names, then pushes and reads
// out its status.
func (s *voiceSession) lookupStatus(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), voiceLookupTimeout)
	defer cancel()

	status, err := s.app.backend.GetComplaint(ctx, id)
	if err != nil {
		message := backendErrorMessage(err, s.lang, "error_status_not_found")
		_ = s.bridge.Send(voice.Message{Type: voice.TypeError, Field: voiceLookupField, Error: message})
		return
	}

	view := s.app.buildStatusView(s.lang, status)
	if err := s.bridge.Send(voice.Message{Type: voice.TypeStatus, Field: voiceLookupField, Data: view}); err != nil {
		return
	}
	summary := tf(s.lang, "voice_status_summary", view.ID, view.StatusLabel, view.RemainingTime)
	if err := s.bridge.Speak(ctx, summary, s.lang); err != nil && !voice.IsUnsupported(err) {
		s.app.log.Debug("voice speak failed", "err", err)
	}
}
