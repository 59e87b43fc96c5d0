package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
)

// Message types exchanged with the browser.
const (
	// server -> browser
	TypeStart  = "start"
	TypeStop   = "stop"
	TypeSpeak  = "speak"
	TypeCancel = "cancel"
	TypeField  = "field"
	TypeStatus = "status"
	// browser -> server
	TypeResult      = "result"
	TypeError       = "error"
	TypeListen      = "listen"
	TypeUnsupported = "unsupported"
)

// Message is one frame of the browser voice protocol.
type Message struct {
	Type  string `json:"type"`
	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`
	Text  string `json:"text,omitempty"`
	Lang  string `json:"lang,omitempty"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Bridge drives the browser's Web Speech API over a websocket. It implements
// both Recognizer and Synthesizer.
type Bridge struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu          sync.Mutex
	unsupported bool
	onResult    func(string)
	onError     func(error)
	onListen    func(msg Message)
}

// NewBridge wraps an upgraded connection.
func NewBridge(conn *websocket.Conn) *Bridge {
	return &Bridge{conn: conn}
}

// Start asks the browser to begin recognition.
func (b *Bridge) Start(ctx context.Context, lang string) error {
	if !b.Supported() {
		return ErrUnsupported
	}
	return b.Send(Message{Type: TypeStart, Lang: lang})
}

// Stop asks the browser to end recognition.
func (b *Bridge) Stop() error {
	return b.Send(Message{Type: TypeStop})
}

// OnResult registers the transcript callback.
func (b *Bridge) OnResult(fn func(transcript string)) {
	b.mu.Lock()
	b.onResult = fn
	b.mu.Unlock()
}

// OnError registers the recognition error callback.
func (b *Bridge) OnError(fn func(err error)) {
	b.mu.Lock()
	b.onError = fn
	b.mu.Unlock()
}

// OnListen registers the callback for the browser asking to bind a field.
func (b *Bridge) OnListen(fn func(msg Message)) {
	b.mu.Lock()
	b.onListen = fn
	b.mu.Unlock()
}

// Speak asks the browser to read text aloud.
func (b *Bridge) Speak(ctx context.Context, text, lang string) error {
	if !b.Supported() {
		return ErrUnsupported
	}
	return b.Send(Message{Type: TypeSpeak, Text: text, Lang: lang})
}

// Cancel stops ongoing speech output.
func (b *Bridge) Cancel() error {
	return b.Send(Message{Type: TypeCancel})
}

// Supported reports whether the browser announced speech support.
func (b *Bridge) Supported() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.unsupported
}

// Send writes one message to the browser.
func (b *Bridge) Send(msg Message) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return b.conn.WriteMessage(websocket.TextMessage, encoded)
}

// Run reads browser messages until the connection closes or ctx ends. It
// keeps the connection alive with pings.
func (b *Bridge) Run(ctx context.Context) error {
	b.conn.SetReadLimit(maxMessageSize)
	_ = b.conn.SetReadDeadline(time.Now().Add(pongWait))
	b.conn.SetPongHandler(func(string) error {
		return b.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go b.pingLoop(ctx, done)

	for {
		_, raw, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		b.dispatch(msg)
	}
}

func (b *Bridge) pingLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			b.writeMu.Lock()
			_ = b.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			b.writeMu.Unlock()
			_ = b.conn.Close()
			return
		case <-ticker.C:
			b.writeMu.Lock()
			err := b.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			b.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (b *Bridge) dispatch(msg Message) {
	b.mu.Lock()
	onResult, onError, onListen := b.onResult, b.onError, b.onListen
	if msg.Type == TypeUnsupported {
		b.unsupported = true
	}
	b.mu.Unlock()

	switch msg.Type {
	case TypeResult:
		if onResult != nil {
			onResult(msg.Text)
		}
	case TypeError:
		if onError != nil {
			onError(fmt.Errorf("speech recognition: %s", msg.Error))
		}
	case TypeUnsupported:
		if onError != nil {
			onError(ErrUnsupported)
		}
	case TypeListen:
		if onListen != nil {
			onListen(msg)
		}
	}
}

// IsUnsupported reports whether err means the capability is missing.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}
