// Package voice models speech input and output as explicit capabilities.
//
// A Recognizer turns speech into transcripts and a Synthesizer reads text
// aloud. Listener binds a recognizer to one form field at a time and
// FieldPolicy decides how a transcript changes the bound field.
package voice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrUnsupported is returned when the client has no speech capability.
var ErrUnsupported = errors.New("voice capability unsupported")

// Recognizer is a speech-to-text capability.
type Recognizer interface {
	Start(ctx context.Context, lang string) error
	Stop() error
	OnResult(fn func(transcript string))
	OnError(fn func(err error))
}

// Synthesizer is a text-to-speech capability.
type Synthesizer interface {
	Speak(ctx context.Context, text, lang string) error
	Cancel() error
}

// Listener lets at most one field listen at a time. Listening for a new field
// while another listens stops the running recognition first.
type Listener struct {
	rec Recognizer

	mu           sync.Mutex
	field        string
	active       bool
	onTranscript func(field, transcript string)
	onError      func(field string, err error)
}

// NewListener wraps rec. Results are routed to the field bound at the time the
// recognition was started.
func NewListener(rec Recognizer) *Listener {
	l := &Listener{rec: rec}
	rec.OnResult(l.handleResult)
	rec.OnError(l.handleError)
	return l
}

// OnTranscript registers the callback receiving the bound field and transcript.
func (l *Listener) OnTranscript(fn func(field, transcript string)) {
	l.mu.Lock()
	l.onTranscript = fn
	l.mu.Unlock()
}

// OnError registers the callback receiving recognition failures.
func (l *Listener) OnError(fn func(field string, err error)) {
	l.mu.Lock()
	l.onError = fn
	l.mu.Unlock()
}

// Listen binds field and starts recognition in lang.
func (l *Listener) Listen(ctx context.Context, field, lang string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active {
		if err := l.rec.Stop(); err != nil {
			return err
		}
		l.active = false
		l.field = ""
	}
	if err := l.rec.Start(ctx, lang); err != nil {
		return err
	}
	l.field = field
	l.active = true
	return nil
}

// Stop ends the running recognition, if any.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return nil
	}
	l.active = false
	l.field = ""
	return l.rec.Stop()
}

// Active reports the bound field while listening.
func (l *Listener) Active() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.field, l.active
}

func (l *Listener) handleResult(transcript string) {
	l.mu.Lock()
	field, active, callback := l.field, l.active, l.onTranscript
	l.active = false
	l.field = ""
	l.mu.Unlock()

	if !active || callback == nil {
		return
	}
	callback(field, transcript)
}

func (l *Listener) handleError(err error) {
	l.mu.Lock()
	field, callback := l.field, l.onError
	l.active = false
	l.field = ""
	l.mu.Unlock()

	if callback != nil {
		callback(field, err)
	}
}

// Mode says how a transcript combines with the current field value.
type Mode int

const (
	// Replace overwrites the field with the transcript.
	Replace Mode = iota
	// Append adds the transcript after the existing text, separated by a space.
	Append
)

// FieldPolicy maps field names to modes. Unknown fields are replaced.
type FieldPolicy map[string]Mode

// DefaultFieldPolicy appends to free-text descriptions and replaces every
// single-value field.
func DefaultFieldPolicy() FieldPolicy {
	return FieldPolicy{"description": Append, "content": Append, "question": Append}
}

// Apply returns the new field value after receiving transcript.
func (p FieldPolicy) Apply(field, existing, transcript string) string {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return existing
	}
	if p[field] != Append {
		return transcript
	}
	if strings.TrimSpace(existing) == "" {
		return transcript
	}
	return existing + " " + transcript
}

// Debouncer runs a callback once after a quiet period. Every Trigger restarts
// the period and replaces the pending callback.
type Debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewDebouncer creates a debouncer with the given delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules fn, cancelling any pending callback.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop cancels the pending callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
