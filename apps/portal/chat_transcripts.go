package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	maxTranscriptMessages = 100
	transcriptTTL         = 24 * time.Hour
	transcriptKeyPrefix   = "grievance:chat:"
)

// TranscriptStore keeps chat transcripts per chat session id. Stores trim to
// the newest maxTranscriptMessages and expire idle transcripts.
type TranscriptStore interface {
	// Seed stores first as the opening message when the transcript is empty
	// and returns the transcript. Concurrent callers seed at most once.
	Seed(ctx context.Context, sessionID string, first chatMessage) ([]chatMessage, error)
	Append(ctx context.Context, sessionID string, messages ...chatMessage) error
	Reset(ctx context.Context, sessionID string) error
}

func newTranscriptStore(redisURL string) (TranscriptStore, error) {
	if redisURL == "" {
		return newMemoryTranscriptStore(), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &redisTranscriptStore{client: client}, nil
}

type memoryTranscript struct {
	messages  []chatMessage
	touchedAt time.Time
}

type memoryTranscriptStore struct {
	mu          sync.Mutex
	transcripts map[string]*memoryTranscript
	now         func() time.Time
}

func newMemoryTranscriptStore() *memoryTranscriptStore {
	return &memoryTranscriptStore{
		transcripts: make(map[string]*memoryTranscript),
		now:         time.Now,
	}
}

func (s *memoryTranscriptStore) Seed(_ context.Context, sessionID string, first chatMessage) ([]chatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire()

	transcript, ok := s.transcripts[sessionID]
	if !ok || len(transcript.messages) == 0 {
		transcript = &memoryTranscript{messages: []chatMessage{first}, touchedAt: s.now()}
		s.transcripts[sessionID] = transcript
	}
	return append([]chatMessage(nil), transcript.messages...), nil
}

func (s *memoryTranscriptStore) Append(_ context.Context, sessionID string, messages ...chatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire()

	transcript, ok := s.transcripts[sessionID]
	if !ok {
		transcript = &memoryTranscript{}
		s.transcripts[sessionID] = transcript
	}
	transcript.messages = append(transcript.messages, messages...)
	if overflow := len(transcript.messages) - maxTranscriptMessages; overflow > 0 {
		transcript.messages = append([]chatMessage(nil), transcript.messages[overflow:]...)
	}
	transcript.touchedAt = s.now()
	return nil
}

func (s *memoryTranscriptStore) Reset(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, sessionID)
	return nil
}

// expire must be called with mu held.
func (s *memoryTranscriptStore) expire() {
	cutoff := s.now().Add(-transcriptTTL)
	for id, transcript := range s.transcripts {
		if transcript.touchedAt.Before(cutoff) {
			delete(s.transcripts, id)
		}
	}
}

type redisTranscriptStore struct {
	client *redis.Client
}

func transcriptKey(sessionID string) string {
	return transcriptKeyPrefix + sessionID
}

// seedTranscriptScript pushes ARGV[1] only into an empty list, so the check
// and the push cannot interleave with another request.
var seedTranscriptScript = redis.NewScript(`
if redis.call("LLEN", KEYS[1]) == 0 then
	redis.call("RPUSH", KEYS[1], ARGV[1])
	redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return redis.call("LRANGE", KEYS[1], 0, -1)
`)

func (s *redisTranscriptStore) Seed(ctx context.Context, sessionID string, first chatMessage) ([]chatMessage, error) {
	encoded, err := json.Marshal(first)
	if err != nil {
		return nil, err
	}
	raw, err := seedTranscriptScript.Run(ctx, s.client, []string{transcriptKey(sessionID)},
		string(encoded), int(transcriptTTL.Seconds())).StringSlice()
	if err != nil {
		return nil, err
	}
	return decodeTranscript(raw)
}

func decodeTranscript(raw []string) ([]chatMessage, error) {
	messages := make([]chatMessage, 0, len(raw))
	for _, item := range raw {
		var message chatMessage
		if err := json.Unmarshal([]byte(item), &message); err != nil {
			return nil, fmt.Errorf("decode transcript message: %w", err)
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (s *redisTranscriptStore) Append(ctx context.Context, sessionID string, messages ...chatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]any, 0, len(messages))
	for _, message := range messages {
		encoded, err := json.Marshal(message)
		if err != nil {
			return err
		}
		values = append(values, string(encoded))
	}

	key := transcriptKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, -maxTranscriptMessages, -1)
	pipe.Expire(ctx, key, transcriptTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisTranscriptStore) Reset(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, transcriptKey(sessionID)).Err()
}

func (s *redisTranscriptStore) Close() error {
	return s.client.Close()
}
