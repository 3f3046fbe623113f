package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"alfredoptarigan/interview-engine/internal/models"
)

// SessionState is the per-session working set kept between turns: the
// policy snapshot and the collaborator context, which is costly to rebuild.
// The relational ledger stays authoritative.
type SessionState struct {
	InterviewID  uuid.UUID              `json:"interview_id"`
	SubjectID    string                 `json:"subject_id"`
	JobID        *string                `json:"job_id,omitempty"`
	Policy       models.InterviewPolicy `json:"policy"`
	Context      InterviewContext       `json:"context"`
	LastActivity time.Time              `json:"last_activity"`
}

type SessionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*SessionState, bool, error)
	Put(ctx context.Context, state *SessionState) error
	Remove(ctx context.Context, id uuid.UUID) error
}

type memoryEntry struct {
	state     SessionState
	expiresAt time.Time
}

// MemorySessionStore keeps states in process memory for single-instance
// deployments. Idle entries expire after ttl.
type MemorySessionStore struct {
	mu       sync.RWMutex
	entries  map[uuid.UUID]memoryEntry
	ttl      time.Duration
	stopChan chan struct{}
	once     sync.Once
}

func NewMemorySessionStore(ttl, sweepInterval time.Duration) *MemorySessionStore {
	s := &MemorySessionStore{
		entries:  make(map[uuid.UUID]memoryEntry),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	}
	return s
}

func (s *MemorySessionStore) Get(_ context.Context, id uuid.UUID) (*SessionState, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	state := entry.state
	return &state, true, nil
}

func (s *MemorySessionStore) Put(_ context.Context, state *SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[state.InterviewID] = memoryEntry{state: *state, expiresAt: time.Now().Add(s.ttl)}
	return nil
}

func (s *MemorySessionStore) Remove(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemorySessionStore) Close() {
	s.once.Do(func() { close(s.stopChan) })
}

func (s *MemorySessionStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *MemorySessionStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
}

// RedisSessionStore shares states between instances.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl, prefix: "interview:session:"}
}

func (s *RedisSessionStore) key(id uuid.UUID) string {
	return s.prefix + id.String()
}

func (s *RedisSessionStore) Get(ctx context.Context, id uuid.UUID) (*SessionState, bool, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read session state: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, false, fmt.Errorf("failed to decode session state: %w", err)
	}
	return &state, true, nil
}

func (s *RedisSessionStore) Put(ctx context.Context, state *SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(state.InterviewID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Remove(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove session state: %w", err)
	}
	return nil
}
