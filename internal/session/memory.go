package session

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"
)

// MemoryStore はプロセス内メモリに保存するストアです。
// interval が正ならバックグラウンドで期限切れを掃除します。Close で停止します。
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]Session

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore(ttl, interval time.Duration) *MemoryStore {
	s := &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]Session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if interval > 0 {
		go s.janitor(interval)
	} else {
		close(s.done)
	}
	return s
}

func (s *MemoryStore) janitor(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = s.DeleteExpired(context.Background())
		case <-s.stop:
			return
		}
	}
}

// Close は掃除用ゴルーチンを停止します。
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *MemoryStore) Create(_ context.Context, payload Payload) (string, error) {
	if err := validatePayload(payload); err != nil {
		return "", err
	}
	id, err := GenerateID()
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}

	now := s.now().UTC()
	s.mu.Lock()
	s.sessions[id] = Session{
		ID:        id,
		User:      payload.User,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	if record.IsExpiredAt(s.now()) {
		delete(s.sessions, id)
		return nil, nil
	}
	return &record, nil
}

func (s *MemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.sessions[id]
	if !ok {
		return nil
	}
	now := s.now()
	if record.IsExpiredAt(now) {
		delete(s.sessions, id)
		return nil
	}
	record.ExpiresAt = now.UTC().Add(s.ttl)
	s.sessions[id] = record
	return nil
}

// DeleteExpired は期限切れのセッションを削除し、削除件数を返します。
func (s *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var deleted int64
	for id, record := range s.sessions {
		if record.IsExpiredAt(now) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// Len は保存中のセッション数を返します。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
