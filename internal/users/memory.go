package users

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"
)

// MemoryRepository はプロセス内メモリに保存する Repository です。
// 開発環境とテスト用で、再起動するとデータは消えます。
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	byName map[string]User
	order  []string
}

// NewMemoryRepository は空の MemoryRepository を作成します。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextID: 1,
		byName: make(map[string]User),
	}
}

func (r *MemoryRepository) FindByUsername(_ context.Context, username string) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byName[username]
	if !ok {
		return []User{}, nil
	}
	return []User{u}, nil
}

func (r *MemoryRepository) Insert(_ context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, oops.Code("USER_INSERT_FAILED").Errorf("user is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[user.Username]; exists {
		return nil, oops.Code("USER_DUPLICATE").
			With("username", user.Username).
			Wrap(ErrDuplicateUsername)
	}

	created := *user
	created.ID = r.nextID
	created.CreatedAt = time.Now().UTC()
	r.nextID++
	r.byName[created.Username] = created
	r.order = append(r.order, created.Username)
	return &created, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]User, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.byName[name])
	}
	return result, nil
}
