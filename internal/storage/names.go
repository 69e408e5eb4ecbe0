package storage

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// NicknameDirectory caches user display names. Registration is external to
// the broadcast core; unseen users get a deterministic placeholder derived
// from their ID, the same fallback the client expects.
type NicknameDirectory struct {
	mu    sync.Mutex
	cache *lru.Cache[string, string]
}

func NewNicknameDirectory(size int) (*NicknameDirectory, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &NicknameDirectory{cache: cache}, nil
}

// SetNickname records a user's display name.
func (d *NicknameDirectory) SetNickname(userID, nickname string) {
	if nickname == "" {
		return
	}
	d.mu.Lock()
	d.cache.Add(userID, nickname)
	d.mu.Unlock()
}

// Nickname resolves a user's display name, falling back to user_<id prefix>.
func (d *NicknameDirectory) Nickname(userID string) string {
	d.mu.Lock()
	nick, ok := d.cache.Get(userID)
	d.mu.Unlock()
	if ok {
		return nick
	}
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("user_%s", short)
}
