package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNicknameDirectory(t *testing.T) {
	dir, err := NewNicknameDirectory(2)
	require.NoError(t, err)

	t.Run("fallback derives from the user id", func(t *testing.T) {
		assert.Equal(t, "user_1234abcd", dir.Nickname("1234abcd-5678"))
		assert.Equal(t, "user_bob", dir.Nickname("bob"))
	})

	t.Run("registered name wins", func(t *testing.T) {
		dir.SetNickname("1234abcd-5678", "alice")
		assert.Equal(t, "alice", dir.Nickname("1234abcd-5678"))
	})

	t.Run("empty name is ignored", func(t *testing.T) {
		dir.SetNickname("bob", "")
		assert.Equal(t, "user_bob", dir.Nickname("bob"))
	})

	t.Run("eviction falls back, not fails", func(t *testing.T) {
		dir.SetNickname("a", "ann")
		dir.SetNickname("b", "ben")
		dir.SetNickname("c", "cat")
		assert.Equal(t, "user_a", dir.Nickname("a"))
		assert.Equal(t, "cat", dir.Nickname("c"))
	})
}
