package writelock

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/wsserial/internal/protocol"
)

func TestTryLockExclusive(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.TryLock("COM1", "a"))
	require.NoError(t, r.TryLock("COM1", "a"), "relocking by the holder is a no-op")

	err := r.TryLock("COM1", "b")
	assert.True(t, errors.Is(err, protocol.ErrAlreadyWriteLocked))
	assert.Equal(t, "Port 'COM1' is already writelocked", err.Error())

	assert.Equal(t, map[string]string{"COM1": "a"}, r.Owners())
	assert.Equal(t, 1, r.Len())
}

func TestCheckOwned(t *testing.T) {
	r := NewRegistry()

	assert.True(t, errors.Is(r.CheckOwned("COM1", "a"), protocol.ErrNeedWriteLock))

	require.NoError(t, r.TryLock("COM1", "a"))
	assert.NoError(t, r.CheckOwned("COM1", "a"))
	assert.True(t, errors.Is(r.CheckOwned("COM1", "b"), protocol.ErrAlreadyWriteLocked))
}

func TestUnlock(t *testing.T) {
	r := NewRegistry()

	assert.NoError(t, r.Unlock("COM1", "a"), "unlocking an unlocked port succeeds")

	require.NoError(t, r.TryLock("COM1", "a"))
	err := r.Unlock("COM1", "b")
	assert.True(t, errors.Is(err, protocol.ErrAlreadyWriteLocked))
	assert.Equal(t, "a", r.Owners()["COM1"], "failed unlock has no side effects")

	require.NoError(t, r.Unlock("COM1", "a"))
	assert.NotContains(t, r.Owners(), "COM1")
}

func TestUnlockIfOwnedBy(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.TryLock("COM1", "a"))

	r.UnlockIfOwnedBy("COM1", "b")
	assert.Equal(t, 1, r.Len())

	r.UnlockIfOwnedBy("COM1", "a")
	assert.Equal(t, 0, r.Len())

	r.UnlockIfOwnedBy("COM2", "a")
}

func TestUnlockAllForAndClear(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.TryLock("COM1", "a"))
	require.NoError(t, r.TryLock("COM3", "a"))
	require.NoError(t, r.TryLock("COM2", "b"))

	assert.Equal(t, []string{"COM1", "COM3"}, r.UnlockAllFor("a"))
	assert.Empty(t, r.UnlockAllFor("a"))
	assert.Equal(t, map[string]string{"COM2": "b"}, r.Owners())

	r.Clear("COM2")
	assert.Equal(t, 0, r.Len())
}
