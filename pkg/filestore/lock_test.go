package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSetAcquireRelease(t *testing.T) {
	locks := newLockSet()
	assert.True(t, locks.Empty())

	locks.Acquire(2, "alice")
	assert.False(t, locks.Empty())
	assert.Equal(t, "alice", locks.HolderOf(2))

	idx, ok := locks.LockOf("alice")
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	locks.Release("alice")
	assert.True(t, locks.Empty())
	assert.Equal(t, "", locks.HolderOf(2))
}

func TestLockSetReleaseUnknownUserIsNoop(t *testing.T) {
	locks := newLockSet()
	locks.Release("nobody")
	assert.True(t, locks.Empty())
}

func TestLockSetShiftFrom(t *testing.T) {
	locks := newLockSet()
	locks.Acquire(0, "alice")
	locks.Acquire(1, "bob")
	locks.Acquire(3, "carol")

	locks.ShiftFrom(0)

	assert.Equal(t, "alice", locks.HolderOf(0))
	assert.Equal(t, "bob", locks.HolderOf(2))
	assert.Equal(t, "carol", locks.HolderOf(4))
	assert.Equal(t, "", locks.HolderOf(1))
	assert.Equal(t, "", locks.HolderOf(3))

	idx, ok := locks.LockOf("bob")
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestLockSetShiftFromDoesNotTouchAtOrBelow(t *testing.T) {
	locks := newLockSet()
	locks.Acquire(1, "alice")
	locks.ShiftFrom(1)
	assert.Equal(t, "alice", locks.HolderOf(1))
}
