package kvstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Darren9354/openr/state"
)

func TestTtlQueuePopsInDeadlineOrder(t *testing.T) {
	q := NewTtlQueue()
	base := time.Now()
	q.Push("c", 1, 0, base.Add(3*time.Second))
	q.Push("a", 1, 0, base.Add(1*time.Second))
	q.Push("b", 1, 0, base.Add(2*time.Second))

	expired := q.PopExpired(base.Add(2500 * time.Millisecond))
	assert.Len(t, expired, 2)
	assert.Equal(t, state.Key("a"), expired[0].key)
	assert.Equal(t, state.Key("b"), expired[1].key)
	assert.Equal(t, 1, q.Len())
}

func TestTtlQueuePeekDeadlineEmpty(t *testing.T) {
	q := NewTtlQueue()
	assert.True(t, q.PeekDeadline().IsZero())
}

func TestTtlQueueNothingExpiredYet(t *testing.T) {
	q := NewTtlQueue()
	base := time.Now()
	q.Push("a", 1, 0, base.Add(1*time.Hour))
	assert.Empty(t, q.PopExpired(base))
}
