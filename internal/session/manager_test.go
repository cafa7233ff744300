package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainScope-Agent/internal/agent"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestAcquireCreatesAndReuses(t *testing.T) {
	m := NewManager(agent.New(nil, nil, nil))

	first, created := m.Acquire("")
	require.True(t, created)
	require.NotEmpty(t, first.ID())

	again, created := m.Acquire(first.ID())
	assert.False(t, created)
	assert.Same(t, first, again)

	named, created := m.Acquire("client-1")
	assert.True(t, created)
	assert.Equal(t, "client-1", named.ID())
	assert.Equal(t, 2, m.Len())
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	c := &clock{now: time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)}
	m := NewManager(agent.New(nil, nil, nil), WithTTL(time.Minute), WithClock(c.Now))

	idle, _ := m.Acquire("idle")
	active, _ := m.Acquire("active")

	c.now = c.now.Add(45 * time.Second)
	_, ok := m.Lookup(active.ID())
	require.True(t, ok)

	c.now = c.now.Add(30 * time.Second)
	assert.Equal(t, 1, m.Sweep())

	_, ok = m.Lookup(idle.ID())
	assert.False(t, ok)
	_, ok = m.Lookup(active.ID())
	assert.True(t, ok)
}

func TestCloseAndList(t *testing.T) {
	m := NewManager(agent.New(nil, nil, nil))
	s, _ := m.Acquire("a")

	infos := m.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "a", infos[0].ID)
	assert.Zero(t, infos[0].Messages)

	assert.True(t, m.Close(s.ID()))
	assert.False(t, m.Close(s.ID()))
	assert.Zero(t, m.Len())
}
