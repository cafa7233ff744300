// Package session keeps chat sessions alive between HTTP requests and
// expires the ones that have been idle for longer than the configured TTL.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ChainScope-Agent/internal/agent"
	"ChainScope-Agent/pkg/logger"
)

const defaultTTL = 30 * time.Minute

type entry struct {
	session    *agent.Session
	created    time.Time
	lastActive time.Time
}

// Info 是会话的只读摘要。
type Info struct {
	ID         string    `json:"id"`
	Created    time.Time `json:"created"`
	LastActive time.Time `json:"lastActive"`
	Messages   int       `json:"messages"`
}

// Manager 按 ID 管理会话。
type Manager struct {
	mu       sync.Mutex
	agent    *agent.Agent
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time
}

// Option 自定义 Manager。
type Option func(*Manager)

// WithTTL 设置会话空闲多久后被回收。
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock 注入时钟。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager 创建会话管理器。
func NewManager(ag *agent.Agent, opts ...Option) *Manager {
	m := &Manager{
		agent:    ag,
		sessions: make(map[string]*entry),
		ttl:      defaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Acquire 返回 ID 对应的会话并刷新活跃时间；ID 为空或会话不存在时新建。
// 第二个返回值表示会话是否为新建。
func (m *Manager) Acquire(id string) (*agent.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.sessions[id]; ok && id != "" {
		e.lastActive = now
		return e.session, false
	}

	s := m.agent.NewSessionWithID(id)
	m.sessions[s.ID()] = &entry{session: s, created: now, lastActive: now}
	return s, true
}

// Lookup 返回已存在的会话，不会新建。
func (m *Manager) Lookup(id string) (*agent.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastActive = m.now()
	return e.session, true
}

// Close 删除会话。
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// List 返回所有会话的摘要。
func (m *Manager) List() []Info {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, Info{
			ID:         e.session.ID(),
			Created:    e.created,
			LastActive: e.lastActive,
			Messages:   len(e.session.History()),
		})
	}
	return out
}

// Len 返回当前会话数。
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep 回收空闲超过 TTL 的会话，返回回收数量。
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	expired := 0
	for id, e := range m.sessions {
		if e.lastActive.Before(cutoff) {
			delete(m.sessions, id)
			expired++
		}
	}
	return expired
}

// Run 按 interval 周期性回收会话，直到 ctx 结束。
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := logger.Named("session")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				log.Info("回收空闲会话", slog.Int("expired", n), slog.Int("remaining", m.Len()))
			}
		}
	}
}
