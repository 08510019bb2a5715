package session

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ttlTokenHalfK 自适应 TTL 的半饱和常数
// tokens 达到该量级时 TTL 大约走到 min 和 max 的中点
const ttlTokenHalfK = 50000

// entry 单个会话条目
type entry struct {
	sessionID   string
	lastSeen    time.Time
	totalTokens int64
}

// Manager 身份指纹 → 会话 id 的映射，带自适应 TTL 清理
// 轻度使用者用短 TTL 控制内存，重度使用者保留更久以维持路由亲和
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry

	ttlMin          time.Duration
	ttlMax          time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time

	now func() time.Time // 测试注入
}

// NewManager 新建会话管理器
func NewManager(ttlMin, ttlMax, cleanupInterval time.Duration) *Manager {
	if cleanupInterval < time.Second {
		cleanupInterval = time.Second
	}
	return &Manager{
		entries:         map[string]*entry{},
		ttlMin:          ttlMin,
		ttlMax:          ttlMax,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
}

// Resolve 返回该身份的会话 id，没有就新建
// 顺带在到达清理间隔时做一次过期清理
func (m *Manager) Resolve(identity string) string {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastCleanup) >= m.cleanupInterval {
		m.cleanupLocked(now)
		m.lastCleanup = now
	}

	existing, ok := m.entries[identity]
	if !ok {
		existing = &entry{sessionID: uuid.NewString()}
		m.entries[identity] = existing
	}
	existing.lastSeen = now
	return existing.sessionID
}

// AddUsage 累计会话 token 用量（饱和加法），条目不存在时创建
func (m *Manager) AddUsage(identity string, tokens int) {
	if tokens < 0 {
		tokens = 0
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.entries[identity]
	if !ok {
		existing = &entry{sessionID: uuid.NewString()}
		m.entries[identity] = existing
	}
	existing.lastSeen = now

	sum := existing.totalTokens + int64(tokens)
	if sum < existing.totalTokens {
		sum = int64(^uint64(0) >> 1)
	}
	existing.totalTokens = sum
}

// CleanupExpired 清除超过自适应 TTL 的条目，返回清除数量
func (m *Manager) CleanupExpired() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanupLocked(now)
}

func (m *Manager) cleanupLocked(now time.Time) int {
	evicted := 0
	for identity, existing := range m.entries {
		if now.Sub(existing.lastSeen) > m.adaptiveTTL(existing.totalTokens) {
			delete(m.entries, identity)
			evicted++
		}
	}
	if evicted > 0 {
		log.Printf("🗑️ 会话清理: 移除 %d 个过期会话, 剩余 %d 个", evicted, len(m.entries))
	}
	return evicted
}

// adaptiveTTL TTL 随累计 tokens 单调上升并收拢在 [ttlMin, ttlMax]
func (m *Manager) adaptiveTTL(tokens int64) time.Duration {
	if m.ttlMax <= m.ttlMin {
		return m.ttlMin
	}

	fraction := float64(tokens) / float64(tokens+ttlTokenHalfK)
	ttl := m.ttlMin + time.Duration(float64(m.ttlMax-m.ttlMin)*fraction)
	if ttl < m.ttlMin {
		return m.ttlMin
	}
	if ttl > m.ttlMax {
		return m.ttlMax
	}
	return ttl
}

// Len 当前条目数
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// StartCleanupLoop 启动后台定期清理
func (m *Manager) StartCleanupLoop() {
	go func() {
		ticker := time.NewTicker(m.cleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			m.CleanupExpired()
		}
	}()
}
