package monitor

import (
	"sync"
	"time"

	"github.com/kasuganosora/sqlsession/pkg/clock"
)

// SlowStatement 慢语句日志项
type SlowStatement struct {
	ID           int64
	SQL          string
	Session      string
	Duration     time.Duration
	Timestamp    time.Time
	AffectedRows int64
	Error        string
}

// SlowStatementLog keeps the most recent statements that ran at least
// threshold long. The oldest entry is dropped once maxEntries is exceeded.
type SlowStatementLog struct {
	mu         sync.RWMutex
	clock      clock.Clock
	entries    []*SlowStatement
	threshold  time.Duration
	maxEntries int
	nextID     int64
}

// NewSlowStatementLog 创建慢语句日志
func NewSlowStatementLog(threshold time.Duration, maxEntries int, c clock.Clock) *SlowStatementLog {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &SlowStatementLog{
		clock:      clock.OrDefault(c),
		entries:    make([]*SlowStatement, 0, maxEntries),
		threshold:  threshold,
		maxEntries: maxEntries,
		nextID:     1,
	}
}

// IsSlow 检查是否为慢语句
func (s *SlowStatementLog) IsSlow(duration time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold > 0 && duration >= s.threshold
}

// Record stores a slow statement and returns its id, or 0 when duration is
// below the threshold.
func (s *SlowStatementLog) Record(sql, session string, duration time.Duration, affectedRows int64, err error) int64 {
	if !s.IsSlow(duration) {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &SlowStatement{
		ID:           s.nextID,
		SQL:          sql,
		Session:      session,
		Duration:     duration,
		Timestamp:    s.clock.Now(),
		AffectedRows: affectedRows,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.entries = append(s.entries, entry)
	s.nextID++

	// 超出最大条目数时移除最旧的记录
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[1:]
	}
	return entry.ID
}

// Entries 获取所有慢语句，按记录顺序
func (s *SlowStatementLog) Entries() []*SlowStatement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*SlowStatement, len(s.entries))
	copy(result, s.entries)
	return result
}

// BySession 获取指定会话的慢语句
func (s *SlowStatementLog) BySession(session string) []*SlowStatement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*SlowStatement{}
	for _, entry := range s.entries {
		if entry.Session == session {
			result = append(result, entry)
		}
	}
	return result
}

// Threshold 获取慢语句阈值
func (s *SlowStatementLog) Threshold() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// SetThreshold 设置慢语句阈值，0 表示不记录
func (s *SlowStatementLog) SetThreshold(threshold time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
}

// Clear 清空慢语句日志
func (s *SlowStatementLog) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make([]*SlowStatement, 0, s.maxEntries)
	s.nextID = 1
}
