package monitor

import (
	"errors"
	"sync"
	"time"

	"github.com/kasuganosora/sqlsession/pkg/clock"
	"github.com/kasuganosora/sqlsession/pkg/errs"
)

// MetricsCollector 会话工厂的事务与语句指标
type MetricsCollector struct {
	mu    sync.RWMutex
	clock clock.Clock

	begins             int64
	commits            int64
	rollbacks          int64
	prepares           int64
	timeouts           int64
	activeTransactions int64

	statements      int64
	statementErrors int64
	totalDuration   time.Duration
	slowStatements  int64
	errorCount      map[errs.ErrorCode]int64
	startTime       time.Time
}

// NewMetricsCollector 创建指标收集器，c 为 nil 时使用默认时钟
func NewMetricsCollector(c clock.Clock) *MetricsCollector {
	c = clock.OrDefault(c)
	return &MetricsCollector{
		clock:      c,
		errorCount: make(map[errs.ErrorCode]int64),
		startTime:  c.Now(),
	}
}

// RecordBegin 记录事务开始
func (m *MetricsCollector) RecordBegin() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.begins++
	m.activeTransactions++
}

// RecordCommit records a commit of a transaction started on this factory.
func (m *MetricsCollector) RecordCommit() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commits++
	m.endActive()
}

// RecordRollback records a rollback of a transaction started on this factory.
func (m *MetricsCollector) RecordRollback() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollbacks++
	m.endActive()
}

// RecordPrepare records an XA branch leaving the session in the prepared
// state. The branch no longer counts as active.
func (m *MetricsCollector) RecordPrepare() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prepares++
	m.endActive()
}

// RecordRecoveredCompletion 记录已准备分支的提交或回滚，不影响活跃事务数
func (m *MetricsCollector) RecordRecoveredCompletion(commit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if commit {
		m.commits++
	} else {
		m.rollbacks++
	}
}

// RecordTimeout 记录事务超时
func (m *MetricsCollector) RecordTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timeouts++
}

func (m *MetricsCollector) endActive() {
	if m.activeTransactions > 0 {
		m.activeTransactions--
	}
}

// RecordStatement records one executed statement. A failed statement also
// counts under its error code.
func (m *MetricsCollector) RecordStatement(duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statements++
	m.totalDuration += duration
	if err != nil {
		m.statementErrors++
		m.errorCount[ErrorCodeOf(err)]++
	}
}

// RecordSlowStatement 记录慢语句
func (m *MetricsCollector) RecordSlowStatement() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slowStatements++
}

// ErrorCodeOf returns the code errors are counted under. Timeouts count as
// TIMEOUT and errors without a code as INTERNAL.
func ErrorCodeOf(err error) errs.ErrorCode {
	var timeout *errs.TimeoutError
	if errors.As(err, &timeout) {
		return errs.ErrCodeTimeout
	}
	if code := errs.GetErrorCode(err); code != "" {
		return code
	}
	return errs.ErrCodeInternal
}

// GetActiveTransactions 获取当前活跃事务数
func (m *MetricsCollector) GetActiveTransactions() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeTransactions
}

// GetErrorCount 获取指定错误码的次数
func (m *MetricsCollector) GetErrorCount(code errs.ErrorCode) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorCount[code]
}

// GetAvgDuration 获取平均语句时长
func (m *MetricsCollector) GetAvgDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.statements == 0 {
		return 0
	}
	return m.totalDuration / time.Duration(m.statements)
}

// Reset 重置所有指标
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.begins = 0
	m.commits = 0
	m.rollbacks = 0
	m.prepares = 0
	m.timeouts = 0
	m.activeTransactions = 0
	m.statements = 0
	m.statementErrors = 0
	m.totalDuration = 0
	m.slowStatements = 0
	m.errorCount = make(map[errs.ErrorCode]int64)
	m.startTime = m.clock.Now()
}

// Metrics 指标快照
type Metrics struct {
	Begins             int64
	Commits            int64
	Rollbacks          int64
	Prepares           int64
	Timeouts           int64
	ActiveTransactions int64
	Statements         int64
	StatementErrors    int64
	AvgDuration        time.Duration
	SlowStatements     int64
	ErrorCount         map[errs.ErrorCode]int64
	Uptime             time.Duration
}

// GetSnapshot 获取指标快照
func (m *MetricsCollector) GetSnapshot() *Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var avgDuration time.Duration
	if m.statements > 0 {
		avgDuration = m.totalDuration / time.Duration(m.statements)
	}

	errorsCopy := make(map[errs.ErrorCode]int64, len(m.errorCount))
	for k, v := range m.errorCount {
		errorsCopy[k] = v
	}

	return &Metrics{
		Begins:             m.begins,
		Commits:            m.commits,
		Rollbacks:          m.rollbacks,
		Prepares:           m.prepares,
		Timeouts:           m.timeouts,
		ActiveTransactions: m.activeTransactions,
		Statements:         m.statements,
		StatementErrors:    m.statementErrors,
		AvgDuration:        avgDuration,
		SlowStatements:     m.slowStatements,
		ErrorCount:         errorsCopy,
		Uptime:             m.clock.Now().Sub(m.startTime),
	}
}
