// Package stmt holds per-statement execution options and the timeout
// arithmetic every statement option shares.
package stmt

import (
	"context"
	"fmt"
	"time"

	"github.com/kasuganosora/sqlsession/pkg/clock"
	"github.com/kasuganosora/sqlsession/pkg/errs"
)

// Option is an immutable statement execution option.
//
// When a timeout is set the start time is captured at Build, and the
// remaining budget is computed against it on every call.
type Option struct {
	fetchSize             int
	frequency             int
	preferServerPrepare   bool
	parseBatchAsMultiStmt bool
	multiStmtMode         MultiStmtMode
	timeoutMillis         int
	start                 time.Time
	clock                 clock.Clock
	stateConsumer         func(*ResultStates)
}

var defaultOption = &Option{}

// Default returns the option without timeout or fetch size.
func Default() *Option {
	return defaultOption
}

// FetchSize 每次拉取的行数，0 为驱动默认
func (o *Option) FetchSize() int {
	return o.fetchSize
}

// Frequency 批量语句的序号，用于区分同一批次中的语句
func (o *Option) Frequency() int {
	return o.frequency
}

// PreferServerPrepare 是否优先使用服务端预处理
func (o *Option) PreferServerPrepare() bool {
	return o.preferServerPrepare
}

// ParseBatchAsMultiStmt 是否把批量语句作为多语句发送
func (o *Option) ParseBatchAsMultiStmt() bool {
	return o.parseBatchAsMultiStmt
}

// MultiStmtMode 多语句模式
func (o *Option) MultiStmtMode() MultiStmtMode {
	return o.multiStmtMode
}

// TimeoutMillis 超时毫秒数，0 表示不限
func (o *Option) TimeoutMillis() int {
	return o.timeoutMillis
}

// StartMillis returns the Unix milliseconds the budget started at, or 0
// without timeout.
func (o *Option) StartMillis() int64 {
	if !o.IsSupportTimeout() {
		return 0
	}
	return clock.Millis(o.start)
}

// IsSupportTimeout 是否设置了超时
func (o *Option) IsSupportTimeout() bool {
	return o.timeoutMillis > 0
}

// rest returns the remaining budget. Elapsed time is measured with the
// monotonic reading of the start time when the clock provides one.
func (o *Option) rest() (time.Duration, error) {
	if o.timeoutMillis < 1 {
		return 0, errs.NewError(errs.ErrCodeIllegalState, "timeout not supported", nil)
	}
	timeout := time.Duration(o.timeoutMillis) * time.Millisecond
	elapsed := clock.OrDefault(o.clock).Now().Sub(o.start)
	rest := timeout - elapsed
	if elapsed < 0 {
		// 时钟回拨
		return rest, errs.NewTimeoutError(fmt.Sprintf("clock went backward %s", -elapsed), rest.Milliseconds())
	}
	return rest, nil
}

// RestMillSeconds returns the remaining budget in milliseconds. It fails with
// ILLEGAL_STATE without timeout and with *errs.TimeoutError once less than one
// millisecond is left.
func (o *Option) RestMillSeconds() (int, error) {
	rest, err := o.rest()
	if err != nil {
		return 0, err
	}
	ms := rest.Milliseconds()
	if ms < 1 {
		return 0, errs.NewTimeoutError(fmt.Sprintf("timeout %d ms expired", o.timeoutMillis), ms)
	}
	return int(ms), nil
}

// RestSeconds returns RestMillSeconds multiplied by 1000, at least 1.
//
// NOTE: the result is milliseconds times 1000, not seconds. Existing callers
// compensate for it; new code should use Rest.
func (o *Option) RestSeconds() (int, error) {
	ms, err := o.RestMillSeconds()
	if err != nil {
		return 0, err
	}
	seconds := ms * 1000
	if seconds < 1 {
		seconds = 1
	}
	return seconds, nil
}

// Rest returns the remaining budget as a duration.
func (o *Option) Rest() (time.Duration, error) {
	rest, err := o.rest()
	if err != nil {
		return 0, err
	}
	if rest <= 0 {
		return 0, errs.NewTimeoutError(fmt.Sprintf("timeout %d ms expired", o.timeoutMillis), rest.Milliseconds())
	}
	return rest, nil
}

// Context derives a context that expires with the remaining budget. Without
// timeout it only adds cancellation.
func (o *Option) Context(parent context.Context) (context.Context, context.CancelFunc, error) {
	if !o.IsSupportTimeout() {
		ctx, cancel := context.WithCancel(parent)
		return ctx, cancel, nil
	}
	rest, err := o.Rest()
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(parent, rest)
	return ctx, cancel, nil
}

// Consume passes states to the result-state callback, if any.
func (o *Option) Consume(states *ResultStates) {
	if o.stateConsumer != nil && states != nil {
		o.stateConsumer(states)
	}
}

// HasStateConsumer 是否设置了结果状态回调
func (o *Option) HasStateConsumer() bool {
	return o.stateConsumer != nil
}

func (o *Option) String() string {
	return fmt.Sprintf("StmtOption{fetchSize:%d, timeoutMillis:%d, multiStmtMode:%s, preferServerPrepare:%t}",
		o.fetchSize, o.timeoutMillis, o.multiStmtMode, o.preferServerPrepare)
}

// Builder 语句选项构建器，非并发安全
type Builder struct {
	opt Option
	err error
}

// NewBuilder 创建语句选项构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// FetchSize 设置拉取行数
func (b *Builder) FetchSize(n int) *Builder {
	if n < 0 {
		b.fail("fetch size must be non-negative, got %d", n)
	}
	b.opt.fetchSize = n
	return b
}

// Frequency 设置批次序号
func (b *Builder) Frequency(n int) *Builder {
	b.opt.frequency = n
	return b
}

// PreferServerPrepare 设置是否优先服务端预处理
func (b *Builder) PreferServerPrepare(v bool) *Builder {
	b.opt.preferServerPrepare = v
	return b
}

// ParseBatchAsMultiStmt 设置批量语句是否合并发送
func (b *Builder) ParseBatchAsMultiStmt(v bool) *Builder {
	b.opt.parseBatchAsMultiStmt = v
	return b
}

// MultiStmtMode 设置多语句模式
func (b *Builder) MultiStmtMode(m MultiStmtMode) *Builder {
	if m < MultiStmtDefault || m > MultiStmtMulti {
		b.fail("unknown multi statement mode %d", int(m))
	}
	b.opt.multiStmtMode = m
	return b
}

// TimeoutMillis sets the budget; 0 means unbounded.
func (b *Builder) TimeoutMillis(ms int) *Builder {
	if ms < 0 {
		b.fail("timeout must be non-negative, got %d", ms)
	}
	b.opt.timeoutMillis = ms
	return b
}

// Timeout sets the budget from a duration, rounded up to a millisecond.
func (b *Builder) Timeout(d time.Duration) *Builder {
	ms := d.Milliseconds()
	if d%time.Millisecond != 0 {
		ms++
	}
	return b.TimeoutMillis(int(ms))
}

// StateConsumer 设置结果状态回调
func (b *Builder) StateConsumer(f func(*ResultStates)) *Builder {
	b.opt.stateConsumer = f
	return b
}

// Clock sets the time source, the process clock when unset.
func (b *Builder) Clock(c clock.Clock) *Builder {
	b.opt.clock = c
	return b
}

func (b *Builder) fail(format string, args ...interface{}) {
	if b.err == nil {
		b.err = errs.Errorf(errs.ErrCodeInvalidParam, format, args...)
	}
}

// Build validates and returns an immutable Option, capturing the start time
// when a timeout is set.
func (b *Builder) Build() (*Option, error) {
	if b.err != nil {
		return nil, b.err
	}
	opt := b.opt
	opt.clock = clock.OrDefault(opt.clock)
	if opt.timeoutMillis > 0 {
		opt.start = opt.clock.Now()
	}
	return &opt, nil
}
