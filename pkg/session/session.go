package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kasuganosora/sqlsession/pkg/clock"
	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/option"
	"github.com/kasuganosora/sqlsession/pkg/stmt"
	"github.com/kasuganosora/sqlsession/pkg/txn"
)

// Session is one logical connection. It is owned by the goroutine that built
// it; the mutex only protects against misuse, not concurrent workloads.
type Session struct {
	id               string
	name             string
	factory          *Factory
	readonly         bool
	allowQueryInsert bool
	visible          Visible
	exec             Executor

	mu sync.Mutex
	// isolation 是会话级默认隔离级别，空串表示执行器默认
	isolation       txn.Isolation
	defaultReadOnly bool
	// next 由 SET TRANSACTION 设置，只作用于下一个事务
	next   *txn.Option
	info   *txn.Info // nil 表示不在事务中
	closed bool
}

// ID 会话唯一ID
func (s *Session) ID() string {
	return s.id
}

// Name 会话名称
func (s *Session) Name() string {
	return s.name
}

// Readonly 会话是否只读
func (s *Session) Readonly() bool {
	return s.readonly
}

// VisibleMode 可见性模式
func (s *Session) VisibleMode() Visible {
	return s.visible
}

// AllowQueryInsert 是否允许 INSERT ... SELECT
func (s *Session) AllowQueryInsert() bool {
	return s.allowQueryInsert
}

// Factory 所属工厂
func (s *Session) Factory() *Factory {
	return s.factory
}

// IsClosed 会话是否已关闭
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ValueOf implements option.Carrier. Transaction keys are answered from the
// current transaction state; unknown keys go to the executor when it is a
// carrier itself.
func (s *Session) ValueOf(key option.Key) (any, bool) {
	switch key {
	case option.Name:
		if s.name == "" {
			return nil, false
		}
		return s.name, true
	case option.ReadOnlySession:
		return s.readonly, true
	case option.InTransaction, option.ReadOnly, option.RollbackOnly, txn.IsolationOption:
		return s.TransactionInfo().ValueOf(key)
	}
	if c, ok := s.exec.(option.Carrier); ok {
		return c.ValueOf(key)
	}
	return nil, false
}

// TransactionInfo returns the current transaction state, or a not-in-
// transaction state with the session isolation.
func (s *Session) TransactionInfo() *txn.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentInfo()
}

func (s *Session) currentInfo() *txn.Info {
	if s.info != nil {
		return s.info
	}
	isolation := s.isolation
	if isolation == "" {
		isolation = s.exec.DefaultIsolation()
	}
	if isolation == "" || isolation.IsPseudo() {
		isolation = txn.RepeatableRead
	}
	// 非伪事务、不在事务中、空扩展，不会校验失败
	info, _ := txn.NewInfo(false, isolation, s.readonly || s.defaultReadOnly, option.Empty)
	return info
}

// InTransaction 是否处于事务块中
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info != nil && s.info.InTransaction()
}

func (s *Session) checkOpen() error {
	if s.closed {
		return errs.Errorf(errs.ErrCodeSessionClosed, "session[%s] closed", s.name)
	}
	return nil
}

func (s *Session) nowMillis() int64 {
	return clock.Millis(s.factory.clock.Now())
}

// requestExt collects the extension options a transaction request hands to
// the resulting state.
func requestExt(opt *txn.Option, startMillis int64) option.Values {
	ext := option.Values{option.StartMillis: startMillis}
	if timeout, ok := option.ValueOf(opt, option.TimeoutMillis); ok {
		ext[option.TimeoutMillis] = timeout
	} else if seconds, ok := option.ValueOf(opt, option.Timeout); ok {
		ext[option.TimeoutMillis] = seconds * 1000
	}
	if name, ok := option.ValueOf(opt, option.Name); ok {
		ext[option.Name] = name
	}
	if label, ok := option.ValueOf(opt, option.Label); ok {
		ext[option.Label] = label
	}
	return ext
}

func (s *Session) defaultOption() *txn.Option {
	if s.next != nil {
		return s.next
	}
	opt, _ := txn.NewOption("", s.readonly || s.defaultReadOnly)
	return opt
}

// StartTransaction starts a transaction. A nil opt uses the characteristics
// set by SET TRANSACTION, or the session defaults. A PSEUDO request starts a
// pseudo transaction without touching the executor.
func (s *Session) StartTransaction(ctx context.Context, opt *txn.Option) (*txn.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.info != nil {
		return nil, errs.Errorf(errs.ErrCodeTransaction, "session[%s] already in transaction", s.name)
	}
	if opt == nil {
		opt = s.defaultOption()
	}
	s.next = nil
	if s.readonly && !opt.ReadOnly() {
		return nil, errs.Errorf(errs.ErrCodeTransaction, "readonly session[%s] can't start read-write transaction", s.name)
	}

	ext := requestExt(opt, s.nowMillis())
	isolation, requested := opt.Isolation()
	if isolation.IsPseudo() {
		info, err := txn.NewPseudoInfo(ext)
		if err != nil {
			return nil, err
		}
		s.info = info
		s.factory.metrics.RecordBegin()
		s.factory.logger.Debug("session[%s] start pseudo transaction", s.name)
		return info, nil
	}
	if !requested {
		isolation = s.isolation
	}

	granted, driverExt, err := s.exec.Begin(ctx, isolation, opt.ReadOnly())
	if err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeTransaction, "start transaction")
	}
	info, err := txn.NewInfo(true, granted, opt.ReadOnly(), option.Overlay(driverExt, ext))
	if err != nil {
		_ = s.exec.Rollback(ctx)
		return nil, err
	}
	s.info = info
	s.factory.metrics.RecordBegin()
	s.factory.logger.Debug("session[%s] start transaction %s", s.name, info)
	return info, nil
}

// Commit commits the current transaction. Without a transaction it does
// nothing. A rollback-only transaction can't be committed; a transaction past
// its TIMEOUT_MILLIS is rolled back and reported as *errs.TimeoutError.
func (s *Session) Commit(ctx context.Context) error {
	_, err := s.complete(ctx, true, false)
	return err
}

// CommitChain commits and immediately starts a transaction with the same
// characteristics.
func (s *Session) CommitChain(ctx context.Context) (*txn.Info, error) {
	return s.complete(ctx, true, true)
}

// Rollback rolls back the current transaction. Without a transaction it does
// nothing.
func (s *Session) Rollback(ctx context.Context) error {
	_, err := s.complete(ctx, false, false)
	return err
}

// RollbackChain rolls back and immediately starts a transaction with the same
// characteristics.
func (s *Session) RollbackChain(ctx context.Context) (*txn.Info, error) {
	return s.complete(ctx, false, true)
}

func (s *Session) complete(ctx context.Context, commit, chain bool) (*txn.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	info := s.info
	if info == nil {
		if chain {
			return nil, errs.Errorf(errs.ErrCodeIllegalState, "session[%s] not in transaction, can't chain", s.name)
		}
		return s.currentInfo(), nil
	}
	if _, ok := txn.XidOfInfo(info); ok {
		return nil, errs.Errorf(errs.ErrCodeIllegalState, "session[%s] in xa transaction %s", s.name, info)
	}
	if commit && info.IsRollbackOnly() {
		return nil, errs.Errorf(errs.ErrCodeTransaction, "session[%s] transaction is rollback only", s.name)
	}

	if info.IsPseudo() {
		s.info = nil
		s.recordEnd(commit)
		if !chain {
			return s.currentInfo(), nil
		}
		next, err := txn.NewPseudoInfo(option.Values{option.Chain: true, option.StartMillis: s.nowMillis()})
		if err != nil {
			return nil, err
		}
		s.info = next
		s.factory.metrics.RecordBegin()
		return next, nil
	}

	if commit {
		if err := s.checkTxTimeout(info); err != nil {
			_ = s.exec.Rollback(ctx)
			s.info = nil
			s.factory.metrics.RecordTimeout()
			s.factory.metrics.RecordRollback()
			s.factory.logger.Warn("session[%s] transaction timeout, rolled back", s.name)
			return nil, err
		}
	}

	action := "rollback"
	var err error
	if commit {
		action = "commit"
		err = s.exec.Commit(ctx)
	} else {
		err = s.exec.Rollback(ctx)
	}
	s.info = nil
	s.recordEnd(commit && err == nil)
	if err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeTransaction, action)
	}
	s.factory.logger.Debug("session[%s] %s, chain:%t", s.name, action, chain)

	if !chain {
		return s.currentInfo(), nil
	}
	if _, _, err := s.exec.Begin(ctx, info.Isolation(), info.ReadOnly()); err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeTransaction, "chain transaction")
	}
	next, err := txn.ForChain(info, s.nowMillis())
	if err != nil {
		_ = s.exec.Rollback(ctx)
		return nil, err
	}
	s.info = next
	s.factory.metrics.RecordBegin()
	return next, nil
}

func (s *Session) recordEnd(commit bool) {
	if commit {
		s.factory.metrics.RecordCommit()
	} else {
		s.factory.metrics.RecordRollback()
	}
}

// checkTxTimeout 检查事务是否超过 TIMEOUT_MILLIS
func (s *Session) checkTxTimeout(info *txn.Info) error {
	timeout, ok := option.ValueOf(info, option.TimeoutMillis)
	if !ok || timeout < 1 {
		return nil
	}
	start, ok := option.ValueOf(info, option.StartMillis)
	if !ok {
		return nil
	}
	rest := int64(timeout) - (s.nowMillis() - start)
	if rest < 1 || rest > int64(timeout) {
		return errs.NewTimeoutError(fmt.Sprintf("session[%s] transaction timeout %d ms", s.name, timeout), rest)
	}
	return nil
}

// SetRollbackOnly marks the current transaction rollback-only.
func (s *Session) SetRollbackOnly() (*txn.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.info == nil {
		return nil, errs.Errorf(errs.ErrCodeIllegalState, "session[%s] not in transaction", s.name)
	}
	info, err := txn.ForRollbackOnly(s.info)
	if err != nil {
		return nil, err
	}
	s.info = info
	return info, nil
}

// StmtBuilder returns a statement option builder preset from the factory's
// statement configuration.
func (s *Session) StmtBuilder() *stmt.Builder {
	return s.factory.stmtCfg.StmtBuilder().Clock(s.factory.clock)
}

// StmtOption 按工厂配置创建语句选项
func (s *Session) StmtOption() (*stmt.Option, error) {
	return s.StmtBuilder().Build()
}

// Compile compiles statement with the session's visible mode.
func (s *Session) Compile(statement Statement) (*Compiled, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if statement == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "statement is nil", nil)
	}
	if s.factory.compiler == nil {
		return nil, errs.Errorf(errs.ErrCodeNotSupported, "factory[%s] has no statement compiler", s.factory.name)
	}
	typ := statement.Type()
	if typ == StmtQueryInsert && !s.allowQueryInsert {
		return nil, errs.Errorf(errs.ErrCodeNotSupported, "session[%s] don't allow query insert", s.name)
	}
	if typ.IsWrite() && s.readonly {
		return nil, errs.Errorf(errs.ErrCodeIllegalState, "readonly session[%s] can't compile %s", s.name, typ)
	}
	return s.factory.compiler.Compile(statement, s.visible)
}

// Execute runs a compiled statement. A nil opt uses StmtOption.
func (s *Session) Execute(ctx context.Context, c *Compiled, opt *stmt.Option) (*stmt.ResultStates, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "compiled statement is nil", nil)
	}
	if s.info != nil && s.info.InTransaction() {
		if s.info.IsRollbackOnly() {
			return nil, errs.Errorf(errs.ErrCodeTransaction, "session[%s] transaction is rollback only", s.name)
		}
		if err := s.checkTxTimeout(s.info); err != nil {
			return nil, err
		}
	}
	if opt == nil {
		var err error
		if opt, err = s.StmtOption(); err != nil {
			return nil, err
		}
	}

	start := s.factory.clock.Now()
	states, err := s.exec.Exec(ctx, c.SQL, c.Args, opt)
	s.recordStatement(c.SQL, s.factory.clock.Now().Sub(start), states, err)
	return states, err
}

func (s *Session) recordStatement(sql string, d time.Duration, states *stmt.ResultStates, err error) {
	s.factory.metrics.RecordStatement(d, err)
	var affected int64
	if states != nil {
		affected = states.AffectedRows
	}
	if s.factory.slowLog.Record(sql, s.name, d, affected, err) != 0 {
		s.factory.metrics.RecordSlowStatement()
		s.factory.logger.Warn("session[%s] slow statement %v: %s", s.name, d, sql)
	}
}

// Close rolls back any open transaction and closes the executor. Closing
// twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if info := s.info; info != nil {
		if xid, ok := txn.XidOfInfo(info); ok {
			s.abortXa(ctx, info, xid)
		} else {
			if info.InTransaction() {
				if err := s.exec.Rollback(ctx); err != nil {
					s.factory.logger.Warn("session[%s] rollback on close: %v", s.name, err)
				}
			}
			s.factory.metrics.RecordRollback()
		}
		s.info = nil
	}

	s.factory.logger.Debug("session[%s] closed", s.name)
	if err := s.exec.Close(); err != nil {
		return errs.WrapError(err, errs.ErrCodeDriver, "close executor")
	}
	return nil
}

func (s *Session) String() string {
	return fmt.Sprintf("Session{name:%s, id:%s, factory:%s, readonly:%t, visible:%s}",
		s.name, s.id, s.factory.name, s.readonly, s.visible)
}
