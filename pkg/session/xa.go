package session

import (
	"context"
	"fmt"

	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/txn"
)

// JournalWriteError reports a branch the database has prepared but the journal
// failed to record. The branch stays prepared: resolve it with XaCommit or
// XaRollback by Xid, or find it again through the database's XaRecover.
type JournalWriteError struct {
	Xid   *txn.Xid
	Cause error
}

func (e *JournalWriteError) Error() string {
	return fmt.Sprintf("xa branch %s prepared, journal write failed: %v", e.Xid, e.Cause)
}

func (e *JournalWriteError) Unwrap() error {
	return e.Cause
}

func (s *Session) xaExecutor() (XaExecutor, error) {
	xe, ok := s.exec.(XaExecutor)
	if !ok {
		return nil, errs.Errorf(errs.ErrCodeNotSupported, "executor of session[%s] don't support xa", s.name)
	}
	return xe, nil
}

// SupportXa 执行器是否支持 XA
func (s *Session) SupportXa() bool {
	_, ok := s.exec.(XaExecutor)
	return ok
}

// XaStart starts branch xid. The branch gets opt's isolation, or the session
// isolation when opt has none.
func (s *Session) XaStart(ctx context.Context, xid *txn.Xid, opt *txn.Option, flags int) (*txn.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	xe, err := s.xaExecutor()
	if err != nil {
		return nil, err
	}
	if xid == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "xid is nil", nil)
	}
	if s.info != nil {
		return nil, errs.Errorf(errs.ErrCodeTransaction, "session[%s] already in transaction", s.name)
	}
	if opt == nil {
		opt = s.defaultOption()
	}
	s.next = nil
	if s.readonly && !opt.ReadOnly() {
		return nil, errs.Errorf(errs.ErrCodeTransaction, "readonly session[%s] can't start read-write xa transaction", s.name)
	}

	isolation, ok := opt.Isolation()
	if !ok {
		isolation = s.isolation
	}
	if isolation == "" {
		isolation = s.exec.DefaultIsolation()
	}
	if isolation == "" {
		isolation = txn.RepeatableRead
	}
	// 先做状态校验，避免执行器已开始分支而本地状态无法建立
	info, err := txn.XaStartInfo(xid, isolation, opt, flags, s.nowMillis())
	if err != nil {
		return nil, err
	}
	if err := xe.XaStart(ctx, xid, isolation, opt.ReadOnly(), flags); err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeTransaction, "xa start")
	}
	s.info = info
	s.factory.metrics.RecordBegin()
	s.factory.logger.Debug("session[%s] xa start %s", s.name, xid)
	return info, nil
}

// XaEnd ends the active branch. TMFail makes it rollback-only.
func (s *Session) XaEnd(ctx context.Context, xid *txn.Xid, flags int) (*txn.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	xe, err := s.xaExecutor()
	if err != nil {
		return nil, err
	}
	info, err := txn.XaEndInfo(s.info, xid, flags)
	if err != nil {
		return nil, err
	}
	if err := xe.XaEnd(ctx, xid, flags); err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeTransaction, "xa end")
	}
	s.info = info
	s.factory.logger.Debug("session[%s] xa end %s, flags:%d", s.name, xid, flags)
	return info, nil
}

// XaPrepare prepares the idle branch and records it in the journal. The
// session is free for a new transaction afterwards. If only the journal write
// fails the error is a *JournalWriteError and no info is returned.
func (s *Session) XaPrepare(ctx context.Context, xid *txn.Xid) (*txn.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	xe, err := s.xaExecutor()
	if err != nil {
		return nil, err
	}
	prepared, err := txn.XaPrepareInfo(s.info, xid)
	if err != nil {
		return nil, err
	}
	if err := xe.XaPrepare(ctx, xid); err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeTransaction, "xa prepare")
	}
	s.info = nil
	s.factory.metrics.RecordPrepare()
	if j := s.factory.journal; j != nil {
		if err := j.Record(prepared, s.nowMillis()); err != nil {
			s.factory.logger.Error("session[%s] xa branch %s prepared, journal write failed: %v", s.name, xid, err)
			return nil, &JournalWriteError{Xid: xid, Cause: err}
		}
	}
	s.factory.logger.Debug("session[%s] xa prepare %s", s.name, xid)
	return prepared, nil
}

// XaCommit commits a branch. With TMOnePhase the branch must be this
// session's idle branch; otherwise xid names a prepared branch, possibly one
// prepared by another session.
func (s *Session) XaCommit(ctx context.Context, xid *txn.Xid, flags int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	xe, err := s.xaExecutor()
	if err != nil {
		return err
	}
	if xid == nil {
		return errs.NewError(errs.ErrCodeNullArgument, "xid is nil", nil)
	}
	if err := txn.ValidateXaFlags(txn.XaPhaseCommit, flags); err != nil {
		return err
	}

	if flags&txn.TMOnePhase != 0 {
		// 一阶段提交等价于 PREPARE + COMMIT，沿用 PREPARE 的状态校验
		if _, err := txn.XaPrepareInfo(s.info, xid); err != nil {
			return err
		}
		if err := xe.XaCommit(ctx, xid, true); err != nil {
			return errs.WrapError(err, errs.ErrCodeTransaction, "xa commit one phase")
		}
		s.info = nil
		s.factory.metrics.RecordCommit()
		s.factory.logger.Debug("session[%s] xa commit one phase %s", s.name, xid)
		return nil
	}

	if current, ok := txn.XidOfInfo(s.info); ok && current.Equal(xid) {
		return errs.Errorf(errs.ErrCodeIllegalState, "%s not prepared", xid)
	}
	if err := xe.XaCommit(ctx, xid, false); err != nil {
		return errs.WrapError(err, errs.ErrCodeTransaction, "xa commit")
	}
	s.forget(xid)
	s.factory.metrics.RecordRecoveredCompletion(true)
	s.factory.logger.Debug("session[%s] xa commit %s", s.name, xid)
	return nil
}

// XaRollback rolls back this session's idle branch, or a prepared branch.
func (s *Session) XaRollback(ctx context.Context, xid *txn.Xid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	xe, err := s.xaExecutor()
	if err != nil {
		return err
	}
	if xid == nil {
		return errs.NewError(errs.ErrCodeNullArgument, "xid is nil", nil)
	}

	current, ok := txn.XidOfInfo(s.info)
	own := ok && current.Equal(xid)
	if own {
		if states, _ := txn.XaStatesOfInfo(s.info); states == txn.XaActive {
			return errs.Errorf(errs.ErrCodeIllegalState, "%s is ACTIVE, end it first", xid)
		}
	}
	if err := xe.XaRollback(ctx, xid); err != nil {
		return errs.WrapError(err, errs.ErrCodeTransaction, "xa rollback")
	}
	if own {
		s.info = nil
		s.factory.metrics.RecordRollback()
	} else {
		s.forget(xid)
		s.factory.metrics.RecordRecoveredCompletion(false)
	}
	s.factory.logger.Debug("session[%s] xa rollback %s", s.name, xid)
	return nil
}

// XaRecover lists prepared branches known to the database and the journal.
func (s *Session) XaRecover(ctx context.Context, flags int) ([]*txn.Xid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	xe, err := s.xaExecutor()
	if err != nil {
		return nil, err
	}
	if err := txn.ValidateXaFlags(txn.XaPhaseRecover, flags); err != nil {
		return nil, err
	}

	xids, err := xe.XaRecover(ctx, flags)
	if err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeTransaction, "xa recover")
	}
	seen := make(map[txn.XidKey]struct{}, len(xids))
	for _, x := range xids {
		seen[x.Key()] = struct{}{}
	}
	if j := s.factory.journal; j != nil {
		recorded, err := j.Recover()
		if err != nil {
			return nil, err
		}
		for _, x := range recorded {
			if _, ok := seen[x.Key()]; !ok {
				seen[x.Key()] = struct{}{}
				xids = append(xids, x)
			}
		}
	}
	return xids, nil
}

func (s *Session) forget(xid *txn.Xid) {
	if j := s.factory.journal; j != nil {
		if err := j.Forget(xid); err != nil {
			s.factory.logger.Warn("session[%s] forget %s: %v", s.name, xid, err)
		}
	}
}

// abortXa ends and rolls back the session's branch on close. Called with mu held.
func (s *Session) abortXa(ctx context.Context, info *txn.Info, xid *txn.Xid) {
	xe, ok := s.exec.(XaExecutor)
	if !ok {
		return
	}
	defer s.factory.metrics.RecordRollback()
	if states, _ := txn.XaStatesOfInfo(info); states == txn.XaActive {
		if err := xe.XaEnd(ctx, xid, txn.TMFail); err != nil {
			s.factory.logger.Warn("session[%s] xa end %s on close: %v", s.name, xid, err)
			return
		}
	}
	if err := xe.XaRollback(ctx, xid); err != nil {
		s.factory.logger.Warn("session[%s] xa rollback %s on close: %v", s.name, xid, err)
	}
}
