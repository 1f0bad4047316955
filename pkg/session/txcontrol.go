package session

import (
	"context"

	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/parser"
	"github.com/kasuganosora/sqlsession/pkg/txn"
)

// ExecTxControl runs a transaction-control statement (BEGIN, COMMIT,
// ROLLBACK, SET TRANSACTION) against the session state and returns the
// resulting transaction state.
func (s *Session) ExecTxControl(ctx context.Context, sql string) (*txn.Info, error) {
	ctl, err := parser.ParseTxControl(sql)
	if err != nil {
		return nil, err
	}

	switch ctl.Kind {
	case parser.TxBegin:
		opt, err := s.beginOption(ctl.Option)
		if err != nil {
			return nil, err
		}
		return s.StartTransaction(ctx, opt)
	case parser.TxCommit, parser.TxRollback:
		commit := ctl.Kind == parser.TxCommit
		info, err := s.complete(ctx, commit, ctl.Chain)
		if err != nil {
			return nil, err
		}
		if ctl.Release {
			if err := s.Close(ctx); err != nil {
				return nil, err
			}
		}
		return info, nil
	case parser.TxSetTransaction:
		if err := s.setTransaction(ctl); err != nil {
			return nil, err
		}
		return s.TransactionInfo(), nil
	default:
		return nil, errs.Errorf(errs.ErrCodeNotSupported, "unsupported statement %s", ctl.Kind)
	}
}

// beginOption merges START TRANSACTION with pending SET TRANSACTION
// characteristics.
func (s *Session) beginOption(requested *txn.Option) (*txn.Option, error) {
	s.mu.Lock()
	next := s.next
	defaultReadOnly := s.readonly || s.defaultReadOnly
	s.mu.Unlock()

	isolation, _ := requested.Isolation()
	readOnly := requested.ReadOnly() || defaultReadOnly
	if next != nil {
		if iso, ok := next.Isolation(); ok {
			isolation = iso
		}
		readOnly = readOnly || next.ReadOnly()
	}
	return txn.NewOption(isolation, readOnly)
}

func (s *Session) setTransaction(ctl *parser.TxControl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	isolation, hasIsolation := ctl.Option.Isolation()
	if ctl.HasReadOnly && !ctl.Option.ReadOnly() && s.readonly {
		return errs.Errorf(errs.ErrCodeTransaction, "readonly session[%s] can't set read write", s.name)
	}

	switch ctl.Scope {
	case parser.ScopeGlobal:
		return errs.NewError(errs.ErrCodeNotSupported, "SET GLOBAL TRANSACTION is not supported by session", nil)
	case parser.ScopeSession:
		if isolation.IsPseudo() {
			return errs.NewError(errs.ErrCodeInvalidParam, "session isolation can't be PSEUDO", nil)
		}
		if hasIsolation {
			s.isolation = isolation
		}
		if ctl.HasReadOnly {
			s.defaultReadOnly = ctl.Option.ReadOnly()
		}
	default:
		if s.info != nil && s.info.InTransaction() {
			return errs.Errorf(errs.ErrCodeTransaction, "session[%s] in transaction, can't change next transaction characteristics", s.name)
		}
		readOnly := s.readonly || s.defaultReadOnly
		if ctl.HasReadOnly {
			readOnly = ctl.Option.ReadOnly()
		}
		opt, err := txn.NewOption(isolation, readOnly)
		if err != nil {
			return err
		}
		s.next = opt
	}
	s.factory.logger.Debug("session[%s] set transaction %s", s.name, ctl)
	return nil
}
