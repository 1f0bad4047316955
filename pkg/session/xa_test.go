package session

import (
	"context"
	"errors"
	"testing"

	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/logger"
	"github.com/kasuganosora/sqlsession/pkg/txn"
	"github.com/kasuganosora/sqlsession/pkg/xajournal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newXaSession(t *testing.T, exec *fakeXaExecutor) (*Session, *xajournal.Journal) {
	t.Helper()
	j, err := xajournal.Open(xajournal.Options{InMemory: true, Logger: logger.NewNoOpLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	f, err := NewFactory(testConfig("xa"), FactoryOptions{
		Executor: executorOf(exec),
		Journal:  j,
		Logger:   logger.NewNoOpLogger(),
		Registry: NewNameRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	s, err := f.Builder().Build(context.Background())
	require.NoError(t, err)
	return s, j
}

func mustXid(t *testing.T, gtrid, bqual string) *txn.Xid {
	t.Helper()
	xid, err := txn.XidOf(gtrid, bqual, 1)
	require.NoError(t, err)
	return xid
}

// TestSession_XaTwoPhase 两阶段提交：START/END/PREPARE 后由任意会话提交
func TestSession_XaTwoPhase(t *testing.T) {
	exec := newFakeXaExecutor()
	s, j := newXaSession(t, exec)
	ctx := context.Background()
	xid := mustXid(t, "g1", "b1")

	info, err := s.XaStart(ctx, xid, nil, txn.TMNoFlags)
	require.NoError(t, err)
	assert.True(t, info.InTransaction())
	states, _ := txn.XaStatesOfInfo(info)
	assert.Equal(t, txn.XaActive, states)

	// XA 分支中不允许本地提交
	err = s.Commit(ctx)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeIllegalState))

	info, err = s.XaEnd(ctx, xid, txn.TMSuccess)
	require.NoError(t, err)
	states, _ = txn.XaStatesOfInfo(info)
	assert.Equal(t, txn.XaIdle, states)

	prepared, err := s.XaPrepare(ctx, xid)
	require.NoError(t, err)
	assert.False(t, prepared.InTransaction())
	assert.False(t, s.InTransaction())

	xids, err := j.Recover()
	require.NoError(t, err)
	require.Len(t, xids, 1)
	assert.True(t, xids[0].Equal(xid))

	// 准备后会话可以开始新的事务
	_, err = s.StartTransaction(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.Rollback(ctx))

	require.NoError(t, s.XaCommit(ctx, xid, txn.TMNoFlags))
	xids, err = j.Recover()
	require.NoError(t, err)
	assert.Empty(t, xids)

	assert.Equal(t, []string{"xa start", "xa end", "xa prepare", "begin", "rollback", "xa commit"}, exec.calls)
}

func TestSession_XaOnePhase(t *testing.T) {
	exec := newFakeXaExecutor()
	s, j := newXaSession(t, exec)
	ctx := context.Background()
	xid := mustXid(t, "g2", "")

	_, err := s.XaStart(ctx, xid, nil, txn.TMNoFlags)
	require.NoError(t, err)

	// ACTIVE 状态不能一阶段提交
	err = s.XaCommit(ctx, xid, txn.TMOnePhase)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeIllegalState))

	_, err = s.XaEnd(ctx, xid, txn.TMSuccess)
	require.NoError(t, err)
	require.NoError(t, s.XaCommit(ctx, xid, txn.TMOnePhase))
	assert.False(t, s.InTransaction())

	xids, err := j.Recover()
	require.NoError(t, err)
	assert.Empty(t, xids)
}

func TestSession_XaEndFail(t *testing.T) {
	exec := newFakeXaExecutor()
	s, _ := newXaSession(t, exec)
	ctx := context.Background()
	xid := mustXid(t, "g3", "b")

	_, err := s.XaStart(ctx, xid, nil, txn.TMNoFlags)
	require.NoError(t, err)
	info, err := s.XaEnd(ctx, xid, txn.TMFail)
	require.NoError(t, err)
	assert.True(t, info.IsRollbackOnly())

	_, err = s.XaPrepare(ctx, xid)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeTransaction))

	require.NoError(t, s.XaRollback(ctx, xid))
	assert.False(t, s.InTransaction())
}

func TestSession_XaStateChecks(t *testing.T) {
	exec := newFakeXaExecutor()
	s, _ := newXaSession(t, exec)
	ctx := context.Background()
	xid := mustXid(t, "g4", "b")
	other := mustXid(t, "g5", "b")

	_, err := s.XaEnd(ctx, xid, txn.TMSuccess)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeNullArgument))

	_, err = s.XaStart(ctx, xid, nil, txn.TMSuccess)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeInvalidParam))
	assert.Empty(t, exec.calls)

	_, err = s.XaStart(ctx, xid, nil, txn.TMNoFlags)
	require.NoError(t, err)

	_, err = s.XaStart(ctx, other, nil, txn.TMNoFlags)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeTransaction))

	_, err = s.XaEnd(ctx, other, txn.TMSuccess)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeInvalidParam))

	_, err = s.XaPrepare(ctx, xid)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeIllegalState))

	err = s.XaRollback(ctx, xid)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeIllegalState))

	err = s.XaCommit(ctx, xid, txn.TMNoFlags)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeIllegalState))
}

func TestSession_XaRecover(t *testing.T) {
	exec := newFakeXaExecutor()
	s, j := newXaSession(t, exec)
	ctx := context.Background()
	a := mustXid(t, "ga", "b")
	b := mustXid(t, "gb", "b")

	for _, xid := range []*txn.Xid{a, b} {
		_, err := s.XaStart(ctx, xid, nil, txn.TMNoFlags)
		require.NoError(t, err)
		_, err = s.XaEnd(ctx, xid, txn.TMSuccess)
		require.NoError(t, err)
		_, err = s.XaPrepare(ctx, xid)
		require.NoError(t, err)
	}
	// 数据库已丢失 b，日志中仍有记录
	delete(exec.prepared, b.Key())

	xids, err := s.XaRecover(ctx, txn.TMStartRScan|txn.TMEndRScan)
	require.NoError(t, err)
	require.Len(t, xids, 2)

	_, err = s.XaRecover(ctx, txn.TMFail)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeInvalidParam))

	require.NoError(t, s.XaRollback(ctx, a))
	recorded, err := j.Recover()
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.True(t, recorded[0].Equal(b))
}

func TestSession_XaReadonly(t *testing.T) {
	exec := newFakeXaExecutor()
	cfg := testConfig("xa-ro")
	cfg.Factory.Readonly = true
	f := newTestFactory(t, cfg, exec)
	s, err := f.Builder().Readonly(true).Build(context.Background())
	require.NoError(t, err)

	_, err = s.XaStart(context.Background(), mustXid(t, "g", ""), txn.DefaultOption(), txn.TMNoFlags)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeTransaction))

	info, err := s.XaStart(context.Background(), mustXid(t, "g", ""), nil, txn.TMNoFlags)
	require.NoError(t, err)
	assert.True(t, info.ReadOnly())
}

func TestSession_XaNotSupported(t *testing.T) {
	s := newTestSession(t, newFakeExecutor())
	assert.False(t, s.SupportXa())

	_, err := s.XaStart(context.Background(), mustXid(t, "g", ""), nil, txn.TMNoFlags)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeNotSupported))
	_, err = s.XaRecover(context.Background(), txn.TMNoFlags)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeNotSupported))
}

// TestSession_CloseAbortsXa 关闭会话时结束并回滚活动分支
func TestSession_CloseAbortsXa(t *testing.T) {
	exec := newFakeXaExecutor()
	s, _ := newXaSession(t, exec)
	ctx := context.Background()

	_, err := s.XaStart(ctx, mustXid(t, "gc", ""), nil, txn.TMNoFlags)
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, []string{"xa start", "xa end", "xa rollback", "close"}, exec.calls)
}

// failingJournal 记录总是失败的日志
type failingJournal struct {
	err error
}

func (j failingJournal) Record(*txn.Info, int64) error { return j.err }

func (j failingJournal) Forget(*txn.Xid) error { return nil }

func (j failingJournal) Recover() ([]*txn.Xid, error) { return nil, nil }

// TestSession_XaPrepareJournalFailure 分支已准备但日志写入失败时返回专门的错误
func TestSession_XaPrepareJournalFailure(t *testing.T) {
	exec := newFakeXaExecutor()
	cause := errors.New("disk full")
	f, err := NewFactory(testConfig("xa-journal-fail"), FactoryOptions{
		Executor: executorOf(exec),
		Journal:  failingJournal{err: cause},
		Logger:   logger.NewNoOpLogger(),
		Registry: NewNameRegistry(),
	})
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	s, err := f.Builder().Build(ctx)
	require.NoError(t, err)
	xid := mustXid(t, "jf", "b1")

	_, err = s.XaStart(ctx, xid, nil, txn.TMNoFlags)
	require.NoError(t, err)
	_, err = s.XaEnd(ctx, xid, txn.TMSuccess)
	require.NoError(t, err)

	prepared, err := s.XaPrepare(ctx, xid)
	assert.Nil(t, prepared)
	var journalErr *JournalWriteError
	require.True(t, errors.As(err, &journalErr))
	assert.True(t, journalErr.Xid.Equal(xid))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, s.InTransaction())

	// 分支在数据库中已准备，仍可按 xid 提交
	require.NoError(t, s.XaCommit(ctx, xid, txn.TMNoFlags))
	assert.Equal(t, []string{"xa start", "xa end", "xa prepare", "xa commit"}, exec.calls)
}
