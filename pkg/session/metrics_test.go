package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/sqlsession/pkg/clock"
	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/logger"
	"github.com/kasuganosora/sqlsession/pkg/option"
	"github.com/kasuganosora/sqlsession/pkg/stmt"
	"github.com/kasuganosora/sqlsession/pkg/txn"
)

// slowExecutor 每条语句推进模拟时钟
type slowExecutor struct {
	*fakeExecutor
	clock *clock.MockClock
	cost  time.Duration
}

func (e *slowExecutor) Exec(ctx context.Context, sql string, args []any, opt *stmt.Option) (*stmt.ResultStates, error) {
	e.clock.Add(e.cost)
	return e.fakeExecutor.Exec(ctx, sql, args, opt)
}

func TestFactory_TransactionMetrics(t *testing.T) {
	f := newTestFactory(t, testConfig("metrics"), newFakeExecutor())
	ctx := context.Background()
	s, err := f.Builder().Build(ctx)
	require.NoError(t, err)

	_, err = s.StartTransaction(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.Metrics().GetActiveTransactions())
	_, err = s.CommitChain(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Rollback(ctx))

	pseudo, err := txn.NewOption(txn.Pseudo, true)
	require.NoError(t, err)
	_, err = s.StartTransaction(ctx, pseudo)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx))

	snap := f.Metrics().GetSnapshot()
	assert.Equal(t, int64(3), snap.Begins)
	assert.Equal(t, int64(2), snap.Commits)
	assert.Equal(t, int64(1), snap.Rollbacks)
	assert.Equal(t, int64(0), snap.ActiveTransactions)

	// 关闭会话时回滚的事务同样计数
	_, err = s.StartTransaction(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, int64(2), f.Metrics().GetSnapshot().Rollbacks)
	assert.Equal(t, int64(0), f.Metrics().GetActiveTransactions())
}

func TestFactory_TimeoutMetrics(t *testing.T) {
	c := newMockClock()
	s := newClockedSession(t, newFakeExecutor(), c)
	ctx := context.Background()

	opt, err := txn.NewOptionBuilder().Option(option.TimeoutMillis, 1000).Build()
	require.NoError(t, err)
	_, err = s.StartTransaction(ctx, opt)
	require.NoError(t, err)
	c.Add(2 * time.Second)

	_, err = s.Execute(ctx, &Compiled{SQL: "UPDATE t SET a = 1"}, nil)
	require.Error(t, err)
	require.Error(t, s.Commit(ctx))

	snap := s.Factory().Metrics().GetSnapshot()
	assert.Equal(t, int64(1), snap.Timeouts)
	assert.Equal(t, int64(1), snap.Rollbacks)
	assert.Equal(t, int64(0), snap.Commits)
	// 超时发生在执行之前，不计入语句
	assert.Equal(t, int64(0), snap.Statements)
}

// TestFactory_SlowStatements 超过阈值的语句写入慢语句日志
func TestFactory_SlowStatements(t *testing.T) {
	c := newMockClock()
	exec := &slowExecutor{fakeExecutor: newFakeExecutor(), clock: c, cost: 200 * time.Millisecond}
	cfg := testConfig("slow")
	cfg.Statement.SlowThreshold = 100 * time.Millisecond

	f, err := NewFactory(cfg, FactoryOptions{
		Executor: executorOf(exec),
		Logger:   logger.NewNoOpLogger(),
		Clock:    c,
		Registry: NewNameRegistry(),
	})
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	s, err := f.Builder().Name("reporter").Build(ctx)
	require.NoError(t, err)
	defer s.Close(ctx)

	_, err = s.Execute(ctx, &Compiled{SQL: "SELECT SLEEP(1)"}, nil)
	require.NoError(t, err)

	exec.cost = 10 * time.Millisecond
	_, err = s.Execute(ctx, &Compiled{SQL: "SELECT 1"}, nil)
	require.NoError(t, err)

	entries := f.SlowStatements().BySession("reporter")
	require.Len(t, entries, 1)
	assert.Equal(t, "SELECT SLEEP(1)", entries[0].SQL)
	assert.Equal(t, 200*time.Millisecond, entries[0].Duration)
	assert.Equal(t, int64(1), entries[0].AffectedRows)

	snap := f.Metrics().GetSnapshot()
	assert.Equal(t, int64(2), snap.Statements)
	assert.Equal(t, int64(1), snap.SlowStatements)
	assert.Equal(t, 105*time.Millisecond, snap.AvgDuration)
	assert.Empty(t, snap.ErrorCount)
}

func TestFactory_XaMetrics(t *testing.T) {
	exec := newFakeXaExecutor()
	s, _ := newXaSession(t, exec)
	ctx := context.Background()
	xid := mustXid(t, "m1", "b1")

	_, err := s.XaStart(ctx, xid, nil, txn.TMNoFlags)
	require.NoError(t, err)
	_, err = s.XaEnd(ctx, xid, txn.TMSuccess)
	require.NoError(t, err)
	_, err = s.XaPrepare(ctx, xid)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Factory().Metrics().GetActiveTransactions())
	require.NoError(t, s.XaCommit(ctx, xid, txn.TMNoFlags))

	snap := s.Factory().Metrics().GetSnapshot()
	assert.Equal(t, int64(1), snap.Begins)
	assert.Equal(t, int64(1), snap.Prepares)
	assert.Equal(t, int64(1), snap.Commits)

	err = s.XaCommit(ctx, mustXid(t, "unknown", ""), txn.TMNoFlags)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeTransaction))
	assert.Equal(t, int64(1), s.Factory().Metrics().GetSnapshot().Commits)
}
