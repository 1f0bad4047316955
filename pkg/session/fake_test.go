package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kasuganosora/sqlsession/pkg/clock"
	"github.com/kasuganosora/sqlsession/pkg/config"
	"github.com/kasuganosora/sqlsession/pkg/logger"
	"github.com/kasuganosora/sqlsession/pkg/option"
	"github.com/kasuganosora/sqlsession/pkg/stmt"
	"github.com/kasuganosora/sqlsession/pkg/txn"
	"github.com/stretchr/testify/require"
)

// fakeExecutor 记录调用顺序的执行器
type fakeExecutor struct {
	calls     []string
	inTx      bool
	isolation txn.Isolation
	readOnly  bool
	beginErr  error
	closed    bool
	lastSQL   string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{}
}

func (e *fakeExecutor) DefaultIsolation() txn.Isolation {
	return txn.RepeatableRead
}

func (e *fakeExecutor) Begin(_ context.Context, isolation txn.Isolation, readOnly bool) (txn.Isolation, option.Carrier, error) {
	e.calls = append(e.calls, "begin")
	if e.beginErr != nil {
		return "", nil, e.beginErr
	}
	if isolation == "" {
		isolation = e.DefaultIsolation()
	}
	e.inTx = true
	e.isolation = isolation
	e.readOnly = readOnly
	return isolation, option.Values{option.User: "root"}, nil
}

func (e *fakeExecutor) Commit(context.Context) error {
	e.calls = append(e.calls, "commit")
	e.inTx = false
	return nil
}

func (e *fakeExecutor) Rollback(context.Context) error {
	e.calls = append(e.calls, "rollback")
	e.inTx = false
	return nil
}

func (e *fakeExecutor) Exec(_ context.Context, sql string, _ []any, opt *stmt.Option) (*stmt.ResultStates, error) {
	e.calls = append(e.calls, "exec")
	e.lastSQL = sql
	states := stmt.NewResultStates(0, 1, 0, option.Empty)
	opt.Consume(states)
	return states, nil
}

func (e *fakeExecutor) Close() error {
	e.calls = append(e.calls, "close")
	e.closed = true
	return nil
}

func (e *fakeExecutor) ValueOf(key option.Key) (any, bool) {
	if key == option.User {
		return "root", true
	}
	return nil, false
}

// fakeXaExecutor 额外支持 XA，prepared 模拟数据库中的已准备分支
type fakeXaExecutor struct {
	*fakeExecutor
	prepared map[txn.XidKey]*txn.Xid
}

func newFakeXaExecutor() *fakeXaExecutor {
	return &fakeXaExecutor{fakeExecutor: newFakeExecutor(), prepared: map[txn.XidKey]*txn.Xid{}}
}

func (e *fakeXaExecutor) XaStart(_ context.Context, _ *txn.Xid, _ txn.Isolation, _ bool, _ int) error {
	e.calls = append(e.calls, "xa start")
	return nil
}

func (e *fakeXaExecutor) XaEnd(_ context.Context, _ *txn.Xid, _ int) error {
	e.calls = append(e.calls, "xa end")
	return nil
}

func (e *fakeXaExecutor) XaPrepare(_ context.Context, xid *txn.Xid) error {
	e.calls = append(e.calls, "xa prepare")
	e.prepared[xid.Key()] = xid
	return nil
}

func (e *fakeXaExecutor) XaCommit(_ context.Context, xid *txn.Xid, onePhase bool) error {
	if onePhase {
		e.calls = append(e.calls, "xa commit one phase")
		return nil
	}
	if _, ok := e.prepared[xid.Key()]; !ok {
		return errors.New("XAER_NOTA: unknown XID")
	}
	e.calls = append(e.calls, "xa commit")
	delete(e.prepared, xid.Key())
	return nil
}

func (e *fakeXaExecutor) XaRollback(_ context.Context, xid *txn.Xid) error {
	e.calls = append(e.calls, "xa rollback")
	delete(e.prepared, xid.Key())
	return nil
}

func (e *fakeXaExecutor) XaRecover(context.Context, int) ([]*txn.Xid, error) {
	var xids []*txn.Xid
	for _, x := range e.prepared {
		xids = append(xids, x)
	}
	return xids, nil
}

type fakeStatement StatementType

func (s fakeStatement) Type() StatementType {
	return StatementType(s)
}

type fakeCompiler struct{}

func (fakeCompiler) Compile(statement Statement, visible Visible) (*Compiled, error) {
	return &Compiled{SQL: statement.Type().String() + " " + visible.String()}, nil
}

func testConfig(name string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Factory.Name = name
	return cfg
}

func executorOf(exec Executor) ExecutorFactory {
	return func(context.Context) (Executor, error) {
		return exec, nil
	}
}

// newTestFactory 使用独立注册表，避免测试之间名称冲突
func newTestFactory(t *testing.T, cfg *config.Config, exec Executor) *Factory {
	t.Helper()
	f, err := NewFactory(cfg, FactoryOptions{
		Executor: executorOf(exec),
		Compiler: fakeCompiler{},
		Logger:   logger.NewNoOpLogger(),
		Registry: NewNameRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func newTestSession(t *testing.T, exec Executor) *Session {
	t.Helper()
	f := newTestFactory(t, testConfig("test"), exec)
	s, err := f.Builder().Name("s1").Build(context.Background())
	require.NoError(t, err)
	return s
}

func newMockClock() *clock.MockClock {
	return clock.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}
