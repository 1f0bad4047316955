package session

import (
	"context"

	"github.com/kasuganosora/sqlsession/pkg/option"
	"github.com/kasuganosora/sqlsession/pkg/stmt"
	"github.com/kasuganosora/sqlsession/pkg/txn"
)

// StatementType 语句类型，会话据此做准入检查
type StatementType int

const (
	StmtQuery StatementType = iota
	StmtInsert
	StmtUpdate
	StmtDelete
	// StmtQueryInsert 是 INSERT ... SELECT
	StmtQueryInsert
	StmtOther
)

func (t StatementType) String() string {
	switch t {
	case StmtQuery:
		return "QUERY"
	case StmtInsert:
		return "INSERT"
	case StmtUpdate:
		return "UPDATE"
	case StmtDelete:
		return "DELETE"
	case StmtQueryInsert:
		return "QUERY_INSERT"
	default:
		return "OTHER"
	}
}

// IsWrite 是否为写语句
func (t StatementType) IsWrite() bool {
	switch t {
	case StmtInsert, StmtUpdate, StmtDelete, StmtQueryInsert:
		return true
	default:
		return false
	}
}

// Statement is an opaque statement description handed to the compiler.
type Statement interface {
	Type() StatementType
}

// Compiled 编译后的可执行语句
type Compiled struct {
	SQL  string
	Args []any
}

// StatementCompiler turns a statement into executable text for a visibility
// mode. The session never inspects the SQL it produces.
type StatementCompiler interface {
	Compile(statement Statement, visible Visible) (*Compiled, error)
}

// Executor is the per-session driver collaborator.
type Executor interface {
	// DefaultIsolation reports the isolation a transaction gets when none is
	// requested.
	DefaultIsolation() txn.Isolation
	// Begin starts a transaction. An empty isolation means the default. It
	// returns the granted isolation and driver extras, option.Empty if none.
	Begin(ctx context.Context, isolation txn.Isolation, readOnly bool) (txn.Isolation, option.Carrier, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Exec(ctx context.Context, sql string, args []any, opt *stmt.Option) (*stmt.ResultStates, error)
	Close() error
}

// XaExecutor is implemented by executors that can run XA branches.
type XaExecutor interface {
	XaStart(ctx context.Context, xid *txn.Xid, isolation txn.Isolation, readOnly bool, flags int) error
	XaEnd(ctx context.Context, xid *txn.Xid, flags int) error
	XaPrepare(ctx context.Context, xid *txn.Xid) error
	XaCommit(ctx context.Context, xid *txn.Xid, onePhase bool) error
	XaRollback(ctx context.Context, xid *txn.Xid) error
	XaRecover(ctx context.Context, flags int) ([]*txn.Xid, error)
}

// ExecutorFactory opens the executor of a new session.
type ExecutorFactory func(ctx context.Context) (Executor, error)

// Journal records prepared XA branches.
type Journal interface {
	Record(info *txn.Info, preparedAt int64) error
	Forget(xid *txn.Xid) error
	Recover() ([]*txn.Xid, error)
}

// Table 元数据扫描得到的表信息
type Table struct {
	Name    string
	Columns []string
}

// TableScanner supplies the name -> table mapping at factory construction.
type TableScanner func() (map[string]*Table, error)
