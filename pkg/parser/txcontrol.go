package parser

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"

	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/txn"
)

// TxControlKind 事务控制语句类型
type TxControlKind int

const (
	TxBegin TxControlKind = iota + 1
	TxCommit
	TxRollback
	TxSetTransaction
)

func (k TxControlKind) String() string {
	switch k {
	case TxBegin:
		return "BEGIN"
	case TxCommit:
		return "COMMIT"
	case TxRollback:
		return "ROLLBACK"
	case TxSetTransaction:
		return "SET TRANSACTION"
	default:
		return "UNKNOWN"
	}
}

// Scope SET TRANSACTION 的作用范围
type Scope int

const (
	// ScopeNext 只作用于下一个事务
	ScopeNext Scope = iota
	ScopeSession
	ScopeGlobal
)

func (s Scope) String() string {
	switch s {
	case ScopeSession:
		return "SESSION"
	case ScopeGlobal:
		return "GLOBAL"
	default:
		return "NEXT"
	}
}

// TxControl is a parsed transaction-control statement.
type TxControl struct {
	Kind TxControlKind
	// Option is the requested transaction for BEGIN and SET TRANSACTION.
	Option *txn.Option
	// Chain and Release come from COMMIT/ROLLBACK [AND CHAIN] [RELEASE].
	Chain   bool
	Release bool
	Scope   Scope
	// HasReadOnly reports whether SET TRANSACTION named an access mode.
	HasReadOnly bool
}

func (c *TxControl) String() string {
	switch c.Kind {
	case TxCommit, TxRollback:
		return fmt.Sprintf("%s{chain:%t, release:%t}", c.Kind, c.Chain, c.Release)
	default:
		return fmt.Sprintf("%s{scope:%s, option:%s}", c.Kind, c.Scope, c.Option)
	}
}

// ParseTxControl parses BEGIN, START TRANSACTION, COMMIT, ROLLBACK and
// SET [GLOBAL|SESSION] TRANSACTION statements. Other statements fail with
// NOT_SUPPORTED.
func ParseTxControl(sql string) (*TxControl, error) {
	node, err := NewParser().ParseOneStmt(sql)
	if err != nil {
		return nil, err
	}

	switch stmt := node.(type) {
	case *ast.BeginStmt:
		opt, err := txn.NewOption("", stmt.ReadOnly)
		if err != nil {
			return nil, err
		}
		return &TxControl{Kind: TxBegin, Option: opt}, nil
	case *ast.CommitStmt:
		return completion(TxCommit, stmt.CompletionType), nil
	case *ast.RollbackStmt:
		if stmt.SavepointName != "" {
			return nil, errs.Errorf(errs.ErrCodeNotSupported, "rollback to savepoint %s", stmt.SavepointName)
		}
		return completion(TxRollback, stmt.CompletionType), nil
	case *ast.SetStmt:
		return convertSetTransaction(sql, stmt)
	default:
		return nil, errs.Errorf(errs.ErrCodeNotSupported, "not a transaction control statement: %T", node)
	}
}

func completion(kind TxControlKind, ct ast.CompletionType) *TxControl {
	return &TxControl{
		Kind:    kind,
		Chain:   ct == ast.CompletionTypeChain,
		Release: ct == ast.CompletionTypeRelease,
	}
}

// convertSetTransaction 把 SET TRANSACTION 与 SET transaction_isolation 等变量赋值
// 转换为事务请求
func convertSetTransaction(sql string, stmt *ast.SetStmt) (*TxControl, error) {
	ctl := &TxControl{Kind: TxSetTransaction, Scope: ScopeSession}
	builder := txn.NewOptionBuilder()
	matched, oneShot := false, false

	for _, v := range stmt.Variables {
		name := strings.ToLower(v.Name)
		if name == oneShotIsolation {
			oneShot = true
		}
		switch {
		case strings.Contains(name, "isolation"):
			value, err := stringValue(v.Value)
			if err != nil {
				return nil, err
			}
			isolation, err := txn.ParseIsolation(value)
			if err != nil {
				return nil, err
			}
			builder.Isolation(isolation)
		case strings.Contains(name, "read_only"):
			value, err := stringValue(v.Value)
			if err != nil {
				return nil, err
			}
			readOnly, err := parseBool(value)
			if err != nil {
				return nil, err
			}
			builder.ReadOnly(readOnly)
			ctl.HasReadOnly = true
		default:
			return nil, errs.Errorf(errs.ErrCodeNotSupported, "variable %s is not a transaction characteristic", v.Name)
		}
		matched = true
		if v.IsGlobal {
			ctl.Scope = ScopeGlobal
		}
	}
	if !matched {
		return nil, errs.NewError(errs.ErrCodeNotSupported, "empty SET statement", nil)
	}

	// SET TRANSACTION 不带 SESSION/GLOBAL 时只作用于下一个事务
	if oneShot || isNextTransactionOnly(sql) {
		ctl.Scope = ScopeNext
	}

	opt, err := builder.Build()
	if err != nil {
		return nil, err
	}
	ctl.Option = opt
	return ctl, nil
}

// oneShotIsolation is the variable the parser assigns for
// SET TRANSACTION ISOLATION LEVEL without a scope.
const oneShotIsolation = "tx_isolation_one_shot"

// isNextTransactionOnly reports whether sql starts with SET TRANSACTION,
// ignoring leading whitespace and comments.
func isNextTransactionOnly(sql string) bool {
	words := strings.Fields(strings.ToUpper(skipLeadingComments(sql)))
	return len(words) > 1 && words[0] == "SET" && words[1] == "TRANSACTION"
}

// skipLeadingComments drops whitespace and comments before the first token.
// The body of a /*! ... */ comment is SQL to MySQL, so only its marker and
// version digits are dropped.
func skipLeadingComments(sql string) string {
	for {
		sql = strings.TrimLeft(sql, " \t\r\n\f")
		switch {
		case strings.HasPrefix(sql, "/*!"):
			sql = strings.TrimLeft(sql[3:], "0123456789")
		case strings.HasPrefix(sql, "/*T!"):
			sql = strings.TrimLeft(sql[4:], "0123456789")
		case strings.HasPrefix(sql, "/*"):
			end := strings.Index(sql[2:], "*/")
			if end < 0 {
				return ""
			}
			sql = sql[end+4:]
		case strings.HasPrefix(sql, "#"), isDashComment(sql):
			end := strings.IndexByte(sql, '\n')
			if end < 0 {
				return ""
			}
			sql = sql[end+1:]
		default:
			return sql
		}
	}
}

// isDashComment "-- " 注释要求双横线后跟空白或结束
func isDashComment(sql string) bool {
	if !strings.HasPrefix(sql, "--") {
		return false
	}
	return len(sql) == 2 || strings.ContainsRune(" \t\r\n", rune(sql[2]))
}

func stringValue(expr ast.ExprNode) (string, error) {
	valueExpr, ok := expr.(ast.ValueExpr)
	if !ok {
		return "", errs.Errorf(errs.ErrCodeNotSupported, "unsupported value expression %T", expr)
	}
	switch v := valueExpr.GetValue().(type) {
	case string:
		return v, nil
	case int64:
		return fmt.Sprintf("%d", v), nil
	case uint64:
		return fmt.Sprintf("%d", v), nil
	default:
		return "", errs.Errorf(errs.ErrCodeNotSupported, "unsupported value %v", v)
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1", "ON", "TRUE":
		return true, nil
	case "0", "OFF", "FALSE":
		return false, nil
	default:
		return false, errs.Errorf(errs.ErrCodeInvalidParam, "invalid boolean value %s", s)
	}
}
