package parser

import (
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"github.com/kasuganosora/sqlsession/pkg/errs"
)

// Parser SQL 解析器，封装 TiDB parser
//
// A Parser is not safe for concurrent use; ParseTxControl creates one per call.
type Parser struct {
	parser *parser.Parser
}

// NewParser 创建新的 SQL 解析器
func NewParser() *Parser {
	return &Parser{
		parser: parser.New(),
	}
}

// ParseSQL 解析 SQL 语句，返回 AST 节点列表
func (p *Parser) ParseSQL(sql string) ([]ast.StmtNode, error) {
	stmtNodes, _, err := p.parser.ParseSQL(sql)
	if err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeInvalidParam, "解析 SQL 失败")
	}
	return stmtNodes, nil
}

// ParseOneStmt 解析单条 SQL 语句
func (p *Parser) ParseOneStmt(sql string) (ast.StmtNode, error) {
	stmts, err := p.ParseSQL(sql)
	if err != nil {
		return nil, err
	}
	if len(stmts) == 0 {
		return nil, errs.NewError(errs.ErrCodeInvalidParam, "未解析到 SQL 语句", nil)
	}
	if len(stmts) > 1 {
		return nil, errs.Errorf(errs.ErrCodeInvalidParam, "expect one statement, got %d", len(stmts))
	}
	return stmts[0], nil
}
