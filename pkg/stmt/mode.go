package stmt

import (
	"strings"

	"github.com/kasuganosora/sqlsession/pkg/errs"
)

// MultiStmtMode 多语句模式
type MultiStmtMode int

const (
	// MultiStmtDefault 由执行器决定
	MultiStmtDefault MultiStmtMode = iota
	// MultiStmtSingle 每条语句单独发送
	MultiStmtSingle
	// MultiStmtMulti 一批语句合并为一次多语句发送
	MultiStmtMulti
)

func (m MultiStmtMode) String() string {
	switch m {
	case MultiStmtDefault:
		return "DEFAULT"
	case MultiStmtSingle:
		return "SINGLE"
	case MultiStmtMulti:
		return "MULTI"
	default:
		return "UNKNOWN"
	}
}

// ParseMultiStmtMode 解析配置中的多语句模式，空串为 DEFAULT
func ParseMultiStmtMode(s string) (MultiStmtMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "DEFAULT":
		return MultiStmtDefault, nil
	case "SINGLE":
		return MultiStmtSingle, nil
	case "MULTI":
		return MultiStmtMulti, nil
	default:
		return MultiStmtDefault, errs.Errorf(errs.ErrCodeInvalidParam, "unknown multi statement mode: %s", s)
	}
}
