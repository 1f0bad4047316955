package stmt

import (
	"fmt"

	"github.com/kasuganosora/sqlsession/pkg/option"
)

// Result summary options answered by ResultStates.
var (
	ResultNoOption     = option.MustFrom[int]("RESULT_NO")
	AffectedRowsOption = option.MustFrom[int64]("AFFECTED_ROWS")
	LastInsertIDOption = option.MustFrom[int64]("LAST_INSERT_ID")
	MoreResultsOption  = option.MustFrom[bool]("MORE_RESULTS")
)

// ResultStates 单条语句执行结果的摘要
type ResultStates struct {
	ResultNo     int
	AffectedRows int64
	LastInsertID int64
	WarningCount int
	MoreResults  bool
	// Ext 驱动提供的扩展信息，不能为 nil
	Ext option.Carrier
}

// NewResultStates 创建结果摘要，ext 为 nil 时使用 option.Empty
func NewResultStates(resultNo int, affectedRows, lastInsertID int64, ext option.Carrier) *ResultStates {
	if ext == nil {
		ext = option.Empty
	}
	return &ResultStates{
		ResultNo:     resultNo,
		AffectedRows: affectedRows,
		LastInsertID: lastInsertID,
		Ext:          ext,
	}
}

// ValueOf implements option.Carrier.
func (r *ResultStates) ValueOf(key option.Key) (any, bool) {
	switch key {
	case ResultNoOption:
		return r.ResultNo, true
	case AffectedRowsOption:
		return r.AffectedRows, true
	case LastInsertIDOption:
		return r.LastInsertID, true
	case MoreResultsOption:
		return r.MoreResults, true
	case option.WarningCount:
		return r.WarningCount, true
	}
	if r.Ext == nil {
		return nil, false
	}
	return r.Ext.ValueOf(key)
}

func (r *ResultStates) String() string {
	return fmt.Sprintf("ResultStates{resultNo:%d, affectedRows:%d, lastInsertId:%d, warnings:%d, moreResults:%t}",
		r.ResultNo, r.AffectedRows, r.LastInsertID, r.WarningCount, r.MoreResults)
}
