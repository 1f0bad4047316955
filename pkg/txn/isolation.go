package txn

import (
	"strings"

	"github.com/kasuganosora/sqlsession/pkg/errs"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Isolation 事务隔离级别
//
// The four standard levels and Pseudo are predeclared. Any other value is a
// dialect-specific level carried through unchanged.
type Isolation string

const (
	ReadUncommitted Isolation = "READ UNCOMMITTED"
	ReadCommitted   Isolation = "READ COMMITTED"
	RepeatableRead  Isolation = "REPEATABLE READ"
	Serializable    Isolation = "SERIALIZABLE"

	// Pseudo marks a read-only context that is not inside a transaction block.
	Pseudo Isolation = "PSEUDO"
)

func (i Isolation) String() string {
	if i == "" {
		return "DEFAULT"
	}
	return string(i)
}

// IsPseudo 是否为伪事务
func (i Isolation) IsPseudo() bool {
	return i == Pseudo
}

// IsStandard reports whether i is one of the four SQL standard levels.
func (i Isolation) IsStandard() bool {
	switch i {
	case ReadUncommitted, ReadCommitted, RepeatableRead, Serializable:
		return true
	default:
		return false
	}
}

// ParseIsolation 从字符串解析隔离级别
//
// Accepts "read committed", "READ-COMMITTED", "read_committed" and so on.
// Unknown names are returned upper-cased as dialect-specific levels.
func ParseIsolation(s string) (Isolation, error) {
	name := strings.NewReplacer("-", " ", "_", " ").Replace(strings.TrimSpace(s))
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", errs.NewError(errs.ErrCodeInvalidParam, "isolation name must not be empty", nil)
	}
	return Isolation(cases.Upper(language.Und).String(name)), nil
}
