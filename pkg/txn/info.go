package txn

import (
	"fmt"

	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/option"
)

// Info is the observed state of a session's transaction. Unlike Option the
// isolation is always concrete. A new state is always a new Info; nothing
// mutates an existing one.
type Info struct {
	inTransaction bool
	isolation     Isolation
	readOnly      bool
	ext           option.Carrier
}

var pseudoInfo = &Info{isolation: Pseudo, readOnly: true, ext: option.Empty}

// PseudoInfo returns the shared pseudo-transaction state without extension
// options.
func PseudoInfo() *Info {
	return pseudoInfo
}

// NewPseudoInfo returns a pseudo-transaction state carrying ext.
func NewPseudoInfo(ext option.Carrier) (*Info, error) {
	if ext != nil && option.IsEmpty(ext) {
		return pseudoInfo, nil
	}
	return NewInfo(false, Pseudo, true, ext)
}

// NewInfo validates and creates a transaction state. ext is supplied by the
// executor; pass option.Empty when there is nothing extra.
func NewInfo(inTransaction bool, isolation Isolation, readOnly bool, ext option.Carrier) (*Info, error) {
	if isolation == "" {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "isolation is required", nil)
	}
	if ext == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "option carrier is required", nil)
	}

	if states, ok := option.ValueOf(ext, XaStatesOption); ok {
		switch states {
		case XaActive, XaIdle:
			if !inTransaction {
				return nil, errs.Errorf(errs.ErrCodeInvalidParam, "xa states[%s] must be in transaction", states)
			}
		case XaPrepared:
			if inTransaction {
				return nil, errs.Errorf(errs.ErrCodeInvalidParam, "xa states[%s] must not be in transaction", states)
			}
		}
	}

	pseudo := isolation.IsPseudo()
	if inTransaction && pseudo {
		return nil, errs.NewError(errs.ErrCodeInvalidParam, "pseudo transaction can't be in transaction block", nil)
	}
	if pseudo && !readOnly {
		return nil, errs.NewError(errs.ErrCodeInvalidParam, "pseudo transaction must be readonly", nil)
	}

	if !option.IsEmpty(ext) {
		_, hasTimeout := option.ValueOf(ext, option.TimeoutMillis)
		_, hasStart := option.ValueOf(ext, option.StartMillis)
		if hasTimeout && !hasStart {
			return nil, errs.Errorf(errs.ErrCodeInvalidParam, "%s present but %s absent", option.TimeoutMillis, option.StartMillis)
		}
	}

	return &Info{
		inTransaction: inTransaction,
		isolation:     isolation,
		readOnly:      readOnly,
		ext:           ext,
	}, nil
}

// InTransaction 是否处于事务块中
func (i *Info) InTransaction() bool {
	return i.inTransaction
}

// Isolation 当前隔离级别
func (i *Info) Isolation() Isolation {
	return i.isolation
}

// ReadOnly 是否只读
func (i *Info) ReadOnly() bool {
	return i.readOnly
}

// IsPseudo 是否为伪事务
func (i *Info) IsPseudo() bool {
	return i.isolation.IsPseudo()
}

// IsRollbackOnly reports whether only rollback is permitted. Outside a pseudo
// transaction this requires an open transaction explicitly marked
// ROLLBACK_ONLY, or an XA branch ended with TMFail.
func (i *Info) IsRollbackOnly() bool {
	if i.isolation.IsPseudo() {
		return !option.IsEmpty(i.ext) && option.Bool(i.ext, option.RollbackOnly)
	}
	if !i.inTransaction || option.IsEmpty(i.ext) {
		return false
	}
	if option.Bool(i.ext, option.RollbackOnly) {
		return true
	}
	flags, ok := option.ValueOf(i.ext, option.XaFlags)
	return ok && flags&TMFail != 0
}

// ValueOf implements option.Carrier. ISOLATION, READ_ONLY, IN_TRANSACTION and
// ROLLBACK_ONLY are answered from the state itself.
func (i *Info) ValueOf(key option.Key) (any, bool) {
	switch key {
	case IsolationOption:
		return i.isolation, true
	case option.ReadOnly:
		return i.readOnly, true
	case option.InTransaction:
		return i.inTransaction, true
	case option.RollbackOnly:
		return i.IsRollbackOnly(), true
	}
	return i.ext.ValueOf(key)
}

// Ext returns the executor-supplied carrier.
func (i *Info) Ext() option.Carrier {
	return i.ext
}

func (i *Info) String() string {
	return fmt.Sprintf("TransactionInfo{inTransaction:%t, isolation:%s, readOnly:%t, rollbackOnly:%t}",
		i.inTransaction, i.isolation, i.readOnly, i.IsRollbackOnly())
}

// InfoBuilder builds an Info with extension options. Not safe for concurrent use.
type InfoBuilder struct {
	inTransaction bool
	isolation     Isolation
	readOnly      bool
	values        *option.ValuesBuilder
}

// NewInfoBuilder 创建事务状态构建器
func NewInfoBuilder(inTransaction bool, isolation Isolation, readOnly bool) *InfoBuilder {
	return &InfoBuilder{
		inTransaction: inTransaction,
		isolation:     isolation,
		readOnly:      readOnly,
		values:        option.NewValuesBuilder(),
	}
}

// Option stores an extension option.
func (b *InfoBuilder) Option(key option.Key, value any) *InfoBuilder {
	b.values.Set(key, value)
	return b
}

// Build validates and creates the Info.
func (b *InfoBuilder) Build() (*Info, error) {
	values, err := b.values.Build()
	if err != nil {
		return nil, err
	}
	return NewInfo(b.inTransaction, b.isolation, b.readOnly, values.Carrier())
}

// ForRollbackOnly derives the state of info once it has been marked
// rollback-only.
func ForRollbackOnly(info *Info) (*Info, error) {
	if info == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "transaction info is nil", nil)
	}
	if info.IsRollbackOnly() {
		return info, nil
	}
	if !info.inTransaction && !info.IsPseudo() {
		return nil, errs.NewError(errs.ErrCodeIllegalState, "no transaction to mark rollback only", nil)
	}
	ext := option.Overlay(info.ext, option.Values{option.RollbackOnly: true})
	return NewInfo(info.inTransaction, info.isolation, info.readOnly, ext)
}

// ForChain derives the state of the transaction started by COMMIT AND CHAIN
// or ROLLBACK AND CHAIN: same characteristics, fresh start time.
func ForChain(info *Info, startMillis int64) (*Info, error) {
	if info == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "transaction info is nil", nil)
	}
	if !info.inTransaction {
		return nil, errs.NewError(errs.ErrCodeIllegalState, "no transaction to chain", nil)
	}
	if _, ok := option.ValueOf(info.ext, XidOption); ok {
		return nil, errs.NewError(errs.ErrCodeIllegalState, "xa transaction don't support chain", nil)
	}
	ext := option.Values{
		option.Chain:       true,
		option.StartMillis: startMillis,
	}
	if timeout, ok := option.ValueOf(info.ext, option.TimeoutMillis); ok {
		ext[option.TimeoutMillis] = timeout
	}
	return NewInfo(true, info.isolation, info.readOnly, ext)
}
