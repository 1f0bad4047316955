package txn

import (
	"fmt"

	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/option"
)

// Option is a transaction request: the isolation and access mode a caller
// asks for, plus extension options such as TIMEOUT_MILLIS or NAME. It never
// carries IN_TRANSACTION, which is observed state only.
//
// Options are immutable and safe to share between goroutines.
type Option struct {
	isolation Isolation // 空串表示使用默认隔离级别
	readOnly  bool
	values    option.Values
}

// 常用组合预分配，避免常见路径上的分配
var (
	defaultWrite        = &Option{}
	defaultRead         = &Option{readOnly: true}
	readCommittedWrite  = &Option{isolation: ReadCommitted}
	readCommittedRead   = &Option{isolation: ReadCommitted, readOnly: true}
	repeatableReadWrite = &Option{isolation: RepeatableRead}
	repeatableReadRead  = &Option{isolation: RepeatableRead, readOnly: true}
	serializableWrite   = &Option{isolation: Serializable}
	serializableRead    = &Option{isolation: Serializable, readOnly: true}
	pseudoRead          = &Option{isolation: Pseudo, readOnly: true}
)

// DefaultOption returns the read-write request with the default isolation.
func DefaultOption() *Option {
	return defaultWrite
}

// NewOption returns the request for (isolation, readOnly). An empty isolation
// means "use the default". Pseudo requests must be read-only.
func NewOption(isolation Isolation, readOnly bool) (*Option, error) {
	switch isolation {
	case "":
		return pick(readOnly, defaultRead, defaultWrite), nil
	case ReadCommitted:
		return pick(readOnly, readCommittedRead, readCommittedWrite), nil
	case RepeatableRead:
		return pick(readOnly, repeatableReadRead, repeatableReadWrite), nil
	case Serializable:
		return pick(readOnly, serializableRead, serializableWrite), nil
	case Pseudo:
		if !readOnly {
			return nil, errs.NewError(errs.ErrCodeInvalidParam, "pseudo transaction must be readonly", nil)
		}
		return pseudoRead, nil
	default:
		return &Option{isolation: isolation, readOnly: readOnly}, nil
	}
}

func pick(readOnly bool, read, write *Option) *Option {
	if readOnly {
		return read
	}
	return write
}

// Isolation returns the requested isolation, false meaning the default.
func (o *Option) Isolation() (Isolation, bool) {
	return o.isolation, o.isolation != ""
}

// ReadOnly 是否请求只读事务
func (o *Option) ReadOnly() bool {
	return o.readOnly
}

// ValueOf implements option.Carrier.
func (o *Option) ValueOf(key option.Key) (any, bool) {
	switch key {
	case IsolationOption:
		if o.isolation == "" {
			return nil, false
		}
		return o.isolation, true
	case option.ReadOnly:
		return o.readOnly, true
	case option.InTransaction:
		return nil, false
	}
	return o.values.ValueOf(key)
}

func (o *Option) String() string {
	return fmt.Sprintf("TransactionOption{isolation:%s, readOnly:%t, options:%d}", o.isolation, o.readOnly, o.values.Len())
}

// OptionBuilder builds a transaction request. Not safe for concurrent use.
type OptionBuilder struct {
	isolation Isolation
	readOnly  bool
	values    *option.ValuesBuilder
	err       error
}

// NewOptionBuilder 创建事务请求构建器
func NewOptionBuilder() *OptionBuilder {
	return &OptionBuilder{values: option.NewValuesBuilder()}
}

// Isolation sets the requested isolation; empty means the default.
func (b *OptionBuilder) Isolation(isolation Isolation) *OptionBuilder {
	b.isolation = isolation
	return b
}

// ReadOnly sets the access mode.
func (b *OptionBuilder) ReadOnly(readOnly bool) *OptionBuilder {
	b.readOnly = readOnly
	return b
}

// Option stores an extension option. ISOLATION and READ_ONLY are routed to
// their fields; IN_TRANSACTION is rejected by Build. A nil value resets the
// key to its default, like ValuesBuilder.Set.
func (b *OptionBuilder) Option(key option.Key, value any) *OptionBuilder {
	if b.err != nil {
		return b
	}
	switch key {
	case IsolationOption:
		switch v := value.(type) {
		case nil:
			b.isolation = ""
		case Isolation:
			b.isolation = v
		default:
			b.err = errs.Errorf(errs.ErrCodeInvalidParam, "value %T does not conform to %s", value, key)
		}
		return b
	case option.ReadOnly:
		switch v := value.(type) {
		case nil:
			b.readOnly = false
		case bool:
			b.readOnly = v
		default:
			b.err = errs.Errorf(errs.ErrCodeInvalidParam, "value %T does not conform to %s", value, key)
		}
		return b
	case option.InTransaction:
		b.err = errs.Errorf(errs.ErrCodeInvalidParam, "%s is observed state, don't request it", key)
		return b
	}
	b.values.Set(key, value)
	return b
}

// Build validates the request and returns an immutable Option. Requests
// without extension options resolve to the shared instances of NewOption.
func (b *OptionBuilder) Build() (*Option, error) {
	if b.err != nil {
		return nil, b.err
	}
	values, err := b.values.Build()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return NewOption(b.isolation, b.readOnly)
	}
	if b.isolation.IsPseudo() && !b.readOnly {
		return nil, errs.NewError(errs.ErrCodeInvalidParam, "pseudo transaction must be readonly", nil)
	}
	return &Option{isolation: b.isolation, readOnly: b.readOnly, values: values}, nil
}
