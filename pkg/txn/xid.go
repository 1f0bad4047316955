package txn

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/option"
)

// Xid identifies an XA branch transaction.
//
// Identity is (gtrid, bqual, formatID) only. The extension carrier is filled
// by the driver and may differ between two sightings of the same branch, so
// it is excluded from Equal and Key.
type Xid struct {
	gtrid    string
	bqual    string
	hasBqual bool
	formatID int32
	ext      option.Carrier
}

// XidKey is the comparable identity of an Xid, usable as a map key.
type XidKey struct {
	Gtrid    string
	Bqual    string
	HasBqual bool
	FormatID int32
}

// NewXid creates an Xid. gtrid must be non-empty; bqual is optional but must
// be non-empty when given.
func NewXid(gtrid string, bqual *string, formatID int32, ext option.Carrier) (*Xid, error) {
	if gtrid == "" {
		return nil, errs.NewError(errs.ErrCodeInvalidParam, "gtrid must have text", nil)
	}
	if bqual != nil && *bqual == "" {
		return nil, errs.NewError(errs.ErrCodeInvalidParam, "bqual must be nil or have text", nil)
	}
	if ext == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "option carrier is required", nil)
	}

	xid := &Xid{gtrid: gtrid, formatID: formatID, ext: ext}
	if bqual != nil {
		xid.bqual = *bqual
		xid.hasBqual = true
	}
	return xid, nil
}

// XidOf is NewXid for callers that treat an empty bqual as absent.
func XidOf(gtrid, bqual string, formatID int32) (*Xid, error) {
	if bqual == "" {
		return NewXid(gtrid, nil, formatID, option.Empty)
	}
	return NewXid(gtrid, &bqual, formatID, option.Empty)
}

// RandomXid 使用随机 UUID 作为 gtrid 创建 Xid
func RandomXid(formatID int32) *Xid {
	return &Xid{gtrid: uuid.NewString(), formatID: formatID, ext: option.Empty}
}

// Gtrid 全局事务ID
func (x *Xid) Gtrid() string {
	return x.gtrid
}

// Bqual returns the branch qualifier and whether it is present.
func (x *Xid) Bqual() (string, bool) {
	return x.bqual, x.hasBqual
}

// FormatID 格式ID
func (x *Xid) FormatID() int32 {
	return x.formatID
}

// ValueOf implements option.Carrier.
func (x *Xid) ValueOf(key option.Key) (any, bool) {
	return x.ext.ValueOf(key)
}

// Key returns the comparable identity of x.
func (x *Xid) Key() XidKey {
	return XidKey{Gtrid: x.gtrid, Bqual: x.bqual, HasBqual: x.hasBqual, FormatID: x.formatID}
}

// Equal reports whether x and other identify the same branch.
func (x *Xid) Equal(other *Xid) bool {
	if x == nil || other == nil {
		return x == other
	}
	return x.Key() == other.Key()
}

// WithExt returns a copy of x carrying ext.
func (x *Xid) WithExt(ext option.Carrier) (*Xid, error) {
	if ext == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "option carrier is required", nil)
	}
	cp := *x
	cp.ext = ext
	return &cp, nil
}

func (x *Xid) String() string {
	if x.hasBqual {
		return fmt.Sprintf("Xid{gtrid:%q, bqual:%q, formatId:%d}", x.gtrid, x.bqual, x.formatID)
	}
	return fmt.Sprintf("Xid{gtrid:%q, formatId:%d}", x.gtrid, x.formatID)
}

// XidFromKey rebuilds an Xid without extension options.
func XidFromKey(k XidKey) (*Xid, error) {
	if !k.HasBqual {
		return NewXid(k.Gtrid, nil, k.FormatID, option.Empty)
	}
	bqual := k.Bqual
	return NewXid(k.Gtrid, &bqual, k.FormatID, option.Empty)
}
