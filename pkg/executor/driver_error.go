package executor

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"

	"github.com/kasuganosora/sqlsession/pkg/option"
)

// DriverError is a database error normalized across drivers. It is a
// carrier answering SQL_STATE, VENDOR_CODE and MESSAGE.
type DriverError struct {
	Driver     string
	SQLState   string
	VendorCode int
	Message    string
	cause      error
}

func (e *DriverError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("%s error %d (%s): %s", e.Driver, e.VendorCode, e.SQLState, e.Message)
	}
	return fmt.Sprintf("%s error %d: %s", e.Driver, e.VendorCode, e.Message)
}

// Unwrap 返回驱动原始错误
func (e *DriverError) Unwrap() error {
	return e.cause
}

// ValueOf implements option.Carrier.
func (e *DriverError) ValueOf(key option.Key) (any, bool) {
	switch key {
	case option.SQLState:
		if e.SQLState == "" {
			return nil, false
		}
		return e.SQLState, true
	case option.VendorCode:
		return e.VendorCode, true
	case option.Message:
		return e.Message, true
	}
	return nil, false
}

// FromError converts a mysql, pq or sqlite error into a DriverError. Other
// errors are returned as is; nil stays nil.
func FromError(err error) error {
	if err == nil {
		return nil
	}
	var de *DriverError
	if errors.As(err, &de) {
		return err
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return &DriverError{
			Driver:     "mysql",
			SQLState:   string(myErr.SQLState[:]),
			VendorCode: int(myErr.Number),
			Message:    myErr.Message,
			cause:      err,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &DriverError{
			Driver:   "postgres",
			SQLState: string(pqErr.Code),
			Message:  pqErr.Message,
			cause:    err,
		}
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return &DriverError{
			Driver:     "sqlite",
			VendorCode: liteErr.Code(),
			Message:    liteErr.Error(),
			cause:      err,
		}
	}
	return err
}
