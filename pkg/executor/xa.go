package executor

import (
	"context"
	"database/sql"

	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/txn"
)

// XaSQLExecutor adds MySQL-syntax XA statements to SQLExecutor. XA branches
// run on the pinned connection, never inside a database/sql transaction.
type XaSQLExecutor struct {
	*SQLExecutor
}

// OpenXa 打开支持 XA 的执行器，方言必须支持 XA
func OpenXa(ctx context.Context, db *sql.DB, dialect Dialect, opts Options) (*XaSQLExecutor, error) {
	if dialect != nil && !dialect.SupportsXa() {
		return nil, errs.Errorf(errs.ErrCodeNotSupported, "%s don't support xa", dialect.DriverName())
	}
	e, err := Open(ctx, db, dialect, opts)
	if err != nil {
		return nil, err
	}
	return &XaSQLExecutor{SQLExecutor: e}, nil
}

func (e *XaSQLExecutor) exec(ctx context.Context, sqlText string) error {
	e.logger.Debug("[%s] %s", e.dialect.DriverName(), sqlText)
	if _, err := e.conn.ExecContext(ctx, sqlText); err != nil {
		return e.driverError(err, "xa")
	}
	return nil
}

// XaStart sets the branch characteristics and runs XA START. Joined and
// resumed branches keep the characteristics they started with.
func (e *XaSQLExecutor) XaStart(ctx context.Context, xid *txn.Xid, isolation txn.Isolation, readOnly bool, flags int) error {
	if e.tx != nil {
		return errs.NewError(errs.ErrCodeIllegalState, "local transaction in progress", nil)
	}
	if flags == txn.TMNoFlags {
		if err := e.exec(ctx, setTransactionSQL(isolation, readOnly)); err != nil {
			return err
		}
	}
	return e.exec(ctx, xaStartSQL(xid, flags))
}

func (e *XaSQLExecutor) XaEnd(ctx context.Context, xid *txn.Xid, flags int) error {
	return e.exec(ctx, xaEndSQL(xid, flags))
}

func (e *XaSQLExecutor) XaPrepare(ctx context.Context, xid *txn.Xid) error {
	return e.exec(ctx, "XA PREPARE "+xidLiteral(xid))
}

func (e *XaSQLExecutor) XaCommit(ctx context.Context, xid *txn.Xid, onePhase bool) error {
	return e.exec(ctx, xaCommitSQL(xid, onePhase))
}

func (e *XaSQLExecutor) XaRollback(ctx context.Context, xid *txn.Xid) error {
	return e.exec(ctx, "XA ROLLBACK "+xidLiteral(xid))
}

// XaRecover lists prepared branches. The database scan is not cursor based,
// so the scan flags only pass validation.
func (e *XaSQLExecutor) XaRecover(ctx context.Context, flags int) ([]*txn.Xid, error) {
	if err := txn.ValidateXaFlags(txn.XaPhaseRecover, flags); err != nil {
		return nil, err
	}
	rows, err := e.conn.QueryContext(ctx, "XA RECOVER CONVERT XID")
	if err != nil {
		return nil, e.driverError(err, "xa recover")
	}
	defer rows.Close()

	var xids []*txn.Xid
	for rows.Next() {
		var (
			formatID                 int32
			gtridLength, bqualLength int
			data                     string
		)
		if err := rows.Scan(&formatID, &gtridLength, &bqualLength, &data); err != nil {
			return nil, e.driverError(err, "scan xa recover")
		}
		xid, err := xidFromRecover(formatID, gtridLength, bqualLength, data)
		if err != nil {
			return nil, err
		}
		xids = append(xids, xid)
	}
	if err := rows.Err(); err != nil {
		return nil, e.driverError(err, "xa recover")
	}
	return xids, nil
}
