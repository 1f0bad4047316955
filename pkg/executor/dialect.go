package executor

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/txn"
)

// Dialect encapsulates database-engine-specific behavior of the executor.
type Dialect interface {
	// DriverName returns the database/sql driver name
	DriverName() string

	// DefaultIsolation is the isolation a transaction gets when none is requested
	DefaultIsolation() txn.Isolation

	// SupportsXa reports whether the engine runs XA branches
	SupportsXa() bool

	// GetTablesQuery returns SQL listing user tables of the current database
	GetTablesQuery() string

	// GetColumnsQuery returns SQL listing column names; takes the table name as parameter
	GetColumnsQuery() string
}

// DialectOf returns the dialect of a database/sql driver name.
func DialectOf(driverName string) (Dialect, error) {
	switch strings.ToLower(driverName) {
	case "mysql":
		return MySQLDialect{}, nil
	case "postgres", "postgresql":
		return PostgreSQLDialect{}, nil
	case "sqlite", "sqlite3":
		return SQLiteDialect{}, nil
	default:
		return nil, errs.Errorf(errs.ErrCodeNotSupported, "unsupported driver: %s", driverName)
	}
}

// MySQLDialect implements Dialect for MySQL.
type MySQLDialect struct{}

func (MySQLDialect) DriverName() string { return "mysql" }

func (MySQLDialect) DefaultIsolation() txn.Isolation { return txn.RepeatableRead }

func (MySQLDialect) SupportsXa() bool { return true }

func (MySQLDialect) GetTablesQuery() string {
	return "SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'"
}

func (MySQLDialect) GetColumnsQuery() string {
	return `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`
}

// PostgreSQLDialect implements Dialect for PostgreSQL.
type PostgreSQLDialect struct{}

func (PostgreSQLDialect) DriverName() string { return "postgres" }

func (PostgreSQLDialect) DefaultIsolation() txn.Isolation { return txn.ReadCommitted }

// SupportsXa is false: PREPARE TRANSACTION has no XA START/END phases.
func (PostgreSQLDialect) SupportsXa() bool { return false }

func (PostgreSQLDialect) GetTablesQuery() string {
	return "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'"
}

func (PostgreSQLDialect) GetColumnsQuery() string {
	return `SELECT column_name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`
}

// SQLiteDialect implements Dialect for SQLite.
type SQLiteDialect struct{}

func (SQLiteDialect) DriverName() string { return "sqlite" }

// DefaultIsolation SQLite 事务总是可串行化
func (SQLiteDialect) DefaultIsolation() txn.Isolation { return txn.Serializable }

func (SQLiteDialect) SupportsXa() bool { return false }

func (SQLiteDialect) GetTablesQuery() string {
	return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
}

func (SQLiteDialect) GetColumnsQuery() string {
	return "SELECT name FROM pragma_table_info(?) ORDER BY cid"
}

// sqlIsolation maps an isolation to database/sql. Dialect-specific levels
// have no mapping.
func sqlIsolation(isolation txn.Isolation) (sql.IsolationLevel, error) {
	switch isolation {
	case "":
		return sql.LevelDefault, nil
	case txn.ReadUncommitted:
		return sql.LevelReadUncommitted, nil
	case txn.ReadCommitted:
		return sql.LevelReadCommitted, nil
	case txn.RepeatableRead:
		return sql.LevelRepeatableRead, nil
	case txn.Serializable:
		return sql.LevelSerializable, nil
	default:
		return 0, errs.Errorf(errs.ErrCodeNotSupported, "isolation %s not supported by database/sql", isolation)
	}
}

// xidLiteral formats xid in MySQL XA syntax: X'gtrid',X'bqual',formatID.
// Hex literals avoid quoting of arbitrary branch ids.
func xidLiteral(xid *txn.Xid) string {
	var b strings.Builder
	fmt.Fprintf(&b, "X'%s'", hex.EncodeToString([]byte(xid.Gtrid())))
	bqual, _ := xid.Bqual()
	fmt.Fprintf(&b, ",X'%s',%d", hex.EncodeToString([]byte(bqual)), xid.FormatID())
	return b.String()
}

func xaStartSQL(xid *txn.Xid, flags int) string {
	sql := "XA START " + xidLiteral(xid)
	switch flags {
	case txn.TMJoin:
		sql += " JOIN"
	case txn.TMResume:
		sql += " RESUME"
	}
	return sql
}

func xaEndSQL(xid *txn.Xid, flags int) string {
	sql := "XA END " + xidLiteral(xid)
	if flags == txn.TMSuspend {
		sql += " SUSPEND"
	}
	return sql
}

func xaCommitSQL(xid *txn.Xid, onePhase bool) string {
	sql := "XA COMMIT " + xidLiteral(xid)
	if onePhase {
		sql += " ONE PHASE"
	}
	return sql
}

// setTransactionSQL 在 XA START 之前设置下一个事务的特性
func setTransactionSQL(isolation txn.Isolation, readOnly bool) string {
	var parts []string
	if isolation != "" {
		parts = append(parts, "ISOLATION LEVEL "+string(isolation))
	}
	if readOnly {
		parts = append(parts, "READ ONLY")
	} else {
		parts = append(parts, "READ WRITE")
	}
	return "SET TRANSACTION " + strings.Join(parts, ", ")
}

// xidFromRecover decodes one row of XA RECOVER CONVERT XID. data holds
// gtrid and bqual concatenated, hex encoded with a 0x prefix.
func xidFromRecover(formatID int32, gtridLength, bqualLength int, data string) (*txn.Xid, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(data, "0x"), "0X"))
	if err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeDriver, "decode xa recover data")
	}
	if gtridLength < 0 || bqualLength < 0 || gtridLength+bqualLength != len(raw) {
		return nil, errs.Errorf(errs.ErrCodeDriver, "xa recover row length mismatch: gtrid %d, bqual %d, data %d",
			gtridLength, bqualLength, len(raw))
	}
	return txn.XidOf(string(raw[:gtridLength]), string(raw[gtridLength:]), formatID)
}
