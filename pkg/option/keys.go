package option

// Well-known options. Names are stable; values are read through ValueOf.
var (
	Name  = MustFrom[string]("NAME")
	Label = MustFrom[string]("LABEL")
	User  = MustFrom[string]("USER")

	// 超时相关
	Timeout       = MustFrom[int]("TIMEOUT") // 秒
	TimeoutMillis = MustFrom[int]("TIMEOUT_MILLIS")
	StartMillis   = MustFrom[int64]("START_MILLIS")
	Wait          = MustFrom[bool]("WAIT")
	LockTimeout   = MustFrom[int]("LOCK_TIMEOUT")

	// 事务相关
	ReadOnly        = MustFrom[bool]("READ_ONLY")
	InTransaction   = MustFrom[bool]("IN_TRANSACTION")
	RollbackOnly    = MustFrom[bool]("ROLLBACK_ONLY")
	AutoCommit      = MustFrom[bool]("AUTO_COMMIT")
	XaFlags         = MustFrom[int]("XA_FLAGS")
	ReadOnlySession = MustFrom[bool]("READ_ONLY_SESSION")
	Chain           = MustFrom[bool]("CHAIN")
	Release         = MustFrom[bool]("RELEASE")

	// 驱动错误与结果摘要
	SQLState     = MustFrom[string]("SQL_STATE")
	Message      = MustFrom[string]("MESSAGE")
	VendorCode   = MustFrom[int]("VENDOR_CODE")
	WarningCount = MustFrom[int]("WARNING_COUNT")
)
