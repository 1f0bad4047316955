package txn

import "github.com/kasuganosora/sqlsession/pkg/option"

// Transaction options whose value types live in this package.
var (
	IsolationOption = option.MustFrom[Isolation]("ISOLATION")
	XidOption       = option.MustFrom[*Xid]("XID")
	XaStatesOption  = option.MustFrom[XaStates]("XA_STATES")
)
