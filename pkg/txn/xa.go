package txn

import (
	"fmt"

	"github.com/kasuganosora/sqlsession/pkg/errs"
)

// XaStates describes how far a branch transaction has progressed.
type XaStates int

const (
	XaActive XaStates = iota + 1
	XaIdle
	XaPrepared
)

func (s XaStates) String() string {
	switch s {
	case XaActive:
		return "ACTIVE"
	case XaIdle:
		return "IDLE"
	case XaPrepared:
		return "PREPARED"
	default:
		return fmt.Sprintf("XaStates(%d)", int(s))
	}
}

// XA flags, bit-compatible with the X/Open XA resource manager flags.
const (
	TMNoFlags    = 0
	TMJoin       = 1 << 21
	TMEndRScan   = 1 << 23
	TMStartRScan = 1 << 24
	TMSuspend    = 1 << 25
	TMSuccess    = 1 << 26
	TMResume     = 1 << 27
	TMFail       = 1 << 29
	TMOnePhase   = 1 << 30
)

// XaPhase names the XA call a set of flags is passed to.
type XaPhase int

const (
	XaPhaseStart XaPhase = iota
	XaPhaseEnd
	XaPhaseCommit
	XaPhaseRecover
)

func (p XaPhase) String() string {
	switch p {
	case XaPhaseStart:
		return "start"
	case XaPhaseEnd:
		return "end"
	case XaPhaseCommit:
		return "commit"
	case XaPhaseRecover:
		return "recover"
	default:
		return "unknown"
	}
}

// ValidateXaFlags 校验某个 XA 阶段允许的 flags
func ValidateXaFlags(phase XaPhase, flags int) error {
	ok := false
	switch phase {
	case XaPhaseStart:
		ok = flags == TMNoFlags || flags == TMJoin || flags == TMResume
	case XaPhaseEnd:
		ok = flags == TMSuccess || flags == TMFail || flags == TMSuspend
	case XaPhaseCommit:
		ok = flags == TMNoFlags || flags == TMOnePhase
	case XaPhaseRecover:
		ok = flags&^(TMStartRScan|TMEndRScan) == 0
	}
	if !ok {
		return errs.Errorf(errs.ErrCodeInvalidParam, "xa %s don't support flags[%d]", phase, flags)
	}
	return nil
}
