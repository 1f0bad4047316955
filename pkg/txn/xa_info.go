package txn

import (
	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/option"
)

// XaStartInfo returns the ACTIVE state of a branch started with XA START.
// Extension options of opt, such as TIMEOUT_MILLIS, are carried over.
func XaStartInfo(xid *Xid, isolation Isolation, opt *Option, flags int, startMillis int64) (*Info, error) {
	if xid == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "xid is nil", nil)
	}
	if opt == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "transaction option is nil", nil)
	}
	if err := ValidateXaFlags(XaPhaseStart, flags); err != nil {
		return nil, err
	}
	if isolation.IsPseudo() {
		return nil, errs.NewError(errs.ErrCodeInvalidParam, "xa transaction can't be pseudo", nil)
	}

	ext := option.Values{
		XidOption:          xid,
		XaStatesOption:     XaActive,
		option.XaFlags:     flags,
		option.StartMillis: startMillis,
	}
	if timeout, ok := option.ValueOf(opt, option.TimeoutMillis); ok {
		ext[option.TimeoutMillis] = timeout
	}
	if name, ok := option.ValueOf(opt, option.Name); ok {
		ext[option.Name] = name
	}
	return NewInfo(true, isolation, opt.ReadOnly(), ext)
}

// XaEndInfo derives the IDLE state after XA END. TMFail makes the branch
// rollback-only.
func XaEndInfo(info *Info, xid *Xid, flags int) (*Info, error) {
	if err := requireXaState(info, xid, XaActive); err != nil {
		return nil, err
	}
	if err := ValidateXaFlags(XaPhaseEnd, flags); err != nil {
		return nil, err
	}
	ext := option.Overlay(info.ext, option.Values{
		XaStatesOption: XaIdle,
		option.XaFlags: flags,
	})
	return NewInfo(true, info.isolation, info.readOnly, ext)
}

// XaPrepareInfo derives the PREPARED state after XA PREPARE. A branch ended
// with TMFail can't be prepared.
func XaPrepareInfo(info *Info, xid *Xid) (*Info, error) {
	if err := requireXaState(info, xid, XaIdle); err != nil {
		return nil, err
	}
	if info.IsRollbackOnly() {
		return nil, errs.Errorf(errs.ErrCodeTransaction, "%s is rollback only, can't prepare", xid)
	}
	ext := option.Overlay(info.ext, option.Values{XaStatesOption: XaPrepared})
	return NewInfo(false, info.isolation, info.readOnly, ext)
}

// XidOfInfo returns the Xid an XA state belongs to.
func XidOfInfo(info *Info) (*Xid, bool) {
	if info == nil {
		return nil, false
	}
	return option.ValueOf(info.ext, XidOption)
}

// XaStatesOfInfo returns the XA state of info, if it is an XA branch.
func XaStatesOfInfo(info *Info) (XaStates, bool) {
	if info == nil {
		return 0, false
	}
	return option.ValueOf(info.ext, XaStatesOption)
}

func requireXaState(info *Info, xid *Xid, want XaStates) error {
	if info == nil {
		return errs.NewError(errs.ErrCodeNullArgument, "transaction info is nil", nil)
	}
	current, ok := XidOfInfo(info)
	if !ok {
		return errs.NewError(errs.ErrCodeIllegalState, "not in xa transaction", nil)
	}
	if xid != nil && !current.Equal(xid) {
		return errs.Errorf(errs.ErrCodeInvalidParam, "%s don't match current %s", xid, current)
	}
	states, _ := XaStatesOfInfo(info)
	if states != want {
		return errs.Errorf(errs.ErrCodeIllegalState, "xa states is %s, not %s", states, want)
	}
	return nil
}
