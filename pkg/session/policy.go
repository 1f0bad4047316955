package session

import (
	"github.com/kasuganosora/sqlsession/pkg/config"
)

// Visible 会话可见性模式
type Visible int

const (
	// OnlyVisible 只访问可见行，默认模式
	OnlyVisible Visible = iota
	// OnlyNonVisible 只访问逻辑删除的行
	OnlyNonVisible
	// Both 同时访问两者
	Both
)

func (v Visible) String() string {
	switch v {
	case OnlyVisible:
		return "ONLY_VISIBLE"
	case OnlyNonVisible:
		return "ONLY_NON_VISIBLE"
	case Both:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

// allowPolicy decides whether a named session may use a capability. The
// white list is turned into a set once, at factory construction.
type allowPolicy struct {
	mode  config.AllowMode
	names map[string]struct{}
}

func newAllowPolicy(mode config.AllowMode, whiteList []string) allowPolicy {
	p := allowPolicy{mode: mode}
	if mode == config.AllowWhiteList {
		p.names = make(map[string]struct{}, len(whiteList))
		for _, name := range whiteList {
			p.names[name] = struct{}{}
		}
	}
	return p
}

func (p allowPolicy) allows(sessionName string) bool {
	switch p.mode {
	case config.AllowSupport:
		return true
	case config.AllowWhiteList:
		_, ok := p.names[sessionName]
		return ok
	default:
		return false
	}
}
