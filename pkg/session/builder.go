package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/kasuganosora/sqlsession/pkg/errs"
)

// Builder configures one session. Not safe for concurrent use.
type Builder struct {
	factory          *Factory
	name             string
	readonly         bool
	allowQueryInsert bool
	visible          Visible
}

// Name 设置会话名称，准入白名单按名称匹配
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// Readonly 设置会话是否只读
func (b *Builder) Readonly(readonly bool) *Builder {
	b.readonly = readonly
	return b
}

// AllowQueryInsert 设置是否允许 INSERT ... SELECT
func (b *Builder) AllowQueryInsert(allow bool) *Builder {
	b.allowQueryInsert = allow
	return b
}

// VisibleMode 设置可见性模式
func (b *Builder) VisibleMode(visible Visible) *Builder {
	b.visible = visible
	return b
}

// Build checks admission in order (readonly, visibility, query insert) and
// then opens the executor. Any refusal is a CREATE_SESSION error.
func (b *Builder) Build(ctx context.Context) (*Session, error) {
	f := b.factory
	if f.IsClosed() {
		return nil, errs.Errorf(errs.ErrCodeCreateSession, "factory[%s] closed", f.name)
	}

	if err := b.admit(); err != nil {
		f.logger.Warn("factory[%s] refused session[%s]: %s", f.name, b.name, err.Message)
		return nil, err
	}

	exec, err := f.newExecutor(ctx)
	if err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeCreateSession, "open executor")
	}
	if exec == nil {
		return nil, errs.NewError(errs.ErrCodeCreateSession, "executor factory returned nil", nil)
	}

	s := &Session{
		id:               uuid.NewString(),
		name:             b.name,
		factory:          f,
		readonly:         b.readonly,
		allowQueryInsert: b.allowQueryInsert,
		visible:          b.visible,
		exec:             exec,
		isolation:        f.isolation,
	}
	f.logger.Debug("factory[%s] created session[%s] id:%s", f.name, s.name, s.id)
	return s, nil
}

func (b *Builder) admit() *errs.Error {
	f := b.factory
	if !b.readonly && f.cfg.Readonly {
		return errs.Errorf(errs.ErrCodeCreateSession, "factory[%s] is readonly, can't create writable session", f.name)
	}
	if b.visible != OnlyVisible && !f.visible.allows(b.name) {
		return errs.Errorf(errs.ErrCodeCreateSession, "session[%s] not allowed visible mode %s", b.name, b.visible)
	}
	if b.allowQueryInsert && !f.queryInsert.allows(b.name) {
		return errs.Errorf(errs.ErrCodeCreateSession, "session[%s] not allowed query insert", b.name)
	}
	return nil
}
