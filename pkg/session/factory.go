package session

import (
	"strings"
	"sync/atomic"

	"github.com/kasuganosora/sqlsession/pkg/clock"
	"github.com/kasuganosora/sqlsession/pkg/config"
	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/logger"
	"github.com/kasuganosora/sqlsession/pkg/monitor"
	"github.com/kasuganosora/sqlsession/pkg/txn"
	"github.com/kasuganosora/sqlsession/pkg/xajournal"
)

// FactoryOptions 工厂协作者
type FactoryOptions struct {
	// Executor 必需，每个会话调用一次
	Executor ExecutorFactory
	Compiler StatementCompiler
	Scanner  TableScanner
	// Journal 为 nil 且配置启用时，工厂自行打开并负责关闭
	Journal  Journal
	Logger   logger.Logger
	Clock    clock.Clock
	Registry *NameRegistry // nil 表示全局注册表
	// Metrics 为 nil 时工厂自行创建
	Metrics *monitor.MetricsCollector
}

// Factory creates sessions sharing one configuration and admission policy.
type Factory struct {
	name        string
	cfg         config.FactoryConfig
	stmtCfg     config.StatementConfig
	visible     allowPolicy
	queryInsert allowPolicy
	isolation   txn.Isolation

	newExecutor ExecutorFactory
	compiler    StatementCompiler
	tables      map[string]*Table
	journal     Journal
	ownJournal  *xajournal.Journal
	logger      logger.Logger
	clock       clock.Clock
	registry    *NameRegistry
	metrics     *monitor.MetricsCollector
	slowLog     *monitor.SlowStatementLog

	closed atomic.Bool
}

// NewFactory builds a factory from cfg.
//
// The factory name is claimed before anything else is initialized; a
// duplicate name fails with SESSION_FACTORY and leaves no trace. If a later
// step fails the claim is given back.
func NewFactory(cfg *config.Config, opts FactoryOptions) (*Factory, error) {
	if cfg == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "config is nil", nil)
	}
	name := strings.TrimSpace(cfg.Factory.Name)
	if name == "" {
		return nil, errs.NewError(errs.ErrCodeInvalidParam, "factory name must have text", nil)
	}
	if opts.Executor == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "executor factory is required", nil)
	}

	registry := opts.Registry
	if registry == nil {
		registry = GetGlobalNameRegistry()
	}

	f := &Factory{
		name:        name,
		cfg:         cfg.Factory,
		stmtCfg:     cfg.Statement,
		isolation:   cfg.Factory.Isolation(),
		newExecutor: opts.Executor,
		compiler:    opts.Compiler,
		journal:     opts.Journal,
		logger:      opts.Logger,
		clock:       clock.OrDefault(opts.Clock),
		registry:    registry,
		metrics:     opts.Metrics,
	}
	if !registry.Claim(name, f) {
		if opts.Logger != nil {
			opts.Logger.Warn("session factory name[%s] duplication", name)
		}
		return nil, errs.Errorf(errs.ErrCodeSessionFactory, "factory name[%s] duplication", name)
	}

	if err := f.init(cfg, opts); err != nil {
		registry.Release(name, f)
		if f.ownJournal != nil {
			_ = f.ownJournal.Close()
		}
		return nil, err
	}
	f.logger.Info("session factory[%s] created, readonly:%t", name, f.cfg.Readonly)
	return f, nil
}

func (f *Factory) init(cfg *config.Config, opts FactoryOptions) error {
	if f.logger == nil {
		l, err := cfg.Log.NewLogger()
		if err != nil {
			return errs.WrapError(err, errs.ErrCodeSessionFactory, "create logger")
		}
		f.logger = l
	}

	visibleMode, err := config.ParseAllowMode(string(cfg.Factory.VisibleMode))
	if err != nil {
		return errs.WrapError(err, errs.ErrCodeSessionFactory, "visible mode")
	}
	queryInsertMode, err := config.ParseAllowMode(string(cfg.Factory.QueryInsertMode))
	if err != nil {
		return errs.WrapError(err, errs.ErrCodeSessionFactory, "query insert mode")
	}
	f.visible = newAllowPolicy(visibleMode, cfg.Factory.VisibleWhiteList)
	f.queryInsert = newAllowPolicy(queryInsertMode, cfg.Factory.QueryInsertWhiteList)

	if f.isolation.IsPseudo() {
		return errs.NewError(errs.ErrCodeSessionFactory, "default isolation can't be PSEUDO", nil)
	}

	if f.metrics == nil {
		f.metrics = monitor.NewMetricsCollector(f.clock)
	}
	f.slowLog = monitor.NewSlowStatementLog(cfg.Statement.SlowThreshold, cfg.Statement.SlowLogSize, f.clock)

	f.tables = map[string]*Table{}
	if opts.Scanner != nil {
		tables, err := opts.Scanner()
		if err != nil {
			return errs.WrapError(err, errs.ErrCodeSessionFactory, "scan tables")
		}
		for k, v := range tables {
			f.tables[k] = v
		}
	}

	if f.journal == nil && cfg.Journal.Enabled {
		j, err := xajournal.Open(xajournal.Options{
			Dir:      cfg.Journal.Dir,
			InMemory: cfg.Journal.InMemory,
			Logger:   f.logger,
		})
		if err != nil {
			return errs.WrapError(err, errs.ErrCodeSessionFactory, "open xa journal")
		}
		f.journal = j
		f.ownJournal = j
	}
	return nil
}

// Name 工厂名称
func (f *Factory) Name() string {
	return f.name
}

// Readonly 工厂是否只读
func (f *Factory) Readonly() bool {
	return f.cfg.Readonly
}

// DefaultIsolation returns the configured isolation, empty for the database
// default.
func (f *Factory) DefaultIsolation() txn.Isolation {
	return f.isolation
}

// Table 按名称查找表元数据
func (f *Factory) Table(name string) (*Table, bool) {
	t, ok := f.tables[name]
	return t, ok
}

// TableCount 表数量
func (f *Factory) TableCount() int {
	return len(f.tables)
}

// Logger 工厂日志
func (f *Factory) Logger() logger.Logger {
	return f.logger
}

// Metrics returns the transaction and statement counters of every session
// built by this factory.
func (f *Factory) Metrics() *monitor.MetricsCollector {
	return f.metrics
}

// SlowStatements 慢语句日志
func (f *Factory) SlowStatements() *monitor.SlowStatementLog {
	return f.slowLog
}

// IsClosed 工厂是否已关闭
func (f *Factory) IsClosed() bool {
	return f.closed.Load()
}

// Builder 创建会话构建器
func (f *Factory) Builder() *Builder {
	return &Builder{factory: f}
}

// Close closes the factory. Existing sessions keep working; new sessions are
// refused. The name stays claimed unless release_name_on_close is set.
func (f *Factory) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	if f.cfg.ReleaseNameOnClose {
		f.registry.Release(f.name, f)
	}
	f.logger.Info("session factory[%s] closed", f.name)
	if f.ownJournal != nil {
		return f.ownJournal.Close()
	}
	return nil
}
