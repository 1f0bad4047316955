package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/logger"
	"github.com/kasuganosora/sqlsession/pkg/stmt"
	"github.com/kasuganosora/sqlsession/pkg/txn"
)

// EnvConfigPath 指定配置文件路径的环境变量
const EnvConfigPath = "SQLSESSION_CONFIG"

// Config 应用程序配置
type Config struct {
	Factory    FactoryConfig    `json:"factory" yaml:"factory"`
	Statement  StatementConfig  `json:"statement" yaml:"statement"`
	Log        LogConfig        `json:"log" yaml:"log"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	DataSource DataSourceConfig `json:"datasource" yaml:"datasource"`
}

// AllowMode 会话能力的准入策略
type AllowMode string

const (
	AllowNever     AllowMode = "NEVER"
	AllowSupport   AllowMode = "SUPPORT"
	AllowWhiteList AllowMode = "WHITE_LIST"
)

// ParseAllowMode 解析准入策略，大小写不敏感，"white-list" 与 "WHITE_LIST" 等价
func ParseAllowMode(s string) (AllowMode, error) {
	name := strings.ReplaceAll(strings.TrimSpace(s), "-", "_")
	switch mode := AllowMode(cases.Upper(language.Und).String(name)); mode {
	case AllowNever, AllowSupport, AllowWhiteList:
		return mode, nil
	case "":
		return AllowNever, nil
	default:
		return "", errs.Errorf(errs.ErrCodeConfig, "unknown allow mode: %s", s)
	}
}

// FactoryConfig 会话工厂配置
type FactoryConfig struct {
	Name                 string    `json:"name" yaml:"name"`
	Readonly             bool      `json:"readonly" yaml:"readonly"`
	VisibleMode          AllowMode `json:"visible_mode" yaml:"visible_mode"`
	VisibleWhiteList     []string  `json:"visible_white_list" yaml:"visible_white_list"`
	QueryInsertMode      AllowMode `json:"query_insert_mode" yaml:"query_insert_mode"`
	QueryInsertWhiteList []string  `json:"query_insert_white_list" yaml:"query_insert_white_list"`
	DefaultIsolation     string    `json:"default_isolation" yaml:"default_isolation"` // 空串表示数据库默认
	// 关闭工厂后是否释放名称，默认名称在进程内永久占用
	ReleaseNameOnClose bool `json:"release_name_on_close" yaml:"release_name_on_close"`
}

// StatementConfig 语句默认选项
type StatementConfig struct {
	Timeout               time.Duration `json:"timeout" yaml:"timeout"` // 0 表示不限
	FetchSize             int           `json:"fetch_size" yaml:"fetch_size"`
	PreferServerPrepare   bool          `json:"prefer_server_prepare" yaml:"prefer_server_prepare"`
	ParseBatchAsMultiStmt bool          `json:"parse_batch_as_multi_stmt" yaml:"parse_batch_as_multi_stmt"`
	MultiStmtMode         string        `json:"multi_stmt_mode" yaml:"multi_stmt_mode"`
	// 慢语句阈值，0 表示不记录
	SlowThreshold time.Duration `json:"slow_threshold" yaml:"slow_threshold"`
	SlowLogSize   int           `json:"slow_log_size" yaml:"slow_log_size"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // plain, json, text or none
}

// JournalConfig XA 日志配置
type JournalConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Dir      string `json:"dir" yaml:"dir"`
	InMemory bool   `json:"in_memory" yaml:"in_memory"`
}

// DataSourceConfig 执行器使用的数据库连接配置
type DataSourceConfig struct {
	Driver string `json:"driver" yaml:"driver"` // mysql, postgres or sqlite
	DSN    string `json:"dsn" yaml:"dsn"`

	// 连接池
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Factory: FactoryConfig{
			Name:            "default",
			VisibleMode:     AllowNever,
			QueryInsertMode: AllowNever,
		},
		Statement: StatementConfig{
			MultiStmtMode: "DEFAULT",
			SlowLogSize:   100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Journal: JournalConfig{
			Dir: "./xa-journal",
		},
		DataSource: DataSourceConfig{
			Driver:          "sqlite",
			DSN:             ":memory:",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  10 * time.Second,
		},
	}
}

// LoadConfig 从文件加载配置，.yaml/.yml 按 YAML 解析，其余按 JSON 解析
func LoadConfig(configPath string) (*Config, error) {
	// 如果没有指定配置文件，使用默认配置
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errs.Errorf(errs.ErrCodeConfig, "配置文件不存在: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeConfig, "读取配置文件失败")
	}

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		return Parse(data, "yaml")
	default:
		return Parse(data, "json")
	}
}

// Parse 解析配置内容并校验，format 为 json 或 yaml
func Parse(data []byte, format string) (*Config, error) {
	config := DefaultConfig()
	var err error
	switch format {
	case "yaml":
		err = yaml.Unmarshal(data, config)
	case "json":
		err = json.Unmarshal(data, config)
	default:
		return nil, errs.Errorf(errs.ErrCodeConfig, "unsupported config format: %s", format)
	}
	if err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeConfig, "解析配置文件失败")
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigOrDefault 尝试从常见位置加载配置文件
func LoadConfigOrDefault() *Config {
	possiblePaths := []string{
		"sqlsession.yaml",
		"sqlsession.json",
		"./config/sqlsession.yaml",
		"./config/sqlsession.json",
	}

	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		if config, err := LoadConfig(envPath); err == nil {
			return config
		}
	}

	for _, path := range possiblePaths {
		if absPath, err := filepath.Abs(path); err == nil {
			if config, err := LoadConfig(absPath); err == nil {
				return config
			}
		}
	}

	return DefaultConfig()
}

// validateConfig 验证配置，并把枚举值规范化
func validateConfig(config *Config) error {
	if strings.TrimSpace(config.Factory.Name) == "" {
		return errs.NewError(errs.ErrCodeConfig, "工厂名称不能为空", nil)
	}

	mode, err := ParseAllowMode(string(config.Factory.VisibleMode))
	if err != nil {
		return err
	}
	config.Factory.VisibleMode = mode

	mode, err = ParseAllowMode(string(config.Factory.QueryInsertMode))
	if err != nil {
		return err
	}
	config.Factory.QueryInsertMode = mode

	if config.Factory.DefaultIsolation != "" {
		isolation, err := txn.ParseIsolation(config.Factory.DefaultIsolation)
		if err != nil {
			return errs.WrapError(err, errs.ErrCodeConfig, "无效的默认隔离级别")
		}
		if isolation.IsPseudo() {
			return errs.NewError(errs.ErrCodeConfig, "默认隔离级别不能是 PSEUDO", nil)
		}
		config.Factory.DefaultIsolation = string(isolation)
	}

	if config.Statement.Timeout < 0 {
		return errs.Errorf(errs.ErrCodeConfig, "语句超时不能为负数: %s", config.Statement.Timeout)
	}
	if config.Statement.FetchSize < 0 {
		return errs.Errorf(errs.ErrCodeConfig, "fetch size 不能为负数: %d", config.Statement.FetchSize)
	}
	multi, err := stmt.ParseMultiStmtMode(config.Statement.MultiStmtMode)
	if err != nil {
		return errs.WrapError(err, errs.ErrCodeConfig, "无效的多语句模式")
	}
	config.Statement.MultiStmtMode = multi.String()
	if config.Statement.SlowThreshold < 0 || config.Statement.SlowLogSize < 0 {
		return errs.NewError(errs.ErrCodeConfig, "慢语句配置不能为负数", nil)
	}

	if _, err := logger.ParseLevel(config.Log.Level); err != nil {
		return errs.WrapError(err, errs.ErrCodeConfig, "无效的日志级别")
	}

	if config.Journal.Enabled && !config.Journal.InMemory && config.Journal.Dir == "" {
		return errs.NewError(errs.ErrCodeConfig, "XA 日志目录不能为空", nil)
	}

	config.DataSource.Driver = strings.ToLower(strings.TrimSpace(config.DataSource.Driver))
	switch config.DataSource.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return errs.Errorf(errs.ErrCodeConfig, "不支持的数据库驱动: %s", config.DataSource.Driver)
	}
	if config.DataSource.DSN == "" {
		return errs.NewError(errs.ErrCodeConfig, "数据源 DSN 不能为空", nil)
	}
	if config.DataSource.MaxOpenConns < 0 || config.DataSource.MaxIdleConns < 0 {
		return errs.NewError(errs.ErrCodeConfig, "连接池大小不能为负数", nil)
	}

	return nil
}

// Isolation 返回默认隔离级别，空串表示数据库默认
func (c *FactoryConfig) Isolation() txn.Isolation {
	if c.DefaultIsolation == "" {
		return ""
	}
	// 非空名称解析不会失败
	isolation, _ := txn.ParseIsolation(c.DefaultIsolation)
	return isolation
}

// StmtBuilder 按配置创建语句选项构建器
func (c *StatementConfig) StmtBuilder() *stmt.Builder {
	mode, _ := stmt.ParseMultiStmtMode(c.MultiStmtMode)
	return stmt.NewBuilder().
		Timeout(c.Timeout).
		FetchSize(c.FetchSize).
		PreferServerPrepare(c.PreferServerPrepare).
		ParseBatchAsMultiStmt(c.ParseBatchAsMultiStmt).
		MultiStmtMode(mode)
}

// NewLogger 按配置创建日志
func (c *LogConfig) NewLogger() (logger.Logger, error) {
	return logger.New(c.Level, c.Format)
}
