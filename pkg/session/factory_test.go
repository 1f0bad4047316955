package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/logger"
	"github.com/kasuganosora/sqlsession/pkg/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewFactory_DuplicateName 重名工厂创建失败，第一个工厂不受影响
func TestNewFactory_DuplicateName(t *testing.T) {
	registry := NewNameRegistry()
	opts := FactoryOptions{
		Executor: executorOf(newFakeExecutor()),
		Logger:   logger.NewNoOpLogger(),
		Registry: registry,
	}

	first, err := NewFactory(testConfig("orders"), opts)
	require.NoError(t, err)

	second, err := NewFactory(testConfig("orders"), opts)
	require.Error(t, err)
	assert.Nil(t, second)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeSessionFactory))
	assert.Contains(t, err.Error(), "orders")

	s, err := first.Builder().Build(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, s.Factory())
	assert.Equal(t, []string{"orders"}, registry.Names())
}

func TestNewFactory_ConcurrentSameName(t *testing.T) {
	registry := NewNameRegistry()
	opts := FactoryOptions{
		Executor: executorOf(newFakeExecutor()),
		Logger:   logger.NewNoOpLogger(),
		Registry: registry,
	}

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := NewFactory(testConfig("race"), opts)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, errs.IsErrorCode(err, errs.ErrCodeSessionFactory))
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestNewFactory_InvalidArguments(t *testing.T) {
	opts := FactoryOptions{
		Executor: executorOf(newFakeExecutor()),
		Logger:   logger.NewNoOpLogger(),
		Registry: NewNameRegistry(),
	}

	_, err := NewFactory(nil, opts)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeNullArgument))

	_, err = NewFactory(testConfig("  "), opts)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeInvalidParam))

	_, err = NewFactory(testConfig("x"), FactoryOptions{Registry: NewNameRegistry()})
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeNullArgument))
}

// TestNewFactory_InitFailureReleasesName 初始化失败时归还名称
func TestNewFactory_InitFailureReleasesName(t *testing.T) {
	registry := NewNameRegistry()
	opts := FactoryOptions{
		Executor: executorOf(newFakeExecutor()),
		Logger:   logger.NewNoOpLogger(),
		Registry: registry,
		Scanner: func() (map[string]*Table, error) {
			return nil, errors.New("metadata unavailable")
		},
	}

	_, err := NewFactory(testConfig("scan"), opts)
	require.Error(t, err)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeSessionFactory))
	assert.False(t, registry.Contains("scan"))

	cfg := testConfig("pseudo")
	cfg.Factory.DefaultIsolation = string(txn.Pseudo)
	opts.Scanner = nil
	_, err = NewFactory(cfg, opts)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeSessionFactory))
	assert.False(t, registry.Contains("pseudo"))

	cfg = testConfig("mode")
	cfg.Factory.VisibleMode = "SOMETIMES"
	_, err = NewFactory(cfg, opts)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeSessionFactory))
	assert.False(t, registry.Contains("mode"))
}

func TestFactory_Tables(t *testing.T) {
	f, err := NewFactory(testConfig("tables"), FactoryOptions{
		Executor: executorOf(newFakeExecutor()),
		Logger:   logger.NewNoOpLogger(),
		Registry: NewNameRegistry(),
		Scanner: func() (map[string]*Table, error) {
			return map[string]*Table{"users": {Name: "users", Columns: []string{"id", "name"}}}, nil
		},
	})
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, 1, f.TableCount())
	users, ok := f.Table("users")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name"}, users.Columns)
	_, ok = f.Table("orders")
	assert.False(t, ok)
}

// TestFactory_CloseKeepsName 默认关闭后名称仍被占用
func TestFactory_CloseKeepsName(t *testing.T) {
	registry := NewNameRegistry()
	opts := FactoryOptions{
		Executor: executorOf(newFakeExecutor()),
		Logger:   logger.NewNoOpLogger(),
		Registry: registry,
	}

	f, err := NewFactory(testConfig("kept"), opts)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	assert.True(t, f.IsClosed())

	_, err = NewFactory(testConfig("kept"), opts)
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeSessionFactory))
}

func TestFactory_CloseReleasesName(t *testing.T) {
	registry := NewNameRegistry()
	opts := FactoryOptions{
		Executor: executorOf(newFakeExecutor()),
		Logger:   logger.NewNoOpLogger(),
		Registry: registry,
	}

	cfg := testConfig("released")
	cfg.Factory.ReleaseNameOnClose = true
	f, err := NewFactory(cfg, opts)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.False(t, registry.Contains("released"))

	again, err := NewFactory(cfg, opts)
	require.NoError(t, err)
	assert.NoError(t, again.Close())
}

func TestFactory_DefaultIsolation(t *testing.T) {
	cfg := testConfig("iso")
	cfg.Factory.DefaultIsolation = "READ COMMITTED"
	f := newTestFactory(t, cfg, newFakeExecutor())
	assert.Equal(t, txn.ReadCommitted, f.DefaultIsolation())

	s, err := f.Builder().Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, txn.ReadCommitted, s.TransactionInfo().Isolation())
}

func TestFactory_OwnJournal(t *testing.T) {
	cfg := testConfig("journal")
	cfg.Journal.Enabled = true
	cfg.Journal.InMemory = true

	f := newTestFactory(t, cfg, newFakeXaExecutor())
	require.NotNil(t, f.ownJournal)
	assert.Same(t, f.ownJournal, f.journal)
	require.NoError(t, f.Close())

	_, err := f.ownJournal.Recover()
	assert.True(t, errs.IsErrorCode(err, errs.ErrCodeIllegalState))
}

func TestNameRegistry(t *testing.T) {
	r := NewNameRegistry()
	a, b := &struct{ int }{1}, &struct{ int }{2}

	assert.True(t, r.Claim("x", a))
	assert.False(t, r.Claim("x", b))
	assert.False(t, r.Release("x", b))
	assert.True(t, r.Contains("x"))
	assert.True(t, r.Release("x", a))
	assert.False(t, r.Contains("x"))
	assert.True(t, r.Claim("x", b))
	assert.Same(t, GetGlobalNameRegistry(), GetGlobalNameRegistry())
}
