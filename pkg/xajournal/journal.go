// Package xajournal keeps a client-side record of prepared XA branches so that
// they can be recovered and finished after the session that prepared them is
// gone.
package xajournal

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/logger"
	"github.com/kasuganosora/sqlsession/pkg/option"
	"github.com/kasuganosora/sqlsession/pkg/txn"
)

const prefixBranch = "xa:branch:"

// Options 日志存储配置
type Options struct {
	Dir        string
	InMemory   bool
	SyncWrites bool
	Logger     logger.Logger
}

// Entry 一条已 PREPARE 的分支记录
type Entry struct {
	Gtrid      string `json:"gtrid"`
	Bqual      string `json:"bqual,omitempty"`
	HasBqual   bool   `json:"has_bqual"`
	FormatID   int32  `json:"format_id"`
	Isolation  string `json:"isolation"`
	ReadOnly   bool   `json:"read_only"`
	Name       string `json:"name,omitempty"`
	PreparedAt int64  `json:"prepared_at"` // Unix 毫秒
}

// Xid rebuilds the branch identifier of the entry.
func (e *Entry) Xid() (*txn.Xid, error) {
	return txn.XidFromKey(txn.XidKey{
		Gtrid:    e.Gtrid,
		Bqual:    e.Bqual,
		HasBqual: e.HasBqual,
		FormatID: e.FormatID,
	})
}

// Journal 基于 badger 的 XA 分支日志
type Journal struct {
	mu     sync.RWMutex
	db     *badger.DB
	closed bool
}

// Open 打开日志存储
func Open(opts Options) (*Journal, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, errs.NewError(errs.ErrCodeInvalidParam, "journal dir is required", nil)
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeInternal, "failed to open xa journal")
	}
	return &Journal{db: db}, nil
}

func branchKey(k txn.XidKey) []byte {
	bqual := "-"
	if k.HasBqual {
		bqual = fmt.Sprintf("%x", k.Bqual)
	}
	return []byte(fmt.Sprintf("%s%d:%x:%s", prefixBranch, k.FormatID, k.Gtrid, bqual))
}

// Record stores a branch in PREPARED state. Recording the same branch twice
// overwrites the earlier entry.
func (j *Journal) Record(info *txn.Info, preparedAt int64) error {
	states, ok := txn.XaStatesOfInfo(info)
	if !ok || states != txn.XaPrepared {
		return errs.NewError(errs.ErrCodeIllegalState, "only prepared xa branch can be recorded", nil)
	}
	xid, _ := txn.XidOfInfo(info)
	key := xid.Key()
	name, _ := option.ValueOf(info, option.Name)

	entry := Entry{
		Gtrid:      key.Gtrid,
		Bqual:      key.Bqual,
		HasBqual:   key.HasBqual,
		FormatID:   key.FormatID,
		Isolation:  string(info.Isolation()),
		ReadOnly:   info.ReadOnly(),
		Name:       name,
		PreparedAt: preparedAt,
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		return errs.WrapError(err, errs.ErrCodeInternal, "encode journal entry")
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return errs.NewError(errs.ErrCodeIllegalState, "xa journal closed", nil)
	}
	return j.db.Update(func(tx *badger.Txn) error {
		return tx.Set(branchKey(key), data)
	})
}

// Forget removes a finished branch. Unknown branches are ignored.
func (j *Journal) Forget(xid *txn.Xid) error {
	if xid == nil {
		return errs.NewError(errs.ErrCodeNullArgument, "xid is nil", nil)
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return errs.NewError(errs.ErrCodeIllegalState, "xa journal closed", nil)
	}
	return j.db.Update(func(tx *badger.Txn) error {
		return tx.Delete(branchKey(xid.Key()))
	})
}

// Entries 返回所有记录，按键排序
func (j *Journal) Entries() ([]*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, errs.NewError(errs.ErrCodeIllegalState, "xa journal closed", nil)
	}

	var entries []*Entry
	err := j.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixBranch)
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			entry := &Entry{}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, entry)
			}); err != nil {
				return fmt.Errorf("failed to decode journal entry %s: %w", item.Key(), err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeInternal, "scan xa journal")
	}
	return entries, nil
}

// Recover 返回所有已记录分支的 Xid
func (j *Journal) Recover() ([]*txn.Xid, error) {
	entries, err := j.Entries()
	if err != nil {
		return nil, err
	}
	xids := make([]*txn.Xid, 0, len(entries))
	for _, e := range entries {
		xid, err := e.Xid()
		if err != nil {
			return nil, err
		}
		xids = append(xids, xid)
	}
	return xids, nil
}

// Close 关闭日志存储，重复关闭无副作用
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

// badgerLogger 把 badger 日志转发到 logger.Logger
type badgerLogger struct {
	l logger.Logger
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(format, args...)
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(format, args...)
}

func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Info(format, args...)
}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug(format, args...)
}
