// Package badgerstore is a reference pkg/storeiface.Store backed by
// BadgerDB. Unlike a raw *badger.DB opened alongside a cache as a
// write-behind spillover tier, here the database is the authoritative
// store itself: every admitted cache entry is assumed to already live
// here, keyed per tenant with an embedded monotonic version so
// HybridKV's version ledger and Badger's own on-disk version never
// drift apart.
package badgerstore

import (
	"context"
	"encoding/binary"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	"github.com/hybridkv/hotcache/pkg/storeiface"
)

// Store implements storeiface.Store over an embedded Badger database. An
// optional ristretto.Cache front-ends Get, the same combination Badger's
// own documentation recommends for workloads that re-read the same disk
// keys repeatedly (here: the promotion manager re-fetching a tracked hot
// key on every cycle until it clears a tenant's headroom).
type Store struct {
	db       *badger.DB
	readCache *ristretto.Cache[string, storeiface.Record]
}

// Option configures Open.
type Option func(*options)

type options struct {
	badger        badger.Options
	readCacheCost int64
}

// WithLogger routes Badger's internal logging through a zap.Logger
// instead of Badger's own stderr logger, matching the structured
// logging the rest of the module uses.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.badger.Logger = &badgerZapLogger{l: l.Sugar()}
	}
}

// WithReadCache enables an in-memory ristretto-backed read cache in front
// of Badger, sized to maxCostBytes of held record bytes.
func WithReadCache(maxCostBytes int64) Option {
	return func(o *options) { o.readCacheCost = maxCostBytes }
}

// Open creates or opens a Badger database at dir.
func Open(dir string, opts ...Option) (*Store, error) {
	o := &options{badger: badger.DefaultOptions(dir)}
	for _, opt := range opts {
		opt(o)
	}
	db, err := badger.Open(o.badger)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if o.readCacheCost > 0 {
		rc, err := ristretto.NewCache(&ristretto.Config[string, storeiface.Record]{
			NumCounters: o.readCacheCost / 100 * 10,
			MaxCost:     o.readCacheCost,
			BufferItems: 64,
		})
		if err != nil {
			db.Close()
			return nil, err
		}
		s.readCache = rc
	}
	return s, nil
}

func encodeKey(tenant string, key []byte) []byte {
	out := make([]byte, 0, len(tenant)+1+len(key))
	out = append(out, []byte(tenant)...)
	out = append(out, 0x00)
	return append(out, key...)
}

func encodeValue(version uint64, value []byte) []byte {
	out := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(out[:8], version)
	copy(out[8:], value)
	return out
}

func decodeValue(raw []byte) (uint64, []byte) {
	return binary.BigEndian.Uint64(raw[:8]), append([]byte(nil), raw[8:]...)
}

// Get implements storeiface.Store.
func (s *Store) Get(ctx context.Context, tenant string, key []byte) (storeiface.Record, error) {
	if err := ctx.Err(); err != nil {
		return storeiface.Record{}, err
	}
	cacheKey := string(encodeKey(tenant, key))
	if s.readCache != nil {
		if rec, ok := s.readCache.Get(cacheKey); ok {
			return rec, nil
		}
	}

	var rec storeiface.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeKey(tenant, key))
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			rec.Version, rec.Value = decodeValue(raw)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return storeiface.Record{}, storeiface.ErrNotFound
	}
	if err != nil {
		return storeiface.Record{}, err
	}
	if s.readCache != nil {
		s.readCache.Set(cacheKey, rec, int64(len(rec.Value)))
	}
	return rec, nil
}

// Put implements storeiface.Store, assigning the next version after the
// one currently on disk for this key (0 if absent).
func (s *Store) Put(ctx context.Context, tenant string, key []byte, value []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	k := encodeKey(tenant, key)
	var newVersion uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		var current uint64
		if item, err := txn.Get(k); err == nil {
			if verr := item.Value(func(raw []byte) error {
				current, _ = decodeValue(raw)
				return nil
			}); verr != nil {
				return verr
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		newVersion = current + 1
		return txn.Set(k, encodeValue(newVersion, value))
	})
	if err != nil {
		return 0, err
	}
	if s.readCache != nil {
		s.readCache.Set(string(k), storeiface.Record{Value: value, Version: newVersion}, int64(len(value)))
	}
	return newVersion, nil
}

// Delete implements storeiface.Store.
func (s *Store) Delete(ctx context.Context, tenant string, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := encodeKey(tenant, key)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	}); err != nil {
		return err
	}
	if s.readCache != nil {
		s.readCache.Del(string(k))
	}
	return nil
}

// Close implements storeiface.Store.
func (s *Store) Close() error {
	if s.readCache != nil {
		s.readCache.Close()
	}
	return s.db.Close()
}

// badgerZapLogger adapts a zap.SugaredLogger to badger.Logger.
type badgerZapLogger struct {
	l *zap.SugaredLogger
}

func (b *badgerZapLogger) Errorf(f string, args ...interface{})   { b.l.Errorf(f, args...) }
func (b *badgerZapLogger) Warningf(f string, args ...interface{}) { b.l.Warnf(f, args...) }
func (b *badgerZapLogger) Infof(f string, args ...interface{})    { b.l.Infof(f, args...) }
func (b *badgerZapLogger) Debugf(f string, args ...interface{})   { b.l.Debugf(f, args...) }
