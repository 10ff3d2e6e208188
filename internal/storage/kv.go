// ABOUTME: Badger key-value store backend for medtrack data.
// ABOUTME: Records are JSON values; slot keys enforce one dose log per medication and time.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
)

// Key prefixes. Time segments use sqlTime so they sort lexicographically.
const (
	kvMedPrefix     = "med/"
	kvDosePrefix    = "dose/"
	kvSlotPrefix    = "slot/"
	kvDoseIdxPrefix = "dt/"
	kvReadingPrefix = "reading/"
)

// maxTxnRetries bounds how often an optimistic transaction is retried after a conflict.
const maxTxnRetries = 10

// KV is a Repository backed by an embedded Badger database.
type KV struct {
	db  *badger.DB
	dir string
}

var _ Repository = (*KV)(nil)

// OpenKV opens or creates a Badger database in dir.
func OpenKV(dir string, logger zerolog.Logger) (*KV, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger.With().Str("component", "badger").Logger()})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &KV{db: db, dir: dir}, nil
}

// Close closes the Badger database.
func (k *KV) Close() error {
	if k.db != nil {
		return k.db.Close()
	}
	return nil
}

// update runs fn in a read-write transaction, retrying when Badger reports
// that a concurrent transaction committed a conflicting write first.
func (k *KV) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = k.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getJSON(txn *badger.Txn, key string, v interface{}) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

// eachValue calls fn for every value under prefix.
func eachValue(txn *badger.Txn, prefix string, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if err := item.Value(func(val []byte) error { return fn(key, val) }); err != nil {
			return err
		}
	}
	return nil
}

// resolveKey finds the single key under prefix+idOrPrefix.
func resolveKey(txn *badger.Txn, prefix, idOrPrefix string) (string, error) {
	if idOrPrefix == "" {
		return "", fmt.Errorf("empty id: %w", ErrNotFound)
	}
	if looksLikeUUID(idOrPrefix) {
		return prefix + idOrPrefix, nil
	}

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefix + idOrPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var matches []string
	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix) && len(matches) < 2; it.Next() {
		matches = append(matches, string(it.Item().KeyCopy(nil)))
	}

	what := strings.TrimSuffix(prefix, "/")
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%s %s: %w", what, idOrPrefix, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%s %s: %w", what, idOrPrefix, ErrAmbiguousID)
	}
}

func recipientSegment(recipientID string) string {
	return url.PathEscape(recipientID) + "/"
}

func timeSegment(t time.Time) string {
	return formatTime(t) + "/"
}

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(strings.TrimSpace(format), args...)
}
