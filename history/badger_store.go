package history

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/qw4990/sql_advisor/utils"
)

const keyPrefix = "history/"

// BadgerStore persists the history in a badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens the store in dir, or in memory when dir is empty.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(badgerLogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// entryKey orders entries of one fingerprint by time; the run id keeps keys unique.
func entryKey(e Entry) []byte {
	return []byte(fmt.Sprintf("%v%v/%020d/%v", keyPrefix, e.Fingerprint, e.Timestamp.UnixNano(), e.RunID))
}

func (s *BadgerStore) Record(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(e), data)
	})
}

func (s *BadgerStore) Lookup(fingerprint string) ([]Entry, error) {
	return s.scan(keyPrefix + fingerprint + "/")
}

func (s *BadgerStore) List() ([]Entry, error) {
	es, err := s.scan(keyPrefix)
	if err != nil {
		return nil, err
	}
	sortEntries(es)
	return es, nil
}

func (s *BadgerStore) scan(prefix string) ([]Entry, error) {
	var es []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var e Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode history entry %s: %w", item.Key(), err)
			}
			es = append(es, e)
		}
		return nil
	})
	return es, err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's logs to the advisor logger, info and debug at debug level.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{})   { utils.Errorf(format, args...) }
func (badgerLogger) Warningf(format string, args ...interface{}) { utils.Warningf(format, args...) }
func (badgerLogger) Infof(format string, args ...interface{})    { utils.Debugf(format, args...) }
func (badgerLogger) Debugf(format string, args ...interface{})   { utils.Debugf(format, args...) }
