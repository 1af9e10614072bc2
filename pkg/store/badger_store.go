package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
)

// BadgerStore is the durable TranslationStore: one badger key per
// (session, target language, timestamp) so GetTranscript's prefix scan
// returns records in emission order without needing a secondary index.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func transcriptKey(sessionID string, lang interpreter.Language, ts int64) []byte {
	key := fmt.Sprintf("transcript/%s/%s/", sessionID, lang)
	buf := make([]byte, len(key)+8)
	copy(buf, key)
	binary.BigEndian.PutUint64(buf[len(key):], uint64(ts))
	return buf
}

func transcriptPrefix(sessionID string, lang interpreter.Language) []byte {
	return []byte(fmt.Sprintf("transcript/%s/%s/", sessionID, lang))
}

func (b *BadgerStore) Persist(ctx context.Context, rec interpreter.TranslationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := transcriptKey(rec.SessionID, rec.TargetLanguage, rec.Timestamp.UnixNano())
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (b *BadgerStore) GetTranscript(ctx context.Context, sessionID string, lang interpreter.Language) ([]interpreter.TranslationRecord, error) {
	var out []interpreter.TranslationRecord
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := transcriptPrefix(sessionID, lang)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec interpreter.TranslationRecord
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger transcript scan: %w", err)
	}
	return out, nil
}
