// Package badgerstore persists repositories and conversations in an
// embedded badger database as JSON values.
package badgerstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/gomantics/repochat/internal/domains/conversations"
	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/libs/badgerdb"
)

var (
	repoPrefix = []byte("repo/")
	convPrefix = []byte("conv/")

	repoSeqKey = []byte("seq/repo")
	convSeqKey = []byte("seq/conv")
)

const seqBandwidth = 100

type Store struct {
	db      *badgerdb.DB
	repoSeq *badger.Sequence
	convSeq *badger.Sequence
}

// repoRecord keeps the insertion sequence next to the record so List can
// restore registration order.
type repoRecord struct {
	Seq  uint64           `json:"seq"`
	Repo repos.Repository `json:"repo"`
}

// New leases key sequences on db. Close releases them; the database
// itself stays open.
func New(db *badgerdb.DB) (*Store, error) {
	repoSeq, err := db.GetSequence(repoSeqKey, seqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("lease repository sequence: %w", err)
	}
	convSeq, err := db.GetSequence(convSeqKey, seqBandwidth)
	if err != nil {
		_ = repoSeq.Release()
		return nil, fmt.Errorf("lease conversation sequence: %w", err)
	}
	return &Store{db: db, repoSeq: repoSeq, convSeq: convSeq}, nil
}

func (s *Store) Close() error {
	return errors.Join(s.repoSeq.Release(), s.convSeq.Release())
}

func (s *Store) PutRepository(_ context.Context, repo repos.Repository) error {
	key := repoKey(repo.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		rec := repoRecord{Repo: repo}

		existing, err := getRecord(txn, key)
		switch {
		case err == nil:
			rec.Seq = existing.Seq
		case errors.Is(err, badger.ErrKeyNotFound):
			if rec.Seq, err = s.repoSeq.Next(); err != nil {
				return err
			}
		default:
			return err
		}

		val, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode repository %s: %w", repo.ID, err)
		}
		return txn.Set(key, val)
	})
}

func (s *Store) GetRepository(_ context.Context, id string) (*repos.Repository, error) {
	var rec repoRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, repoKey(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, repos.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec.Repo, nil
}

func (s *Store) ListRepositories(_ context.Context) ([]repos.Repository, error) {
	var records []repoRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(repoPrefix); it.ValidForPrefix(repoPrefix); it.Next() {
			var rec repoRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	out := make([]repos.Repository, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Repo)
	}
	return out, nil
}

func (s *Store) DeleteRepository(_ context.Context, id string) error {
	key := repoKey(id)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return repos.ErrNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

func (s *Store) AppendConversation(_ context.Context, entry conversations.Entry) error {
	seq, err := s.convSeq.Next()
	if err != nil {
		return err
	}
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", entry.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(convKey(seq), val)
	})
}

// ListConversations walks the conversation keys backwards, so the most
// recent entries come first.
func (s *Store) ListConversations(_ context.Context, limit, offset int) ([]conversations.Entry, error) {
	var out []conversations.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := 0
		seek := append(append([]byte{}, convPrefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(convPrefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			if skipped < offset {
				skipped++
				continue
			}
			var entry conversations.Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("decode %x: %w", it.Item().Key(), err)
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountConversations iterates keys only; values stay in the value log.
func (s *Store) CountConversations(_ context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = convPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func getRecord(txn *badger.Txn, key []byte) (repoRecord, error) {
	var rec repoRecord
	item, err := txn.Get(key)
	if err != nil {
		return rec, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

func repoKey(id string) []byte {
	return append(append([]byte{}, repoPrefix...), id...)
}

func convKey(seq uint64) []byte {
	key := make([]byte, len(convPrefix)+8)
	copy(key, convPrefix)
	binary.BigEndian.PutUint64(key[len(convPrefix):], seq)
	return key
}
