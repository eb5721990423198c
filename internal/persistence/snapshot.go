// Package persistence stores exchange snapshots in badger and committed
// events in a SQL database through gorm.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Aidin1998/pincex_clob/internal/trading/market"
	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

const snapshotPrefix = "snapshot:"

// ErrNoSnapshot is returned by Latest on an empty store.
var ErrNoSnapshot = errors.New("no snapshot found")

// SnapshotInfo identifies a stored snapshot.
type SnapshotInfo struct {
	Key      string    `json:"key"`
	Sequence uint64    `json:"sequence"`
	TakenAt  time.Time `json:"taken_at"`
	Size     int64     `json:"size"`
}

// SnapshotStore persists exchange snapshots in BadgerDB, keeping the newest few.
type SnapshotStore struct {
	db     *badger.DB
	keep   int
	logger *zap.Logger
}

// OpenSnapshotStore opens or creates a snapshot store at path.
func OpenSnapshotStore(path string, keep int, logger *zap.Logger) (*SnapshotStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	if keep < 1 {
		keep = 1
	}
	return &SnapshotStore{db: db, keep: keep, logger: logger.Named("snapshots")}, nil
}

// Keys sort by sequence, then time, so iteration order is age order.
func snapshotKey(seq uint64, at time.Time) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", snapshotPrefix, seq, at.UnixNano()))
}

func parseSnapshotKey(k []byte) (seq uint64, at time.Time, err error) {
	parts := strings.Split(strings.TrimPrefix(string(k), snapshotPrefix), ":")
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("malformed snapshot key %q", k)
	}
	if seq, err = strconv.ParseUint(parts[0], 10, 64); err != nil {
		return 0, time.Time{}, fmt.Errorf("malformed snapshot key %q: %w", k, err)
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("malformed snapshot key %q: %w", k, err)
	}
	return seq, time.Unix(0, nanos).UTC(), nil
}

// Save stores s and prunes snapshots beyond the retention count.
func (s *SnapshotStore) Save(ctx context.Context, state market.State) (SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return SnapshotInfo{}, err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	now := time.Now().UTC()
	key := snapshotKey(state.Sequence, now)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to store snapshot: %w", err)
	}
	info := SnapshotInfo{Key: string(key), Sequence: state.Sequence, TakenAt: now, Size: int64(len(data))}
	if err := s.prune(); err != nil {
		s.logger.Warn("Failed to prune snapshots", zap.Error(err))
	}
	return info, nil
}

// List returns stored snapshots, newest first.
func (s *SnapshotStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	var out []SnapshotInfo
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(snapshotPrefix)
		// Reverse iteration seeks from just past the prefix range.
		for it.Seek(append(prefix, 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			seq, at, err := parseSnapshotKey(item.Key())
			if err != nil {
				return err
			}
			out = append(out, SnapshotInfo{Key: string(item.KeyCopy(nil)), Sequence: seq, TakenAt: at, Size: item.ValueSize()})
		}
		return nil
	})
	return out, err
}

// Latest loads the newest snapshot, or ErrNoSnapshot.
func (s *SnapshotStore) Latest(ctx context.Context) (market.State, SnapshotInfo, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return market.State{}, SnapshotInfo{}, err
	}
	if len(infos) == 0 {
		return market.State{}, SnapshotInfo{}, ErrNoSnapshot
	}
	info := infos[0]
	var state market.State
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(info.Key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &state)
		})
	})
	if err != nil {
		return market.State{}, SnapshotInfo{}, fmt.Errorf("failed to load snapshot %s: %w", info.Key, err)
	}
	return state, info, nil
}

func (s *SnapshotStore) prune() error {
	infos, err := s.List(context.Background())
	if err != nil || len(infos) <= s.keep {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, info := range infos[s.keep:] {
			if err := txn.Delete([]byte(info.Key)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
