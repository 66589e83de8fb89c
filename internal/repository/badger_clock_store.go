package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"ForecastPull/internal/domain/models"
	domrepo "ForecastPull/internal/domain/repository"
	pkgbadger "ForecastPull/pkg/badger"
)

const clockPrefix = "clock/"

// BadgerClockStore persists retrain and forecast clocks per (asset, family).
type BadgerClockStore struct {
	db *pkgbadger.DB
}

func NewBadgerClockStore(db *pkgbadger.DB) *BadgerClockStore {
	return &BadgerClockStore{db: db}
}

func clockKey(asset, family string) []byte {
	return []byte(clockPrefix + asset + "/" + family)
}

func (s *BadgerClockStore) Get(_ context.Context, asset, family string) (models.ClockState, error) {
	st := models.ClockState{Asset: asset, Family: family}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(clockKey(asset, family))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return msgpack.Unmarshal(v, &st)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("get clock %s/%s: %w", asset, family, err)
	}
	return st.UTC(), nil
}

func (s *BadgerClockStore) Put(_ context.Context, st models.ClockState) error {
	st.UpdatedAt = time.Now().UTC()
	b, err := msgpack.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode clock: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(clockKey(st.Asset, st.Family), b)
	}); err != nil {
		return fmt.Errorf("put clock %s/%s: %w", st.Asset, st.Family, err)
	}
	return nil
}

// List returns every stored state ordered by key.
func (s *BadgerClockStore) List(_ context.Context) ([]models.ClockState, error) {
	var out []models.ClockState
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(clockPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var st models.ClockState
			if err := item.Value(func(v []byte) error { return msgpack.Unmarshal(v, &st) }); err != nil {
				return fmt.Errorf("decode %s: %w", strings.TrimPrefix(string(item.Key()), clockPrefix), err)
			}
			out = append(out, st.UTC())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list clocks: %w", err)
	}
	return out, nil
}

var _ domrepo.ClockStore = (*BadgerClockStore)(nil)
