package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/evanofslack/cf-zone-sync/internal/metrics"
)

const zonePrefix = "zone:"

var ErrZoneNotCached = errors.New("zone not in local cache")

// Resolver maps human domain names onto provider zone ids.
type Resolver interface {
	ZoneID(ctx context.Context, domain string) (string, error)
	Zones(ctx context.Context) (map[string]string, error)
	StoreZones(ctx context.Context, zones map[string]string) error
	Close() error
}

type badgerResolver struct {
	db      *badger.DB
	metrics *metrics.Metrics
}

func New(path string, metrics *metrics.Metrics) (Resolver, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable Badger's internal logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &badgerResolver{db: db, metrics: metrics}, nil
}

func (r *badgerResolver) ZoneID(ctx context.Context, domain string) (string, error) {
	var zoneID string
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(zonePrefix + domain))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			zoneID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		r.metrics.IncCacheRequest("read", true)
		return "", fmt.Errorf("%s: %w", domain, ErrZoneNotCached)
	}
	r.metrics.IncCacheRequest("read", err == nil)
	if err != nil {
		return "", fmt.Errorf("read zone %s: %w", domain, err)
	}
	return zoneID, nil
}

func (r *badgerResolver) Zones(ctx context.Context) (map[string]string, error) {
	zones := make(map[string]string)

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(zonePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			name := string(item.Key()[len(zonePrefix):])
			err := item.Value(func(val []byte) error {
				zones[name] = string(val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	r.metrics.IncCacheRequest("read", err == nil)
	return zones, err
}

// StoreZones replaces the cached mapping with zones.
func (r *badgerResolver) StoreZones(ctx context.Context, zones map[string]string) error {
	txn := r.db.NewTransaction(true)
	defer txn.Discard()

	existing := make(map[string]bool)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	prefix := []byte(zonePrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		existing[string(it.Item().Key()[len(zonePrefix):])] = true
	}
	it.Close()

	for name, id := range zones {
		if err := txn.Set([]byte(zonePrefix+name), []byte(id)); err != nil {
			r.metrics.IncCacheRequest("update", false)
			return fmt.Errorf("store zone %s: %w", name, err)
		}
		delete(existing, name)
	}

	// Zones gone from the account are dropped
	for name := range existing {
		if err := txn.Delete([]byte(zonePrefix + name)); err != nil {
			r.metrics.IncCacheRequest("delete", false)
			return fmt.Errorf("drop zone %s: %w", name, err)
		}
	}
	err := txn.Commit()
	r.metrics.IncCacheRequest("update", err == nil)
	return err
}

func (r *badgerResolver) Close() error {
	return r.db.Close()
}
