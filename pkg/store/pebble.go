// Package store is the persisted feed item table: a pebble keyspace with
// idempotent upsert-by-id, point lookups for the aggregator's fallback
// ladder, status mutations and a live snapshot stream.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"

	"notifeed/pkg/logger"
	"notifeed/pkg/models"
	"notifeed/pkg/telemetry"
)

var (
	// ErrNotOpen is returned when the store has not been opened.
	ErrNotOpen = errors.New("store not opened; call store.Open first")
	// ErrNotFound is returned by point lookups when no item exists.
	ErrNotFound = errors.New("feed item not found")
)

var (
	db *pebble.DB
	// mu serializes read-modify-write mutations so status changes and
	// remote applies cannot interleave with upserts for the same id.
	mu sync.Mutex
)

const (
	itemPrefix   = "feed:item:"
	threadPrefix = "feed:thread:"
	pkgcatPrefix = "feed:pkgcat:"
)

func itemKey(id string) []byte { return []byte(itemPrefix + id) }

func threadKey(tk string) []byte { return []byte(threadPrefix + tk) }

func pkgcatKey(pkg string, cat models.Category, ts int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d-%s", pkgcatPrefix, pkg, cat, ts, id))
}

func pkgcatRange(pkg string, cat models.Category) (lower, upper []byte) {
	p := fmt.Sprintf("%s%s:%s:", pkgcatPrefix, pkg, cat)
	return []byte(p), append([]byte(p), 0xff)
}

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool { return db != nil }

// UpsertItem writes the item and its lookup indexes atomically with
// replace-by-id semantics. Applying the same item twice leaves the store
// in the same observable state. UpdatedAt is kept monotonically
// non-decreasing per id for local writers.
func UpsertItem(it models.FeedItem) error {
	if db == nil {
		return ErrNotOpen
	}
	mu.Lock()
	defer mu.Unlock()
	var prev *models.FeedItem
	if p, err := getItemLocked(it.ID); err == nil {
		if it.UpdatedAt < p.UpdatedAt {
			it.UpdatedAt = p.UpdatedAt
		}
		prev = &p
	}
	if err := writeItemLocked(it, prev); err != nil {
		logger.Error("upsert_item_failed", "id", it.ID, "error", err)
		return err
	}
	telemetry.UpsertTotal.Inc()
	logger.Debug("item_upserted", "id", it.ID, "status", string(it.Status), "count", it.AggregateCount)
	notifyLocked()
	return nil
}

// writeItemLocked commits item + indexes in one batch, removing index
// entries the previous version of the record leaves behind. Caller holds
// mu and passes prev when replacing an existing record; nil prev means a
// fresh insert or a write that changes neither Timestamp nor ThreadKey.
func writeItemLocked(it models.FeedItem, prev *models.FeedItem) error {
	data, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("marshal feed item: %w", err)
	}
	wb := new(pebble.Batch)
	wb.Set(itemKey(it.ID), data, pebble.NoSync)
	if prev != nil {
		if prev.ThreadKey != "" && prev.ThreadKey != it.ThreadKey {
			wb.Delete(threadKey(prev.ThreadKey), pebble.NoSync)
		}
		if prev.PackageName != "" &&
			(prev.PackageName != it.PackageName || prev.Category != it.Category || prev.Timestamp != it.Timestamp) {
			wb.Delete(pkgcatKey(prev.PackageName, prev.Category, prev.Timestamp, prev.ID), pebble.NoSync)
		}
	}
	if it.ThreadKey != "" {
		wb.Set(threadKey(it.ThreadKey), []byte(it.ID), pebble.NoSync)
	}
	if it.PackageName != "" {
		wb.Set(pkgcatKey(it.PackageName, it.Category, it.Timestamp, it.ID), []byte(it.ID), pebble.NoSync)
	}
	return db.Apply(wb, pebble.Sync)
}

// GetItem returns the stored item for an id, or ErrNotFound.
func GetItem(id string) (models.FeedItem, error) {
	if db == nil {
		return models.FeedItem{}, ErrNotOpen
	}
	mu.Lock()
	defer mu.Unlock()
	return getItemLocked(id)
}

func getItemLocked(id string) (models.FeedItem, error) {
	v, closer, err := db.Get(itemKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return models.FeedItem{}, ErrNotFound
		}
		return models.FeedItem{}, err
	}
	defer closer.Close()
	var it models.FeedItem
	if err := json.Unmarshal(v, &it); err != nil {
		return models.FeedItem{}, fmt.Errorf("invalid feed item JSON: %w", err)
	}
	return it, nil
}

// GetByThreadKey resolves the thread index to an item, or ErrNotFound.
func GetByThreadKey(tk string) (models.FeedItem, error) {
	if db == nil {
		return models.FeedItem{}, ErrNotOpen
	}
	mu.Lock()
	defer mu.Unlock()
	return getByThreadKeyLocked(tk)
}

func getByThreadKeyLocked(tk string) (models.FeedItem, error) {
	v, closer, err := db.Get(threadKey(tk))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return models.FeedItem{}, ErrNotFound
		}
		return models.FeedItem{}, err
	}
	id := string(v)
	closer.Close()
	return getItemLocked(id)
}

// LatestByPackageCategory returns the newest stored item for a
// package+category pair; latest means highest Timestamp.
func LatestByPackageCategory(pkg string, cat models.Category) (models.FeedItem, error) {
	if db == nil {
		return models.FeedItem{}, ErrNotOpen
	}
	mu.Lock()
	defer mu.Unlock()
	return latestByPackageCategoryLocked(pkg, cat)
}

func latestByPackageCategoryLocked(pkg string, cat models.Category) (models.FeedItem, error) {
	lower, upper := pkgcatRange(pkg, cat)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return models.FeedItem{}, err
	}
	defer iter.Close()
	// Index keys sort by timestamp; walk from the newest entry. Stale
	// entries from older writes of the same id resolve to the current
	// record, so the first resolvable id wins.
	for ok := iter.Last(); ok; ok = iter.Prev() {
		id := string(iter.Value())
		it, gerr := getItemLocked(id)
		if errors.Is(gerr, ErrNotFound) {
			continue
		}
		if gerr != nil {
			return models.FeedItem{}, gerr
		}
		return it, nil
	}
	if err := iter.Error(); err != nil {
		return models.FeedItem{}, err
	}
	return models.FeedItem{}, ErrNotFound
}

// statusRank orders the lifecycle: NEW < SEEN < ARCHIVED.
func statusRank(s models.Status) int {
	switch s {
	case models.StatusSeen:
		return 1
	case models.StatusArchived:
		return 2
	default:
		return 0
	}
}

// UpdateStatus advances the lifecycle status of an item and bumps
// UpdatedAt. Status only moves forward here; a backward transition (an
// ARCHIVED item marked seen concurrently with supersession) is a no-op.
// Items return to NEW solely through the aggregator's upsert path.
func UpdateStatus(id string, status models.Status, nowMs int64) error {
	if db == nil {
		return ErrNotOpen
	}
	mu.Lock()
	defer mu.Unlock()
	it, err := getItemLocked(id)
	if err != nil {
		return err
	}
	if statusRank(status) <= statusRank(it.Status) {
		return nil
	}
	it.Status = status
	if nowMs > it.UpdatedAt {
		it.UpdatedAt = nowMs
	} else {
		it.UpdatedAt++
	}
	if err := writeItemLocked(it, nil); err != nil {
		return err
	}
	if status == models.StatusArchived {
		telemetry.ArchivedTotal.Inc()
	}
	logger.Debug("item_status_updated", "id", id, "status", string(status))
	notifyLocked()
	return nil
}

// MarkSeen advances an item to SEEN.
func MarkSeen(id string, nowMs int64) error {
	return UpdateStatus(id, models.StatusSeen, nowMs)
}

// Archive transitions an item to ARCHIVED.
func Archive(id string, nowMs int64) error {
	return UpdateStatus(id, models.StatusArchived, nowMs)
}

// ArchiveExcept bulk-archives every item sharing (pkg, category) except
// keepID. Used by the aggregator's supersession step when a bucket key
// scheme change leaves older sibling buckets behind.
func ArchiveExcept(pkg string, cat models.Category, keepID string, nowMs int64) error {
	if db == nil {
		return ErrNotOpen
	}
	mu.Lock()
	defer mu.Unlock()
	lower, upper := pkgcatRange(pkg, cat)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	seen := map[string]struct{}{}
	var ids []string
	for ok := iter.First(); ok; ok = iter.Next() {
		id := string(iter.Value())
		if id == keepID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	ierr := iter.Error()
	iter.Close()
	if ierr != nil {
		return ierr
	}
	changed := false
	for _, id := range ids {
		it, gerr := getItemLocked(id)
		if errors.Is(gerr, ErrNotFound) {
			continue
		}
		if gerr != nil {
			return gerr
		}
		if it.Status == models.StatusArchived {
			continue
		}
		it.Status = models.StatusArchived
		if nowMs > it.UpdatedAt {
			it.UpdatedAt = nowMs
		} else {
			it.UpdatedAt++
		}
		if err := writeItemLocked(it, nil); err != nil {
			return err
		}
		telemetry.ArchivedTotal.Inc()
		logger.Info("item_superseded", "id", id, "kept", keepID)
		changed = true
	}
	if changed {
		notifyLocked()
	}
	return nil
}

// ApplyRemote applies a remote-origin item under the last-writer-wins
// rule: the remote copy wins only when its UpdatedAt is strictly greater
// than the local one. Equal timestamps prefer the local copy. Returns
// whether the item was applied.
func ApplyRemote(it models.FeedItem) (bool, error) {
	if db == nil {
		return false, ErrNotOpen
	}
	mu.Lock()
	defer mu.Unlock()
	local, err := getItemLocked(it.ID)
	var prev *models.FeedItem
	switch {
	case errors.Is(err, ErrNotFound):
		// new remote-origin item
	case err != nil:
		return false, err
	case it.UpdatedAt <= local.UpdatedAt:
		telemetry.MirrorApplyTotal.WithLabelValues("stale").Inc()
		logger.Debug("remote_item_stale", "id", it.ID, "remote_updated", it.UpdatedAt, "local_updated", local.UpdatedAt)
		return false, nil
	default:
		prev = &local
	}
	if err := writeItemLocked(it, prev); err != nil {
		return false, err
	}
	telemetry.MirrorApplyTotal.WithLabelValues("applied").Inc()
	logger.Info("remote_item_applied", "id", it.ID, "updated_at", it.UpdatedAt)
	notifyLocked()
	return true, nil
}

// ListActive returns all non-archived items ordered by descending
// Timestamp.
func ListActive() ([]models.FeedItem, error) {
	if db == nil {
		return nil, ErrNotOpen
	}
	mu.Lock()
	defer mu.Unlock()
	return listActiveLocked()
}

func listActiveLocked() ([]models.FeedItem, error) {
	items, err := listAllLocked()
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, it := range items {
		if it.Status != models.StatusArchived {
			out = append(out, it)
		}
	}
	return out, nil
}

// ListAll returns every stored item, newest first.
func ListAll() ([]models.FeedItem, error) {
	if db == nil {
		return nil, ErrNotOpen
	}
	mu.Lock()
	defer mu.Unlock()
	return listAllLocked()
}

func listAllLocked() ([]models.FeedItem, error) {
	prefix := []byte(itemPrefix)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.FeedItem
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var it models.FeedItem
		if err := json.Unmarshal(iter.Value(), &it); err != nil {
			logger.Warn("skip_invalid_item_json", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, it)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

// PurgeArchived physically deletes archived items whose UpdatedAt is older
// than cutoffMs and returns how many were (or would be) removed. The only
// other physical delete is ClearAll.
func PurgeArchived(cutoffMs int64, dryRun bool) (int, error) {
	if db == nil {
		return 0, ErrNotOpen
	}
	mu.Lock()
	defer mu.Unlock()
	items, err := listAllLocked()
	if err != nil {
		return 0, err
	}
	n := 0
	wb := new(pebble.Batch)
	for _, it := range items {
		if it.Status != models.StatusArchived || it.UpdatedAt >= cutoffMs {
			continue
		}
		n++
		if dryRun {
			continue
		}
		wb.Delete(itemKey(it.ID), pebble.NoSync)
		if it.ThreadKey != "" {
			if v, closer, gerr := db.Get(threadKey(it.ThreadKey)); gerr == nil {
				// another record may own the thread key by now
				if string(v) == it.ID {
					wb.Delete(threadKey(it.ThreadKey), pebble.NoSync)
				}
				closer.Close()
			}
		}
		if it.PackageName != "" {
			if err := deletePkgcatEntriesLocked(wb, it.PackageName, it.Category, it.ID); err != nil {
				return 0, err
			}
		}
	}
	if dryRun || n == 0 {
		return n, nil
	}
	if err := db.Apply(wb, pebble.Sync); err != nil {
		return 0, err
	}
	notifyLocked()
	return n, nil
}

// deletePkgcatEntriesLocked stages deletes for every package/category
// index entry resolving to id, including stale entries from older
// timestamps of the same record.
func deletePkgcatEntriesLocked(wb *pebble.Batch, pkg string, cat models.Category, id string) error {
	lower, upper := pkgcatRange(pkg, cat)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		if string(iter.Value()) != id {
			continue
		}
		wb.Delete(append([]byte(nil), iter.Key()...), pebble.NoSync)
	}
	return iter.Error()
}

// ClearAll removes every feed record. Administrative operation.
func ClearAll() error {
	if db == nil {
		return ErrNotOpen
	}
	mu.Lock()
	defer mu.Unlock()
	if err := db.DeleteRange([]byte("feed:"), []byte("feed;"), pebble.Sync); err != nil {
		return err
	}
	logger.Warn("feed_cleared")
	notifyLocked()
	return nil
}
