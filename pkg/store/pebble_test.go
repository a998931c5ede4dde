package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"

	"notifeed/pkg/models"
)

func countPkgcatKeys(t *testing.T, pkg string, cat models.Category) int {
	t.Helper()
	lower, upper := pkgcatRange(pkg, cat)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		t.Fatalf("index iter: %v", err)
	}
	defer iter.Close()
	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	return n
}

func openTestStore(t *testing.T) {
	t.Helper()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
}

func sampleItem(id string, ts int64) models.FeedItem {
	return models.FeedItem{
		ID:             id,
		Source:         "WhatsApp",
		PackageName:    "com.whatsapp",
		Category:       models.CategoryFriendsFamily,
		Title:          "Maria",
		Body:           "hello",
		Timestamp:      ts,
		Priority:       8,
		Status:         models.StatusNew,
		ThreadKey:      id,
		ActionHint:     "reply",
		AggregateCount: 1,
		UpdatedAt:      ts,
	}
}

func TestUpsertAndGet(t *testing.T) {
	openTestStore(t)
	it := sampleItem("app:com.whatsapp:friends_family", 1000)
	if err := UpsertItem(it); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := GetItem(it.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got, it) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, it)
	}
}

func TestUpsertIdempotent(t *testing.T) {
	openTestStore(t)
	it := sampleItem("app:com.whatsapp:friends_family", 1000)
	if err := UpsertItem(it); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := UpsertItem(it); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err := GetItem(it.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got, it) {
		t.Fatalf("state changed after identical re-apply: got %+v", got)
	}
	items, err := ListAll()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestGetMissing(t *testing.T) {
	openTestStore(t)
	if _, err := GetItem("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := GetByThreadKey("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := LatestByPackageCategory("nope", models.CategoryOther); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetByThreadKey(t *testing.T) {
	openTestStore(t)
	it := sampleItem("some-id", 1000)
	it.ThreadKey = "app:com.whatsapp:friends_family"
	if err := UpsertItem(it); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := GetByThreadKey(it.ThreadKey)
	if err != nil {
		t.Fatalf("get by thread key: %v", err)
	}
	if got.ID != "some-id" {
		t.Fatalf("expected some-id, got %s", got.ID)
	}
}

func TestLatestByPackageCategory(t *testing.T) {
	openTestStore(t)
	older := sampleItem("older", 1000)
	newer := sampleItem("newer", 2000)
	for _, it := range []models.FeedItem{older, newer} {
		if err := UpsertItem(it); err != nil {
			t.Fatalf("upsert %s: %v", it.ID, err)
		}
	}
	got, err := LatestByPackageCategory("com.whatsapp", models.CategoryFriendsFamily)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.ID != "newer" {
		t.Fatalf("expected newer, got %s", got.ID)
	}
}

func TestLatestSkipsStaleIndexEntries(t *testing.T) {
	openTestStore(t)
	it := sampleItem("app:com.whatsapp:friends_family", 1000)
	it.Body = "latest"
	if err := UpsertItem(it); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// a database written before index cleanup existed can carry entries
	// for timestamps the record no longer has, and for ids that are gone
	stale := pkgcatKey("com.whatsapp", models.CategoryFriendsFamily, 5000, it.ID)
	if err := db.Set(stale, []byte(it.ID), pebble.Sync); err != nil {
		t.Fatalf("seed stale entry: %v", err)
	}
	gone := pkgcatKey("com.whatsapp", models.CategoryFriendsFamily, 6000, "deleted-id")
	if err := db.Set(gone, []byte("deleted-id"), pebble.Sync); err != nil {
		t.Fatalf("seed dangling entry: %v", err)
	}
	got, err := LatestByPackageCategory("com.whatsapp", models.CategoryFriendsFamily)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.Body != "latest" {
		t.Fatalf("expected current record, got %+v", got)
	}
}

func TestUpsertReplacesIndexEntries(t *testing.T) {
	openTestStore(t)
	it := sampleItem("app:com.whatsapp:friends_family", 0)
	for ts := int64(1); ts <= 50; ts++ {
		it.Timestamp = ts
		it.UpdatedAt = ts
		if err := UpsertItem(it); err != nil {
			t.Fatalf("upsert ts=%d: %v", ts, err)
		}
	}
	if n := countPkgcatKeys(t, "com.whatsapp", models.CategoryFriendsFamily); n != 1 {
		t.Fatalf("expected a single index entry after 50 upserts, got %d", n)
	}
	got, err := LatestByPackageCategory("com.whatsapp", models.CategoryFriendsFamily)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.Timestamp != 50 {
		t.Fatalf("expected latest timestamp 50, got %d", got.Timestamp)
	}
}

func TestStatusTransitions(t *testing.T) {
	openTestStore(t)
	it := sampleItem("app:com.whatsapp:friends_family", 1000)
	if err := UpsertItem(it); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := MarkSeen(it.ID, 2000); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	got, _ := GetItem(it.ID)
	if got.Status != models.StatusSeen || got.UpdatedAt != 2000 {
		t.Fatalf("expected seen@2000, got %s@%d", got.Status, got.UpdatedAt)
	}

	// same-status mutation is a no-op and must not bump UpdatedAt
	if err := MarkSeen(it.ID, 3000); err != nil {
		t.Fatalf("mark seen again: %v", err)
	}
	got, _ = GetItem(it.ID)
	if got.UpdatedAt != 2000 {
		t.Fatalf("no-op mutation bumped UpdatedAt to %d", got.UpdatedAt)
	}

	if err := Archive(it.ID, 1500); err != nil {
		t.Fatalf("archive: %v", err)
	}
	got, _ = GetItem(it.ID)
	if got.Status != models.StatusArchived {
		t.Fatalf("expected archived, got %s", got.Status)
	}
	// stale clock still moves UpdatedAt forward
	if got.UpdatedAt <= 2000 {
		t.Fatalf("UpdatedAt did not advance: %d", got.UpdatedAt)
	}

	if err := MarkSeen("missing", 1000); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusNeverMovesBackward(t *testing.T) {
	openTestStore(t)
	it := sampleItem("app:com.whatsapp:friends_family", 1000)
	if err := UpsertItem(it); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := Archive(it.ID, 2000); err != nil {
		t.Fatalf("archive: %v", err)
	}

	// a "seen" tap racing supersession must not resurrect the item
	if err := MarkSeen(it.ID, 3000); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	got, _ := GetItem(it.ID)
	if got.Status != models.StatusArchived {
		t.Fatalf("archived item regressed to %s", got.Status)
	}
	if got.UpdatedAt != 2000 {
		t.Fatalf("ignored transition bumped UpdatedAt to %d", got.UpdatedAt)
	}

	if err := UpdateStatus(it.ID, models.StatusNew, 4000); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ = GetItem(it.ID)
	if got.Status != models.StatusArchived {
		t.Fatalf("archived item reset to %s", got.Status)
	}

	active, err := ListActive()
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("archived item resurfaced in active list: %+v", active)
	}
}

func TestArchiveExcept(t *testing.T) {
	openTestStore(t)
	legacy := sampleItem("app:com.whatsapp:other", 1000)
	legacy.Category = models.CategoryFriendsFamily
	current := sampleItem("app:com.whatsapp:friends_family", 2000)
	other := sampleItem("app:com.slack:work", 1500)
	other.PackageName = "com.slack"
	other.Category = models.CategoryWork
	for _, it := range []models.FeedItem{legacy, current, other} {
		if err := UpsertItem(it); err != nil {
			t.Fatalf("upsert %s: %v", it.ID, err)
		}
	}

	if err := ArchiveExcept("com.whatsapp", models.CategoryFriendsFamily, current.ID, 3000); err != nil {
		t.Fatalf("archive except: %v", err)
	}

	got, _ := GetItem(legacy.ID)
	if got.Status != models.StatusArchived {
		t.Fatalf("legacy sibling not archived: %s", got.Status)
	}
	got, _ = GetItem(current.ID)
	if got.Status != models.StatusNew {
		t.Fatalf("kept item mutated: %s", got.Status)
	}
	got, _ = GetItem(other.ID)
	if got.Status != models.StatusNew {
		t.Fatalf("unrelated package archived: %s", got.Status)
	}
}

func TestApplyRemoteLastWriterWins(t *testing.T) {
	openTestStore(t)
	local := sampleItem("app:com.whatsapp:friends_family", 1000)
	local.UpdatedAt = 5000
	if err := UpsertItem(local); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	stale := local
	stale.Body = "stale remote"
	stale.UpdatedAt = 4000
	applied, err := ApplyRemote(stale)
	if err != nil {
		t.Fatalf("apply stale: %v", err)
	}
	if applied {
		t.Fatal("stale remote copy applied")
	}

	tie := local
	tie.Body = "tied remote"
	applied, err = ApplyRemote(tie)
	if err != nil {
		t.Fatalf("apply tie: %v", err)
	}
	if applied {
		t.Fatal("equal-timestamp remote copy applied over local")
	}

	newer := local
	newer.Body = "newer remote"
	newer.Status = models.StatusSeen
	newer.UpdatedAt = 6000
	applied, err = ApplyRemote(newer)
	if err != nil {
		t.Fatalf("apply newer: %v", err)
	}
	if !applied {
		t.Fatal("newer remote copy rejected")
	}
	got, _ := GetItem(local.ID)
	if got.Body != "newer remote" || got.Status != models.StatusSeen {
		t.Fatalf("remote copy not stored: %+v", got)
	}
}

func TestApplyRemoteNewItem(t *testing.T) {
	openTestStore(t)
	it := sampleItem("app:org.remote.app:other", 1000)
	applied, err := ApplyRemote(it)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applied {
		t.Fatal("new remote item rejected")
	}
	if _, err := GetItem(it.ID); err != nil {
		t.Fatalf("get after apply: %v", err)
	}
}

func TestListActiveExcludesArchivedAndSortsNewestFirst(t *testing.T) {
	openTestStore(t)
	a := sampleItem("a", 1000)
	b := sampleItem("b", 3000)
	c := sampleItem("c", 2000)
	c.Status = models.StatusArchived
	for _, it := range []models.FeedItem{a, b, c} {
		if err := UpsertItem(it); err != nil {
			t.Fatalf("upsert %s: %v", it.ID, err)
		}
	}
	items, err := ListActive()
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 active items, got %d", len(items))
	}
	if items[0].ID != "b" || items[1].ID != "a" {
		t.Fatalf("wrong order: %s, %s", items[0].ID, items[1].ID)
	}
}

func TestPurgeArchived(t *testing.T) {
	openTestStore(t)
	old := sampleItem("old", 1000)
	old.Status = models.StatusArchived
	recent := sampleItem("recent", 1000)
	recent.Status = models.StatusArchived
	recent.UpdatedAt = 9000
	active := sampleItem("active", 1000)
	for _, it := range []models.FeedItem{old, recent, active} {
		if err := UpsertItem(it); err != nil {
			t.Fatalf("upsert %s: %v", it.ID, err)
		}
	}

	n, err := PurgeArchived(5000, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if n != 1 {
		t.Fatalf("dry run expected 1, got %d", n)
	}
	if _, err := GetItem("old"); err != nil {
		t.Fatalf("dry run deleted item: %v", err)
	}

	n, err = PurgeArchived(5000, false)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
	if _, err := GetItem("old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old purged, got %v", err)
	}
	if _, err := GetItem("recent"); err != nil {
		t.Fatalf("recent archived item purged early: %v", err)
	}
	if _, err := GetItem("active"); err != nil {
		t.Fatalf("active item purged: %v", err)
	}
}

func TestPurgeArchivedDropsStaleIndexEntries(t *testing.T) {
	openTestStore(t)
	it := sampleItem("stale-indexed", 1000)
	it.Status = models.StatusArchived
	it.UpdatedAt = 1000
	if err := UpsertItem(it); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// entries left behind by writes that predate index cleanup
	for _, ts := range []int64{200, 500} {
		key := pkgcatKey(it.PackageName, it.Category, ts, it.ID)
		if err := db.Set(key, []byte(it.ID), pebble.Sync); err != nil {
			t.Fatalf("seed stale entry: %v", err)
		}
	}
	if n := countPkgcatKeys(t, it.PackageName, it.Category); n != 3 {
		t.Fatalf("expected 3 index entries before purge, got %d", n)
	}

	n, err := PurgeArchived(5000, false)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
	if got := countPkgcatKeys(t, it.PackageName, it.Category); got != 0 {
		t.Fatalf("purge left %d index entries behind", got)
	}
}

func TestClearAll(t *testing.T) {
	openTestStore(t)
	if err := UpsertItem(sampleItem("x", 1000)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ClearAll(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	items, err := ListAll()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty store, got %d items", len(items))
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	openTestStore(t)
	if err := UpsertItem(sampleItem("first", 1000)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	snap := recvSnapshot(t, ch)
	if len(snap) != 1 || snap[0].ID != "first" {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}

	if err := UpsertItem(sampleItem("second", 2000)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		snap = recvSnapshotOrWait(t, ch, deadline)
		if len(snap) == 2 {
			break
		}
	}
	if snap[0].ID != "second" {
		t.Fatalf("expected newest first, got %s", snap[0].ID)
	}
}

func recvSnapshot(t *testing.T, ch <-chan []models.FeedItem) []models.FeedItem {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func recvSnapshotOrWait(t *testing.T, ch <-chan []models.FeedItem, deadline <-chan time.Time) []models.FeedItem {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-deadline:
		t.Fatal("timed out waiting for updated snapshot")
		return nil
	}
}
