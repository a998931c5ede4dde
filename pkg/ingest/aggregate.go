package ingest

import (
	"errors"
	"time"

	"notifeed/pkg/models"
	"notifeed/pkg/telemetry"
)

// MergeWindow is the span within which identical-content reposts are
// treated as refreshes rather than new occurrences.
const MergeWindow = 5 * time.Minute

// Lookup resolves the previous stored item for an incoming event. The
// three lookups form the fallback ladder for legacy or renamed buckets:
// direct id, then thread key, then latest item for the package+category.
type Lookup struct {
	ByID            func(id string) (models.FeedItem, error)
	ByThreadKey     func(tk string) (models.FeedItem, error)
	LatestByPkgCat  func(pkg string, cat models.Category) (models.FeedItem, error)
	IsNotFound      func(err error) bool
}

// MergeInput is a normalized event entering the aggregator.
type MergeInput struct {
	BucketKey   string          `json:"bucket_key"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	PackageName string          `json:"package_name,omitempty"`
	Source      string          `json:"source"`
	Category    models.Category `json:"category"`
	Priority    int             `json:"priority"`
	ActionHint  string          `json:"action_hint,omitempty"`
	TS          int64           `json:"ts"`
}

// ThreadAggregator decides how an incoming event combines with the most
// recent stored item for its bucket.
type ThreadAggregator struct {
	window time.Duration
}

// NewThreadAggregator creates an aggregator; a non-positive window falls
// back to the 5 minute default.
func NewThreadAggregator(window time.Duration) *ThreadAggregator {
	if window <= 0 {
		window = MergeWindow
	}
	return &ThreadAggregator{window: window}
}

// Merge builds the item to store for the incoming event. Identical
// title+body within the merge window of the previous write is a duplicate
// re-post of unchanged content: the aggregate count is reused and only
// the timestamps refresh. Anything else increments the count and resets
// the item to NEW. This catches redeliveries the OS presents as new
// postings with unchanged payload, which the delivery-key dedup window
// cannot see.
func (a *ThreadAggregator) Merge(in MergeInput, lk Lookup) (models.FeedItem, error) {
	prev, found, err := a.previous(in, lk)
	if err != nil {
		return models.FeedItem{}, err
	}

	count := 1
	status := models.StatusNew
	if found {
		if prev.Title == in.Title && prev.Body == in.Body && in.TS-prev.UpdatedAt < a.window.Milliseconds() {
			// pure merge-refresh: never resets the lifecycle flag
			count = prev.AggregateCount
			status = prev.Status
			telemetry.MergeTotal.WithLabelValues("refresh").Inc()
		} else {
			count = prev.AggregateCount + 1
			telemetry.MergeTotal.WithLabelValues("increment").Inc()
		}
	} else {
		telemetry.MergeTotal.WithLabelValues("increment").Inc()
	}

	return models.FeedItem{
		ID:             in.BucketKey,
		Source:         in.Source,
		PackageName:    in.PackageName,
		Category:       in.Category,
		Title:          in.Title,
		Body:           in.Body,
		Timestamp:      in.TS,
		Priority:       in.Priority,
		Status:         status,
		ThreadKey:      in.BucketKey,
		ActionHint:     in.ActionHint,
		AggregateCount: count,
		UpdatedAt:      in.TS,
	}, nil
}

// previous walks the fallback ladder.
func (a *ThreadAggregator) previous(in MergeInput, lk Lookup) (models.FeedItem, bool, error) {
	notFound := lk.IsNotFound
	if notFound == nil {
		notFound = func(err error) bool { return errors.Is(err, errNoPrevious) }
	}

	if lk.ByID != nil {
		it, err := lk.ByID(in.BucketKey)
		if err == nil {
			return it, true, nil
		}
		if !notFound(err) {
			return models.FeedItem{}, false, err
		}
	}
	if lk.ByThreadKey != nil {
		it, err := lk.ByThreadKey(in.BucketKey)
		if err == nil {
			return it, true, nil
		}
		if !notFound(err) {
			return models.FeedItem{}, false, err
		}
	}
	if lk.LatestByPkgCat != nil && in.PackageName != "" {
		it, err := lk.LatestByPkgCat(in.PackageName, in.Category)
		if err == nil {
			return it, true, nil
		}
		if !notFound(err) {
			return models.FeedItem{}, false, err
		}
	}
	return models.FeedItem{}, false, nil
}

var errNoPrevious = errors.New("no previous item")
