package models

// Category is the fixed taxonomy a feed item is bucketed under. It is
// assigned once at ingestion and never changes afterward.
type Category string

const (
	CategoryFriendsFamily Category = "friends_family"
	CategoryWork          Category = "work"
	CategoryProjects      Category = "projects"
	CategoryCommunities   Category = "communities"
	CategoryNews          Category = "news"
	CategorySystem        Category = "system"
	CategoryOther         Category = "other"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryFriendsFamily, CategoryWork, CategoryProjects,
		CategoryCommunities, CategoryNews, CategorySystem, CategoryOther:
		return true
	}
	return false
}

// Status is the lifecycle flag of a feed item. It advances
// NEW -> SEEN -> ARCHIVED; a superseding write resets it to NEW.
type Status string

const (
	StatusNew      Status = "new"
	StatusSeen     Status = "seen"
	StatusArchived Status = "archived"
)

// FeedItem is the canonical feed entity. For device-sourced items ID equals
// the thread bucket key ("app:<package>:<category>") so that upsert is
// naturally idempotent per bucket.
type FeedItem struct {
	ID          string   `json:"id"`
	Source      string   `json:"source"`
	PackageName string   `json:"package_name,omitempty"`
	Category    Category `json:"category"`
	Title       string   `json:"title,omitempty"`
	Body        string   `json:"body,omitempty"`
	// Timestamp is the event time in epoch milliseconds; used for ordering
	// and merge-window comparisons.
	Timestamp int64 `json:"timestamp"`
	// Priority is a static per-source weight (0-10, default 5) used for
	// digest ranking only.
	Priority int    `json:"priority"`
	Status   Status `json:"status"`
	// ThreadKey is the bucket identity used for aggregation lookups; it
	// equals ID for device notifications. It need not be unique across
	// categories from the same package.
	ThreadKey  string `json:"thread_key,omitempty"`
	ActionHint string `json:"action_hint,omitempty"`
	// AggregateCount is the number of distinct notifications folded into
	// this item since it was last seen or archived. Always >= 1.
	AggregateCount int `json:"aggregate_count"`
	// UpdatedAt is the last local-write time (epoch ms). The remote mirror
	// compares this field for last-writer-wins reconciliation.
	UpdatedAt int64 `json:"updated_at"`
}

// BucketKey builds the bucket identity string grouping notifications from
// the same app and category into one evolving feed item.
func BucketKey(packageName string, cat Category) string {
	return "app:" + packageName + ":" + string(cat)
}
