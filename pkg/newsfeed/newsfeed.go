// Package newsfeed ingests RSS/Atom feeds into the NEWS category through
// the same aggregation pipeline device notifications use, so repeated
// polls of an unchanged feed merge instead of stacking duplicates.
package newsfeed

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"notifeed/pkg/ingest"
	"notifeed/pkg/logger"
	"notifeed/pkg/models"
)

// Poller fetches configured feeds on an interval and enqueues the newest
// entry of each as a merge input. PackageName stays empty: these are not
// device-sourced items.
type Poller struct {
	urls     []string
	interval time.Duration
	parser   *gofeed.Parser
	enqueue  func(ingest.MergeInput) error
	now      func() time.Time
}

// NewPoller builds a poller; a non-positive interval defaults to 15m.
func NewPoller(urls []string, interval time.Duration, enqueue func(ingest.MergeInput) error) *Poller {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Poller{
		urls:     urls,
		interval: interval,
		parser:   gofeed.NewParser(),
		enqueue:  enqueue,
		now:      time.Now,
	}
}

// Run polls until ctx is done. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) {
	if len(p.urls) == 0 {
		return
	}
	p.pollAll(ctx)
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.pollAll(ctx)
		}
	}
}

func (p *Poller) pollAll(ctx context.Context) {
	for _, url := range p.urls {
		if err := p.pollOne(ctx, url); err != nil {
			logger.Warn("newsfeed_poll_failed", "url", url, "error", err)
		}
	}
}

func (p *Poller) pollOne(ctx context.Context, url string) error {
	feed, err := p.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return err
	}
	entry := newestEntry(feed)
	if entry == nil {
		return nil
	}
	ts := p.now().UnixMilli()
	if entry.PublishedParsed != nil {
		ts = entry.PublishedParsed.UnixMilli()
	}
	in := ingest.MergeInput{
		BucketKey:  "news:" + feedSlug(url),
		Title:      strings.TrimSpace(entry.Title),
		Body:       snippet(entry),
		Source:     strings.TrimSpace(feed.Title),
		Category:   models.CategoryNews,
		Priority:   3,
		ActionHint: "open",
		TS:         ts,
	}
	if in.Source == "" {
		in.Source = url
	}
	if in.Title == "" && in.Body == "" {
		return nil
	}
	return p.enqueue(in)
}

func newestEntry(feed *gofeed.Feed) *gofeed.Item {
	var newest *gofeed.Item
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		if newest == nil {
			newest = it
			continue
		}
		if it.PublishedParsed != nil && (newest.PublishedParsed == nil || it.PublishedParsed.After(*newest.PublishedParsed)) {
			newest = it
		}
	}
	return newest
}

func snippet(it *gofeed.Item) string {
	s := strings.TrimSpace(it.Description)
	if s == "" {
		s = strings.TrimSpace(it.Content)
	}
	if len(s) > 280 {
		s = s[:280]
	}
	return s
}

// feedSlug derives a stable bucket suffix from the feed URL.
func feedSlug(url string) string {
	h := sha1.Sum([]byte(url))
	return hex.EncodeToString(h[:8])
}
