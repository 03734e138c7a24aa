// Package processor orchestrates one aggregation run: each subscribed feed is
// fetched, its new articles are transformed into messages and appended to the
// feed's mailbox, and the feed's conditional-fetch state is updated.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/jerobins/syngen/internal/cache"
	"github.com/jerobins/syngen/internal/feed"
	"github.com/jerobins/syngen/internal/mbox"
	"github.com/jerobins/syngen/internal/model"
	"github.com/jerobins/syngen/internal/state"
	"github.com/jerobins/syngen/internal/subscription"
	"github.com/jerobins/syngen/internal/transform"
)

// Options configures a Processor.
type Options struct {
	MailDir         string
	CacheDir        string
	StateDir        string
	DryRun          bool // suppress every write; fetches still happen
	MaxCacheEntries int  // 0 means the cache default
	MinCacheEntries int  // 0 means the cache default
	Concurrency     int  // feeds processed in parallel, <=1 means sequential
}

// Outcome is the terminal state of one feed's pass.
type Outcome int

const (
	// OutcomeUnchanged means the feed had nothing new.
	OutcomeUnchanged Outcome = iota
	// OutcomeUpdated means the feed's items were processed.
	OutcomeUpdated
	// OutcomeFailed means an error report was delivered instead.
	OutcomeFailed
)

// Summary reports the outcome of one run.
type Summary struct {
	Processed  int // feeds handled to a terminal state
	Updated    int
	Unchanged  int
	Failed     int
	Delivered  int // messages appended, error reports excluded
	Duplicates int // articles suppressed by the duplicate cache
}

// Processor runs the conversion pipeline. One feed is owned by exactly one
// worker for its entire pass, so per-feed cache and state files see a single
// writer.
type Processor struct {
	opts    Options
	fetcher feed.Fetcher
	source  subscription.Source
	states  state.Store
	cache   cache.Cache
	mailbox mbox.Appender
	logger  *slog.Logger
	now     time.Time
}

// New creates a Processor. The current time is captured once and used as the
// fallback publish date and error-report date for the whole run.
func New(opts Options, fetcher feed.Fetcher, source subscription.Source, logger *slog.Logger) *Processor {
	return &Processor{
		opts:    opts,
		fetcher: fetcher,
		source:  source,
		states:  state.Store{DryRun: opts.DryRun},
		cache: cache.Cache{
			Max:    opts.MaxCacheEntries,
			Min:    opts.MinCacheEntries,
			DryRun: opts.DryRun,
			Logger: logger,
		},
		mailbox: mbox.Appender{DryRun: opts.DryRun},
		logger:  logger,
		now:     time.Now().UTC(),
	}
}

// Run processes every current subscription. Per-feed failures are delivered
// as error messages and never abort the run; the returned error covers only
// failures before any feed was touched.
func (p *Processor) Run(ctx context.Context) (Summary, error) {
	entries, err := p.source.Entries(ctx)
	if err != nil {
		return Summary{}, &FeedError{Kind: KindSubscription, Message: "load subscriptions", Err: err}
	}
	subs := p.resolve(entries)

	p.logger.Info("processing feeds", "count", len(subs), "concurrency", p.concurrency())
	if p.concurrency() > 1 {
		return p.runParallel(ctx, subs), nil
	}
	return p.runSequential(ctx, subs), nil
}

func (p *Processor) concurrency() int {
	if p.opts.Concurrency > 1 {
		return p.opts.Concurrency
	}
	return 1
}

// resolve turns raw subscription entries into per-feed file paths.
func (p *Processor) resolve(entries []subscription.Entry) []model.Subscription {
	subs := make([]model.Subscription, 0, len(entries))
	for _, e := range entries {
		sub := model.Subscription{
			URL:     e.URL,
			Mailbox: filepath.Join(p.opts.MailDir, e.Mailbox),
		}
		if e.CacheID != "" {
			sub.CachePath = filepath.Join(p.opts.CacheDir, e.CacheID)
			sub.StatePath = filepath.Join(p.opts.StateDir, e.CacheID)
		}
		subs = append(subs, sub)
	}
	return subs
}

// runSequential processes feeds one at a time, checking for cancellation
// between feeds so an aborted run never leaves a mailbox mid-append.
func (p *Processor) runSequential(ctx context.Context, subs []model.Subscription) Summary {
	var sum Summary
	for i, sub := range subs {
		select {
		case <-ctx.Done():
			p.logger.Warn("run cancelled", "processed", i, "remaining", len(subs)-i)
			return sum
		default:
		}
		sum.add(p.processFeed(ctx, sub))
	}
	return sum
}

// runParallel fans feeds out to a bounded worker pool. Mailbox appends stay
// safe across workers because each append holds the file lock; cache and
// state files stay safe because a feed never leaves its worker.
func (p *Processor) runParallel(ctx context.Context, subs []model.Subscription) Summary {
	feedChan := make(chan model.Subscription, len(subs))
	resultChan := make(chan feedResult, len(subs))

	done := make(chan struct{})
	workers := p.concurrency()
	for i := 0; i < workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for sub := range feedChan {
				select {
				case <-ctx.Done():
					return
				default:
				}
				resultChan <- p.processFeed(ctx, sub)
			}
		}()
	}

	for _, sub := range subs {
		feedChan <- sub
	}
	close(feedChan)

	go func() {
		for i := 0; i < workers; i++ {
			<-done
		}
		close(resultChan)
	}()

	var sum Summary
	for res := range resultChan {
		sum.add(res)
	}
	return sum
}

type feedResult struct {
	outcome    Outcome
	delivered  int
	duplicates int
}

func (s *Summary) add(res feedResult) {
	s.Processed++
	s.Delivered += res.delivered
	s.Duplicates += res.duplicates
	switch res.outcome {
	case OutcomeUpdated:
		s.Updated++
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeFailed:
		s.Failed++
	}
}

// processFeed runs one feed through fetch, transform, dedup and delivery.
func (p *Processor) processFeed(ctx context.Context, sub model.Subscription) feedResult {
	var prior model.ConditionalState
	if sub.StatePath != "" {
		prior = p.states.Load(sub.StatePath)
	}

	res, err := p.fetcher.Fetch(ctx, sub.URL, prior)
	if err != nil {
		p.reportError(sub, &FeedError{Kind: KindFetch, Message: "unable to retrieve feed", Err: err})
		return feedResult{outcome: OutcomeFailed}
	}

	switch res.Status {
	case feed.StatusNotModified, feed.StatusEmpty:
		return feedResult{outcome: OutcomeUnchanged}
	case feed.StatusHTTPError:
		p.reportError(sub, &FeedError{
			Kind:    KindHTTP,
			Message: fmt.Sprintf("received HTTP error %d", res.Code),
		})
		return feedResult{outcome: OutcomeFailed}
	case feed.StatusParseError:
		p.reportError(sub, &FeedError{Kind: KindParse, Message: "unparseable feed data", Err: res.Err})
		return feedResult{outcome: OutcomeFailed}
	}

	doc := res.Document
	tr := transform.New(doc.Title, doc.Link, p.now)

	var batch strings.Builder
	result := feedResult{outcome: OutcomeUpdated}
	for _, item := range doc.Items {
		msg := tr.Message(item)
		if sub.CachePath != "" && p.cache.IsDuplicate(sub.CachePath, msg.GUID) {
			result.duplicates++
			continue
		}
		text, err := mbox.Serialize(msg)
		if err != nil {
			p.reportError(sub, &FeedError{Kind: KindDeliver, Message: "serialize message", Err: err})
			return feedResult{outcome: OutcomeFailed}
		}
		batch.WriteString(text)
		result.delivered++
	}

	// One locked append per feed pass, no matter how many articles arrived.
	if batch.Len() > 0 {
		if err := p.mailbox.Append(sub.Mailbox, batch.String()); err != nil {
			p.reportError(sub, &FeedError{Kind: KindDeliver, Message: "append to mailbox", Err: err})
			return feedResult{outcome: OutcomeFailed}
		}
	}

	// Persist refreshed validators even when every article was a duplicate:
	// the next run should still get to send a conditional request.
	if sub.StatePath != "" {
		st := model.ConditionalState{ETag: doc.ETag, Modified: doc.Modified}
		if err := p.states.Save(sub.StatePath, st); err != nil {
			p.logger.Warn("save conditional state", "url", sub.URL, "error", err)
		}
	}

	p.logger.Info("feed updated", "url", sub.URL,
		"delivered", result.delivered, "duplicates", result.duplicates)
	return result
}

// reportError delivers a synthesized error message to the feed's mailbox.
// Failures here are logged and dropped; an undeliverable report must not take
// the rest of the run down with it.
func (p *Processor) reportError(sub model.Subscription, ferr *FeedError) {
	p.logger.Warn("feed failed", "url", sub.URL, "kind", string(ferr.Kind), "error", ferr)

	text, err := mbox.Serialize(transform.ErrorMessage(sub.URL, ferr.Detail(), p.now))
	if err != nil {
		p.logger.Error("serialize error report", "url", sub.URL, "error", err)
		return
	}
	if err := p.mailbox.Append(sub.Mailbox, text); err != nil {
		p.logger.Error("deliver error report", "url", sub.URL, "error", err)
	}
}

// Cleanup removes cache and state files belonging to feeds that are no longer
// subscribed and returns the number of identifiers removed.
func (p *Processor) Cleanup(ctx context.Context) (int, error) {
	entries, err := p.source.Entries(ctx)
	if err != nil {
		return 0, fmt.Errorf("load subscriptions: %w", err)
	}
	required := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.CacheID == "" {
			// Remotely managed subscriptions carry no cache identifiers, so
			// no file on disk can be judged an orphan. Prune nothing.
			p.logger.Info("cleanup skipped, subscriptions carry no cache identifiers")
			return 0, nil
		}
		required[e.CacheID] = true
	}
	return cache.Cleanup(p.opts.CacheDir, p.opts.StateDir, required, p.opts.DryRun, p.logger)
}
