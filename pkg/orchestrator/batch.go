package orchestrator

import (
	"time"

	"gitreport/pkg/commit"
	"gitreport/pkg/filter"
)

// Batch is one retrieval: the raw commits plus the identity they are filtered against.
type Batch struct {
	Commits  []commit.Commit
	Identity string

	options  filter.Options
	selected []commit.Commit
	eager    bool
	now      func() time.Time
}

// Options returns the filter options the batch was fetched with.
func (b *Batch) Options() filter.Options {
	return b.options
}

// Selected returns the commits passing the fetch-time options. In eager mode
// this is the list computed at fetch; in lazy mode it is recomputed now.
func (b *Batch) Selected() []commit.Commit {
	if b.eager {
		return b.selected
	}
	return b.Select(b.options)
}

// Select filters the raw commits with opts. A zero Now takes the batch clock.
func (b *Batch) Select(opts filter.Options) []commit.Commit {
	if opts.Now.IsZero() && b.now != nil {
		opts.Now = b.now()
	}
	return filter.Select(b.Commits, opts)
}
