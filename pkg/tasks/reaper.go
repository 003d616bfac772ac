package tasks

import (
	"context"
	"log"
	"time"

	"github.com/postpilot/postpilot/pkg/storage"
)

// Reaper releases records stuck in the processing state. A record is
// considered stuck when its last update is strictly older than the
// staleness threshold; a record updated exactly at the threshold instant
// is left alone.
type Reaper struct {
	store     storage.Store
	staleness time.Duration

	// injectable for tests
	now func() time.Time
}

// NewReaper creates a reaper with the given staleness threshold.
func NewReaper(store storage.Store, staleness time.Duration) *Reaper {
	if staleness <= 0 {
		staleness = 5 * time.Minute
	}
	return &Reaper{
		store:     store,
		staleness: staleness,
		now:       time.Now,
	}
}

// Report summarizes a sweep.
type Report struct {
	ThemesReleased int                   `json:"themes_released"`
	PostsReleased  int                   `json:"posts_released"`
	Records        []storage.StaleRecord `json:"records"`
	DryRun         bool                  `json:"dry_run"`
}

// Sweep releases every stuck record and reports what it touched. With
// dryRun set it only lists the records that would be released.
func (r *Reaper) Sweep(ctx context.Context, dryRun bool) (Report, error) {
	cutoff := r.now().Add(-r.staleness)

	var (
		records []storage.StaleRecord
		err     error
	)
	if dryRun {
		records, err = r.store.ListStale(ctx, cutoff)
	} else {
		records, err = r.store.ReleaseStale(ctx, cutoff)
	}
	if err != nil {
		return Report{}, err
	}

	report := Report{Records: records, DryRun: dryRun}
	for _, rec := range records {
		switch rec.Kind {
		case storage.KindTheme:
			report.ThemesReleased++
		case storage.KindPost:
			report.PostsReleased++
		}
	}
	return report, nil
}

// Run sweeps periodically until the context is cancelled.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := r.Sweep(ctx, false)
			if err != nil {
				log.Printf("reaper: sweep failed: %v", err)
				continue
			}
			if len(report.Records) > 0 {
				log.Printf("reaper: released %d themes, %d posts", report.ThemesReleased, report.PostsReleased)
			}
		}
	}
}

// HealTheme releases the theme in place if it is stuck. Status reads call
// this so a single poll self-heals the record it is looking at. Reports
// whether the theme was released.
func (r *Reaper) HealTheme(ctx context.Context, theme *storage.Theme) (bool, error) {
	if !r.stuck(theme.IsProcessing, theme.UpdatedAt) {
		return false, nil
	}
	theme.IsProcessing = false
	theme.ProcessingStatus = storage.ProcessingTimeout
	if err := r.store.UpdateTheme(ctx, theme); err != nil {
		return false, err
	}
	return true, nil
}

// HealPost is the post counterpart of HealTheme.
func (r *Reaper) HealPost(ctx context.Context, post *storage.Post) (bool, error) {
	if !r.stuck(post.IsProcessing, post.UpdatedAt) {
		return false, nil
	}
	post.IsProcessing = false
	post.ProcessingStatus = storage.ProcessingTimeout
	if err := r.store.UpdatePost(ctx, post); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Reaper) stuck(isProcessing bool, updatedAt time.Time) bool {
	return isProcessing && updatedAt.Before(r.now().Add(-r.staleness))
}
