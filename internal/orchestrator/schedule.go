package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/model"
	"github.com/dealpulse/ingest/internal/queue"
)

// Schedule keys.
const (
	ScrapeAllKey      = "scrape-all-merchants"
	merchantKeyPrefix = "scrape-merchant:"
)

// MerchantScheduleKey is the recurring-job key for one merchant.
func MerchantScheduleKey(slug string) string {
	return merchantKeyPrefix + strings.ToLower(slug)
}

// Schedules is the recurring-job registry; *queue.Scheduler satisfies it.
type Schedules interface {
	Register(key, spec string, t model.JobType, payload model.JobPayload) (bool, error)
	Remove(key string) bool
	List() []queue.Schedule
}

// SyncResult reports what SyncSchedules changed.
type SyncResult struct {
	Registered []string `json:"registered,omitempty"`
	Removed    []string `json:"removed,omitempty"`
	Unchanged  int      `json:"unchanged"`
}

// SyncSchedules reconciles recurring jobs with configuration: the
// scrape-all job on schedule.scrape_all_cron and, when per-merchant
// scheduling is on, one job per scrapable merchant every
// scraping_interval_hours. Per-merchant keys for merchants that are no
// longer scrapable are removed. Running it repeatedly is safe.
func (o *Orchestrator) SyncSchedules(ctx context.Context, s Schedules) (SyncResult, error) {
	var res SyncResult
	track := func(key string, changed bool) {
		if changed {
			res.Registered = append(res.Registered, key)
		} else {
			res.Unchanged++
		}
	}

	if spec := o.cfg.Schedule.ScrapeAllCron; spec != "" {
		changed, err := s.Register(ScrapeAllKey, spec, model.JobScrapeAllMerchants, model.JobPayload{})
		if err != nil {
			return res, err
		}
		track(ScrapeAllKey, changed)
	} else if s.Remove(ScrapeAllKey) {
		res.Removed = append(res.Removed, ScrapeAllKey)
	}

	want := map[string]bool{}
	if o.cfg.Schedule.PerMerchant {
		merchants, err := o.merchants.ListMerchants(ctx)
		if err != nil {
			return res, eris.Wrap(err, "orchestrator: list merchants")
		}
		for _, m := range merchants {
			if !m.Scrapable() {
				continue
			}
			key := MerchantScheduleKey(m.Slug)
			want[key] = true
			changed, err := s.Register(key, intervalSpec(m.ScrapingIntervalHours), model.JobScrapeMerchant,
				model.JobPayload{Merchant: m.Slug})
			if err != nil {
				return res, err
			}
			track(key, changed)
		}
	}

	for _, sc := range s.List() {
		if strings.HasPrefix(sc.Key, merchantKeyPrefix) && !want[sc.Key] {
			if s.Remove(sc.Key) {
				res.Removed = append(res.Removed, sc.Key)
			}
		}
	}

	zap.L().Info("orchestrator: schedules synced",
		zap.Strings("registered", res.Registered),
		zap.Strings("removed", res.Removed),
		zap.Int("unchanged", res.Unchanged),
	)
	return res, nil
}

func intervalSpec(hours int) string {
	if hours <= 0 {
		hours = 6
	}
	return fmt.Sprintf("@every %dh", hours)
}
