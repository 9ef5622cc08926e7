package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/FelixBrandt/GiftMile/internal/pkg/cache"
	"github.com/FelixBrandt/GiftMile/internal/pkg/gift"
	"github.com/gofiber/fiber/v2/log"
)

// State is the runner's cycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

const cycleLeaseKey = "giftmile:cycle:lease"

// ShopResult is the per-shop outcome of one cycle.
type ShopResult struct {
	Shop               string   `json:"shop"`
	TotalFetched       int      `json:"total_fetched"`
	TotalSynced        int      `json:"total_synced"`
	EligibilityCreated int      `json:"eligibility_created"`
	EmailsSent         int      `json:"emails_sent"`
	EmailsFailed       int      `json:"emails_failed"`
	Errors             []string `json:"errors,omitempty"`
}

// CycleReport summarizes one full cycle across all enabled shops.
type CycleReport struct {
	Skipped bool         `json:"skipped"`
	Success bool         `json:"success"`
	Shops   []ShopResult `json:"shops"`
}

// Runner executes the reconcile -> evaluate -> dispatch sequence for every
// enabled shop. A second trigger while a cycle is in flight no-ops instead of
// running concurrently; on multi-instance deployments a best-effort Redis
// lease extends the same guard across processes.
type Runner struct {
	svc      *gift.Service
	interval time.Duration
	useLease bool

	mu     sync.Mutex
	state  State
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRunner creates a runner over the gift service.
func NewRunner(svc *gift.Service, interval time.Duration, useLease bool) *Runner {
	return &Runner{
		svc:      svc,
		interval: interval,
		useLease: useLease,
		stopCh:   make(chan struct{}),
	}
}

// State reports whether a cycle is currently in flight.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start launches the periodic timer. Safe to call once per process.
func (r *Runner) Start() {
	if r.interval <= 0 {
		log.Info("[Scheduler] periodic cycles disabled (no interval configured)")
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		log.Infof("[Scheduler] periodic cycles every %s", r.interval)
		for {
			select {
			case <-ticker.C:
				r.RunCycle(context.Background())
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Stop halts the periodic timer and waits for it to exit. An in-flight cycle
// runs to completion; cancellation mid-cycle is not supported.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// RunCycle runs one full cycle. Overlapping invocations are suppressed with a
// log line rather than queued.
func (r *Runner) RunCycle(ctx context.Context) *CycleReport {
	r.mu.Lock()
	if r.state == StateRunning {
		r.mu.Unlock()
		log.Info("[Scheduler] cycle already running, skipping trigger")
		return &CycleReport{Skipped: true}
	}
	r.state = StateRunning
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.state = StateIdle
		r.mu.Unlock()
	}()

	if r.useLease {
		ok, err := cache.AcquireLease(cycleLeaseKey, 10*time.Minute)
		if err != nil {
			// Redis down: the in-process guard still protects this instance.
			log.Warnf("[Scheduler] cycle lease unavailable, continuing without: %v", err)
		} else if !ok {
			log.Info("[Scheduler] cycle lease held elsewhere, skipping")
			return &CycleReport{Skipped: true}
		} else {
			defer func() {
				if err := cache.ReleaseLease(cycleLeaseKey); err != nil {
					log.Warnf("[Scheduler] cycle lease release failed: %v", err)
				}
			}()
		}
	}

	shops, err := r.svc.Repo.ListEnabledShops()
	if err != nil {
		log.Errorf("[Scheduler] listing enabled shops failed: %v", err)
		return &CycleReport{Success: false}
	}

	report := &CycleReport{Success: true, Shops: make([]ShopResult, 0, len(shops))}
	for _, shop := range shops {
		result := r.runShop(ctx, shop)
		if len(result.Errors) > 0 {
			report.Success = false
		}
		report.Shops = append(report.Shops, result)
	}
	return report
}

// runShop executes the three steps for one shop. Each step's failure is
// recorded and the remaining steps still run on whatever local state exists;
// one shop's failure never blocks the others.
func (r *Runner) runShop(ctx context.Context, shop string) ShopResult {
	result := ShopResult{Shop: shop}

	sync, err := r.svc.Reconcile(ctx, shop, 1, "")
	if err != nil {
		log.Errorf("[Scheduler] shop %s: reconcile failed: %v", shop, err)
		result.Errors = append(result.Errors, "reconcile: "+err.Error())
	} else {
		result.TotalFetched = sync.TotalFetched
		result.TotalSynced = sync.TotalSynced
	}

	created, err := r.svc.EvaluateEligibility(ctx, shop)
	if err != nil {
		log.Errorf("[Scheduler] shop %s: evaluate failed: %v", shop, err)
		result.Errors = append(result.Errors, "evaluate: "+err.Error())
	}
	result.EligibilityCreated = created

	dispatch, err := r.svc.DispatchPendingEmails(ctx, shop)
	if err != nil {
		log.Errorf("[Scheduler] shop %s: dispatch failed: %v", shop, err)
		result.Errors = append(result.Errors, "dispatch: "+err.Error())
	}
	result.EmailsSent = dispatch.Sent
	result.EmailsFailed = dispatch.Failed

	return result
}
