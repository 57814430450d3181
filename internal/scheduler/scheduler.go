// Package scheduler drives one goroutine per configured account, each
// calling Coordinator.RunOnce on a ticker whose interval depends on
// whether the account is still in cold catch-up or has reached the hot
// incremental path (spec §6's "Scheduler contract").
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mailgraph/relationshipd/internal/domain"
	"github.com/mailgraph/relationshipd/internal/ingest/coordinator"
)

// Runner is the subset of *coordinator.Coordinator the Daemon depends
// on, narrowed to a port so tests can drive the scheduling loop against
// a fake without standing up a real store/adapter/processor.
type Runner interface {
	RunOnce(ctx context.Context, budget time.Duration) (coordinator.Result, error)
}

// AccountDriver pairs an account label with its Coordinator so the
// Daemon can log which account a tick belongs to.
type AccountDriver struct {
	Account domain.Account
	Runner  Runner
}

// Daemon owns one ticking goroutine per account.
type Daemon struct {
	Drivers []AccountDriver

	// CatchUpInterval/SteadyInterval are the two poll cadences; a driver
	// uses CatchUpInterval until a RunOnce reports the account reached
	// "hot-incremental" or "caught-up", then switches to SteadyInterval.
	CatchUpInterval time.Duration
	SteadyInterval  time.Duration

	// Budget bounds each RunOnce call's wall-clock spend.
	Budget time.Duration
}

// New builds a Daemon from the account/runner pairs, applying the
// teacher's default-value-if-zero convention for the two intervals.
func New(drivers []AccountDriver, catchUp, steady, budget time.Duration) *Daemon {
	if catchUp <= 0 {
		catchUp = time.Minute
	}
	if steady <= 0 {
		steady = 15 * time.Minute
	}
	if budget <= 0 {
		budget = 20 * time.Second
	}
	return &Daemon{Drivers: drivers, CatchUpInterval: catchUp, SteadyInterval: steady, Budget: budget}
}

// Run starts one goroutine per account and blocks until ctx is
// cancelled, at which point every account goroutine has returned.
func (d *Daemon) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, driver := range d.Drivers {
		driver := driver
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.runAccount(ctx, driver)
		}()
	}
	wg.Wait()
}

func (d *Daemon) runAccount(ctx context.Context, driver AccountDriver) {
	interval := d.CatchUpInterval
	label := driver.Account.Label

	for {
		result, err := driver.Runner.RunOnce(ctx, d.Budget)
		if err != nil {
			log.Printf("scheduler: account %s: run failed: %v", label, err)
		} else {
			log.Printf("scheduler: account %s: mode=%s processed=%d errors=%d", label, result.Mode, result.MessagesProcessed, len(result.Errors))
			if result.Mode == "hot-incremental" || result.Mode == "caught-up" {
				interval = d.SteadyInterval
			} else {
				interval = d.CatchUpInterval
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
