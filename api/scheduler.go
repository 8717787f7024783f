/*
scheduler.go - Periodic consistency audit

PURPOSE:
  Periodically re-derives the two counters the engine keeps denormalized
  and reports any drift:
    - ClassSession.Enrolled vs. the number of active bookings
    - CreditAccount.Balance vs. the sum of its credit entries

  The engine keeps both in step inside each commit, so a violation points
  at a bug or a manual edit of the database. Nothing is repaired here.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Keeps the last report for GET /api/admin/audit

  Each check reads the counter and its ledger separately, so a record
  mutated mid-check can show a transient mismatch. Failing checks are
  repeated once before being reported.

USAGE:
  scheduler := NewAuditScheduler(store, catalog, ledger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - catalog/catalog.go: CheckInvariant
  - credits/ledger.go:  Reconcile
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/class-booking/catalog"
	"github.com/warp/class-booking/credits"
	"github.com/warp/class-booking/enrollment"
)

// AuditReport is the outcome of one audit run.
type AuditReport struct {
	RunAt      time.Time `json:"run_at"`
	DurationMS int64     `json:"duration_ms"`
	Classes    int       `json:"classes_checked"`
	Accounts   int       `json:"accounts_checked"`
	Violations []string  `json:"violations"`
}

// OK reports whether no drift was found.
func (r AuditReport) OK() bool { return len(r.Violations) == 0 }

// AuditScheduler runs the consistency audit on a ticker.
type AuditScheduler struct {
	Admin         enrollment.Admin
	Catalog       *catalog.Catalog
	Credits       *credits.Ledger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu sync.RWMutex
	last   *AuditReport
}

// NewAuditScheduler creates a scheduler with an hourly interval.
func NewAuditScheduler(admin enrollment.Admin, cat *catalog.Catalog, ledger *credits.Ledger) *AuditScheduler {
	return &AuditScheduler{
		Admin:         admin,
		Catalog:       cat,
		Credits:       ledger,
		CheckInterval: time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (as *AuditScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled || as.CheckInterval <= 0 {
		log.Println("[Audit] Disabled, not starting")
		return
	}
	if as.ticker != nil {
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.stop = make(chan struct{})
	as.wg.Add(1)
	go as.run()

	log.Printf("[Audit] Started with check interval: %v", as.CheckInterval)
}

// Stop stops the scheduler and waits for a running audit to finish.
func (as *AuditScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		as.ticker = nil
		log.Println("[Audit] Stopped")
	}
}

func (as *AuditScheduler) run() {
	defer as.wg.Done()

	as.RunNow(context.Background())

	for {
		select {
		case <-as.ticker.C:
			as.RunNow(context.Background())
		case <-as.stop:
			return
		}
	}
}

// Last returns the most recent report, if any audit has run.
func (as *AuditScheduler) Last() (AuditReport, bool) {
	as.lastMu.RLock()
	defer as.lastMu.RUnlock()
	if as.last == nil {
		return AuditReport{}, false
	}
	return *as.last, true
}

// RunNow performs one audit synchronously and records its report.
func (as *AuditScheduler) RunNow(ctx context.Context) AuditReport {
	started := time.Now()
	report := AuditReport{RunAt: started.UTC(), Violations: []string{}}

	classIDs, err := as.Admin.ClassIDs(ctx)
	if err != nil {
		report.Violations = append(report.Violations, "list classes: "+err.Error())
	}
	for _, id := range classIDs {
		report.Classes++
		if err := checkTwice(func() error { return as.Catalog.CheckInvariant(ctx, id) }); err != nil {
			report.Violations = append(report.Violations, err.Error())
		}
	}

	userIDs, err := as.Admin.AccountIDs(ctx)
	if err != nil {
		report.Violations = append(report.Violations, "list accounts: "+err.Error())
	}
	for _, id := range userIDs {
		report.Accounts++
		if err := checkTwice(func() error { return as.Credits.Reconcile(ctx, id) }); err != nil {
			report.Violations = append(report.Violations, err.Error())
		}
	}

	report.DurationMS = time.Since(started).Milliseconds()
	if report.OK() {
		log.Printf("[Audit] Completed: %d classes, %d accounts, no drift", report.Classes, report.Accounts)
	} else {
		log.Printf("[Audit] Completed: %d violation(s)", len(report.Violations))
		for _, v := range report.Violations {
			log.Printf("[Audit]   %s", v)
		}
	}

	as.lastMu.Lock()
	as.last = &report
	as.lastMu.Unlock()
	return report
}

// checkTwice repeats a failing check once to rule out a commit landing
// between its two reads.
func checkTwice(check func() error) error {
	if err := check(); err == nil {
		return nil
	}
	return check()
}
