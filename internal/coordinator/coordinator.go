// Package coordinator runs the polling loop: every tick it probes each
// product that has at least one active monitor, tracks stock-state
// transitions per product/region, and fans out one notification per
// active subscriber when a product comes back in stock.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stockwatch/stockwatch/internal/models"
	"github.com/stockwatch/stockwatch/internal/notify"
	"github.com/stockwatch/stockwatch/internal/probe"
)

// State is the recorded availability of one product/region pair.
type State string

const (
	StateUnknown    State = "Unknown"
	StateOutOfStock State = "OutOfStock"
	StateInStock    State = "InStock"
)

func stateFor(status models.StockStatus) State {
	if status == models.StatusInStock {
		return StateInStock
	}
	return StateOutOfStock
}

// Store is the slice of the persistence layer the coordinator reads.
type Store interface {
	MonitoredProducts(ctx context.Context) ([]models.Product, error)
	ActiveMonitors(ctx context.Context) ([]models.MonitorSubscription, error)
}

// ResultCache receives the latest successful probe result. Optional.
type ResultCache interface {
	SetLastResult(ctx context.Context, productID int64, region models.Region, res models.StockResult) error
}

// Config carries the polling knobs. Zero values fall back to defaults.
type Config struct {
	Interval         time.Duration
	Concurrency      int
	ProbeTimeout     time.Duration
	FailureThreshold int
	NotifyOnDrop     bool
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 15 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
}

type pairKey struct {
	ProductID int64
	Region    models.Region
}

// pairState tracks one product/region. When consecutive failures pass the
// threshold the pair is flagged and its state moves to Unknown, but the
// last good reading is preserved for operators.
type pairState struct {
	state      State
	lastGood   State
	failures   int
	flagged    bool
	lastChange time.Time
}

// StateSnapshot is the read model exposed to the admin API.
type StateSnapshot struct {
	ProductID  int64         `json:"product_id"`
	Region     models.Region `json:"region"`
	State      State         `json:"state"`
	LastGood   State         `json:"last_good"`
	Failures   int           `json:"failures"`
	Flagged    bool          `json:"flagged"`
	LastChange time.Time     `json:"last_change,omitempty"`
}

// Coordinator owns the per-pair state machine. All state mutation happens
// on the tick goroutine after every probe in the tick has settled, so a
// transition is atomic relative to a single tick.
type Coordinator struct {
	store    Store
	prober   probe.Prober
	notifier notify.Notifier
	cache    ResultCache
	log      *slog.Logger
	cfg      Config

	mu     sync.RWMutex
	states map[pairKey]*pairState

	now func() time.Time
}

func New(store Store, prober probe.Prober, notifier notify.Notifier, cache ResultCache, log *slog.Logger, cfg Config) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		store:    store,
		prober:   prober,
		notifier: notifier,
		cache:    cache,
		log:      log,
		cfg:      cfg,
		states:   make(map[pairKey]*pairState),
		now:      time.Now,
	}
}

// Run polls at the fixed interval until the context is cancelled. The
// first tick fires immediately.
func (c *Coordinator) Run(ctx context.Context) {
	c.log.Info("coordinator started",
		"interval", c.cfg.Interval,
		"concurrency", c.cfg.Concurrency,
		"failure_threshold", c.cfg.FailureThreshold,
	)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("coordinator stopped")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// job is one probe to run this tick.
type job struct {
	product models.Product
	region  models.Region
	link    string
}

// outcome is the settled result of one job.
type outcome struct {
	job job
	res models.StockResult
	err error
}

// tick probes every monitored product/region on a bounded worker pool,
// waits for all probes to settle, then applies transitions and dispatches
// notifications. The fan-out list is snapshotted up front: a monitor
// cancelled mid-tick still receives this tick's alert and drops out of
// the next tick.
func (c *Coordinator) tick(ctx context.Context) {
	start := c.now()

	products, err := c.store.MonitoredProducts(ctx)
	if err != nil {
		c.log.Error("tick: list monitored products", "err", err)
		return
	}
	monitors, err := c.store.ActiveMonitors(ctx)
	if err != nil {
		c.log.Error("tick: list active monitors", "err", err)
		return
	}
	subsByProduct := make(map[int64][]models.MonitorSubscription)
	for _, m := range monitors {
		subsByProduct[m.ProductID] = append(subsByProduct[m.ProductID], m)
	}

	var jobs []job
	for _, p := range products {
		for _, region := range models.Regions {
			if link := p.Link(region); link != "" {
				jobs = append(jobs, job{product: p, region: region, link: link})
			}
		}
	}

	c.log.Info("tick started", "products", len(products), "probes", len(jobs))

	outcomes := c.runProbes(ctx, jobs)

	// A cancelled tick records nothing: no partial state transitions.
	if ctx.Err() != nil {
		c.log.Warn("tick aborted", "err", ctx.Err())
		return
	}

	for _, o := range outcomes {
		c.apply(ctx, o, subsByProduct[o.job.product.ID])
	}

	c.log.Info("tick finished", "probes", len(jobs), "elapsed", c.now().Sub(start).String())
}

// runProbes fans jobs out to a bounded pool and waits for every probe to
// settle, success or failure.
func (c *Coordinator) runProbes(ctx context.Context, jobs []job) []outcome {
	outcomes := make([]outcome, len(jobs))
	sem := make(chan struct{}, c.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			pctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
			defer cancel()
			res, err := c.prober.Check(pctx, j.region, j.link)
			outcomes[i] = outcome{job: j, res: res, err: err}
		}(i, j)
	}
	wg.Wait()
	return outcomes
}

// apply advances the state machine for one settled probe.
func (c *Coordinator) apply(ctx context.Context, o outcome, subs []models.MonitorSubscription) {
	key := pairKey{ProductID: o.job.product.ID, Region: o.job.region}

	c.mu.Lock()
	st, ok := c.states[key]
	if !ok {
		st = &pairState{state: StateUnknown, lastGood: StateUnknown}
		c.states[key] = st
	}

	if o.err != nil {
		if errors.Is(o.err, context.Canceled) {
			// Shutdown raced the probe; leave the pair untouched.
			c.mu.Unlock()
			return
		}
		st.failures++
		c.log.Warn("probe failed",
			"product_id", key.ProductID, "region", key.Region,
			"failures", st.failures, "err", o.err,
		)
		if st.failures >= c.cfg.FailureThreshold && !st.flagged {
			st.flagged = true
			if st.state != StateUnknown {
				st.lastGood = st.state
			}
			st.state = StateUnknown
			c.log.Warn("pair flagged for operator attention",
				"product_id", key.ProductID, "region", key.Region,
				"consecutive_failures", st.failures, "last_good", st.lastGood,
			)
		}
		c.mu.Unlock()
		return
	}

	st.failures = 0
	st.flagged = false

	prev := st.state
	next := stateFor(o.res.Status)
	st.lastGood = next
	transitioned := prev != next
	if transitioned {
		st.state = next
		st.lastChange = c.now()
	}
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.SetLastResult(ctx, key.ProductID, key.Region, o.res); err != nil {
			c.log.Warn("cache last result", "product_id", key.ProductID, "region", key.Region, "err", err)
		}
	}

	if !transitioned {
		return
	}

	c.log.Info("stock transition",
		"product_id", key.ProductID, "product", o.job.product.Name,
		"region", key.Region, "from", prev, "to", next,
	)

	// Exactly one fan-out per distinct entry into InStock, never one per
	// tick while the product stays in stock.
	if next == StateInStock {
		c.fanOut(ctx, o, subs)
		return
	}
	if next == StateOutOfStock && prev == StateInStock && c.cfg.NotifyOnDrop {
		c.fanOut(ctx, o, subs)
	}
}

// fanOut dispatches one alert per active subscriber of the product.
func (c *Coordinator) fanOut(ctx context.Context, o outcome, subs []models.MonitorSubscription) {
	dispatched := 0
	for _, sub := range subs {
		alert := models.StockAlert{
			UserID:      sub.UserID,
			ProductID:   o.job.product.ID,
			ProductName: o.job.product.Name,
			Region:      o.job.region,
			Link:        o.job.link,
			Status:      o.res.Status,
		}
		if err := c.notifier.Notify(ctx, alert); err != nil {
			c.log.Error("notify subscriber", "user_id", sub.UserID, "product_id", o.job.product.ID, "err", err)
			continue
		}
		dispatched++
	}
	c.log.Info("notifications dispatched",
		"product_id", o.job.product.ID, "region", o.job.region, "count", dispatched,
	)
}

// States returns a snapshot of every tracked product/region pair, ordered
// by product then region.
func (c *Coordinator) States() []StateSnapshot {
	c.mu.RLock()
	out := make([]StateSnapshot, 0, len(c.states))
	for key, st := range c.states {
		out = append(out, StateSnapshot{
			ProductID:  key.ProductID,
			Region:     key.Region,
			State:      st.state,
			LastGood:   st.lastGood,
			Failures:   st.failures,
			Flagged:    st.flagged,
			LastChange: st.lastChange,
		})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].Region < out[j].Region
	})
	return out
}
