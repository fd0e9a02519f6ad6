package transitnotify

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/transitwatch/transit-notify/geo"
	"github.com/transitwatch/transit-notify/gtfsrt"
	"github.com/transitwatch/transit-notify/internal/metrics"
)

const snapshotMaxAge = 30 * time.Second

// FeedFetcher pulls one raw GTFS-Realtime payload.
type FeedFetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// TripResolver maps a trip to its route when the feed omits the route id.
type TripResolver interface {
	RouteForTrip(ctx context.Context, tripID string) (string, error)
}

// VehicleSink consumes one decoded feed snapshot.
type VehicleSink interface {
	ProcessVehicleLocations(ctx context.Context, vehicles []gtfsrt.VehiclePosition) error
}

// Poller drives the fetch/decode/process cycle on a fixed interval.
//
// It is a two-state machine, stopped or polling. A tick is skipped while
// the previous cycle is still in flight. After failureThreshold consecutive
// fetch failures the breaker opens and fetches are short-circuited until
// cooldown has passed since the last success.
type Poller struct {
	fetcher  FeedFetcher
	resolver TripResolver
	sink     VehicleSink
	metrics  *metrics.Collector

	interval         time.Duration
	failureThreshold int
	cooldown         time.Duration

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight atomic.Bool

	failMu      sync.Mutex
	failures    int
	lastSuccess time.Time

	snapMu     sync.RWMutex
	snapshot   []gtfsrt.VehiclePosition
	snapshotAt time.Time
}

type PollerConfig struct {
	Interval         time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

func NewPoller(fetcher FeedFetcher, resolver TripResolver, sink VehicleSink, m *metrics.Collector, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Poller{
		fetcher:          fetcher,
		resolver:         resolver,
		sink:             sink,
		metrics:          m,
		interval:         cfg.Interval,
		failureThreshold: cfg.FailureThreshold,
		cooldown:         cfg.Cooldown,
	}
}

// Start begins polling: one immediate cycle, then one per interval. A
// second Start while polling is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.failMu.Lock()
	if p.lastSuccess.IsZero() {
		// Baseline for the breaker cooldown until the first real success.
		p.lastSuccess = time.Now()
	}
	p.failMu.Unlock()
	go p.loop(ctx, p.done)
	log.Printf("poller: started, interval %s", p.interval)
}

// Stop cancels the ticker and returns to the stopped state. An in-flight
// cycle finishes but is not rescheduled.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	log.Printf("poller: stopped")
}

// Running reports whether the poller is in the polling state.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastSuccess returns the time of the last successful fetch, zero if none.
func (p *Poller) LastSuccess() time.Time {
	p.failMu.Lock()
	defer p.failMu.Unlock()
	return p.lastSuccess
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	p.cycle(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// cycle runs one fetch/decode/process pass. Safe to call concurrently; the
// in-flight guard turns overlapping calls into no-ops.
func (p *Poller) cycle(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		log.Printf("poller: previous cycle still running, skipping tick")
		return
	}
	defer p.inFlight.Store(false)

	vehicles, ok := p.refreshLocked(ctx)
	if !ok {
		return
	}
	if err := p.sink.ProcessVehicleLocations(ctx, vehicles); err != nil {
		log.Printf("poller: process vehicles: %v", err)
	}
}

// refreshLocked fetches, decodes and snapshots one feed read. The caller
// holds the in-flight guard.
func (p *Poller) refreshLocked(ctx context.Context) ([]gtfsrt.VehiclePosition, bool) {
	if p.breakerOpen() {
		log.Printf("poller: circuit open, skipping fetch")
		p.metrics.IncFeedFetch("short_circuit")
		return nil, false
	}

	vehicles, err := p.fetchVehicles(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("poller: fetch failed: %v", err)
		}
		p.metrics.IncFeedFetch("error")
		p.recordFailure()
		return nil, false
	}
	p.metrics.IncFeedFetch("ok")
	p.metrics.SetVehiclesTracked(len(vehicles))
	p.recordSuccess()

	p.snapMu.Lock()
	p.snapshot = vehicles
	p.snapshotAt = time.Now()
	p.snapMu.Unlock()
	return vehicles, true
}

// refreshSnapshot re-reads the feed without handing the batch to the sink.
// It serves read queries, which must never dispatch notifications.
func (p *Poller) refreshSnapshot(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		// A full cycle is running; its snapshot will be at least as fresh.
		return
	}
	defer p.inFlight.Store(false)
	p.refreshLocked(ctx)
}

// fetchVehicles pulls and decodes the feed, then resolves every vehicle's
// route through the store-backed cache. The feed's own route id is never
// trusted: it lives in the GTFS route_id namespace ("3-20680") while
// subscriptions and the store key routes by short name ("3"). Vehicles
// without a trip, or whose trip cannot be resolved, are dropped.
func (p *Poller) fetchVehicles(ctx context.Context) ([]gtfsrt.VehiclePosition, error) {
	data, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	decoded, err := gtfsrt.DecodeVehiclePositions(data)
	if err != nil {
		return nil, err
	}

	vehicles := decoded[:0:0]
	for _, v := range decoded {
		if v.TripID == "" {
			continue
		}
		routeID, err := p.resolver.RouteForTrip(ctx, v.TripID)
		if err != nil {
			log.Printf("poller: resolve trip %s: %v", v.TripID, err)
			continue
		}
		if routeID == "" {
			continue
		}
		v.RouteID = routeID
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

func (p *Poller) breakerOpen() bool {
	p.failMu.Lock()
	defer p.failMu.Unlock()
	if p.failures < p.failureThreshold {
		return false
	}
	if time.Since(p.lastSuccess) >= p.cooldown {
		// Cooldown elapsed, allow a probe.
		p.failures = 0
		return false
	}
	return true
}

func (p *Poller) recordFailure() {
	p.failMu.Lock()
	p.failures++
	p.failMu.Unlock()
}

func (p *Poller) recordSuccess() {
	p.failMu.Lock()
	p.failures = 0
	p.lastSuccess = time.Now()
	p.failMu.Unlock()
}

// VehiclesNear returns tracked vehicles within radiusMeters of a point,
// refreshing the snapshot synchronously when it is older than 30 seconds.
func (p *Poller) VehiclesNear(ctx context.Context, lat, lon, radiusMeters float64) []gtfsrt.VehiclePosition {
	p.snapMu.RLock()
	snapshot, at := p.snapshot, p.snapshotAt
	p.snapMu.RUnlock()

	if time.Since(at) > snapshotMaxAge {
		p.refreshSnapshot(ctx)
		p.snapMu.RLock()
		snapshot = p.snapshot
		p.snapMu.RUnlock()
	}

	var near []gtfsrt.VehiclePosition
	for _, v := range snapshot {
		if geo.DistanceMeters(lat, lon, v.Latitude, v.Longitude) <= radiusMeters {
			near = append(near, v)
		}
	}
	return near
}
