package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/csutihu/stlaundry/internal/config"
	"github.com/csutihu/stlaundry/internal/registry"
	"github.com/csutihu/stlaundry/internal/smartthings"
	"github.com/csutihu/stlaundry/internal/status"
	"github.com/csutihu/stlaundry/internal/token"
	"github.com/csutihu/stlaundry/telemetry"
)

// StatusFetcher retrieves the raw status document for one appliance.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, deviceID, accessToken string) (*smartthings.StatusDocument, error)
}

// TokenSource supplies bearer tokens and drives the refresh lifecycle.
type TokenSource interface {
	Load() error
	AccessToken() (string, bool)
	Refresh(ctx context.Context) error
	Invalidate()
}

// Metrics is a snapshot of the engine counters.
type Metrics struct {
	CycleCount        uint64
	LastCycleDuration time.Duration
	LastCycleErrors   int
	LastCycleTime     time.Time
}

type appliance struct {
	kind     config.ApplianceKind
	deviceID string
	devices  applianceDevices
}

// Engine drives the adaptive poll loop: each heartbeat it decides whether a
// cycle is due, fetches and normalizes the status of every enabled appliance,
// and reconciles the result into the device registry.
type Engine struct {
	cfg       *config.Config
	logger    zerolog.Logger
	registry  registry.Registry
	tokens    TokenSource
	fetcher   StatusFetcher
	telemetry telemetry.Collector

	clock      *pollClock
	controller *heartbeatController
	appliances []appliance

	mu        sync.Mutex
	published map[string]registry.State
	metrics   Metrics
}

// New wires an engine from its collaborators. The registry is owned by the
// engine from this point on and closed together with it.
func New(cfg *config.Config, logger zerolog.Logger, reg registry.Registry, tokens TokenSource, fetcher StatusFetcher) *Engine {
	e := &Engine{
		cfg:        cfg,
		logger:     logger.With().Str("component", "engine").Logger(),
		registry:   reg,
		tokens:     tokens,
		fetcher:    fetcher,
		telemetry:  telemetry.Noop(),
		clock:      newPollClock(cfg.HeartbeatInterval(), cfg.OnInterval(), cfg.OffInterval()),
		controller: newHeartbeatController(cfg.HeartbeatInterval()),
		published:  make(map[string]registry.State),
	}
	if cfg.Appliances.Washer.Enabled() {
		e.appliances = append(e.appliances, appliance{
			kind:     config.KindWasher,
			deviceID: cfg.Appliances.Washer.DeviceID,
			devices:  devicesFor(config.KindWasher),
		})
	}
	if cfg.Appliances.Dryer.Enabled() {
		e.appliances = append(e.appliances, appliance{
			kind:     config.KindDryer,
			deviceID: cfg.Appliances.Dryer.DeviceID,
			devices:  devicesFor(config.KindDryer),
		})
	}
	return e
}

// SetTelemetry installs a metrics collector. Passing nil restores the no-op
// collector.
func (e *Engine) SetTelemetry(c telemetry.Collector) {
	if c == nil {
		c = telemetry.Noop()
	}
	e.telemetry = c
}

// Start prepares runtime state: it loads persisted tokens, creates registry
// records for every enabled appliance, and seeds the published-state cache
// from the registry so a restart does not republish unchanged values.
func (e *Engine) Start(ctx context.Context) error {
	if len(e.appliances) == 0 {
		e.logger.Error().Msg("no washer or dryer device id configured, engine stays idle")
		return nil
	}

	if err := e.tokens.Load(); err != nil {
		if errors.Is(err, token.ErrNotFound) {
			e.logger.Warn().Msg("token store not found, waiting for first refresh")
		} else {
			e.logger.Error().Err(err).Msg("load token store")
		}
	}

	for _, app := range e.appliances {
		for _, dev := range app.devices.all() {
			if err := e.registry.Ensure(ctx, dev); err != nil {
				return err
			}
			state, err := e.registry.Read(ctx, dev.ID)
			if err != nil {
				continue
			}
			e.published[dev.ID] = state
		}
		e.logger.Info().
			Str("appliance", string(app.kind)).
			Str("device_id", app.deviceID).
			Msg("appliance registered")
	}
	return nil
}

// Run executes heartbeats until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().
		Dur("heartbeat", e.cfg.HeartbeatInterval()).
		Dur("on_interval", e.cfg.OnInterval()).
		Dur("off_interval", e.cfg.OffInterval()).
		Msg("engine running")
	for {
		now, err := e.controller.Wait(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		e.Tick(ctx, now)
	}
}

// Tick processes one heartbeat: advance the poll clock and, when a cycle is
// due, poll every enabled appliance.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	if len(e.appliances) == 0 {
		return
	}
	active := e.anyPowerOn(ctx)
	if !e.clock.Advance(active) {
		return
	}
	mode := "off"
	if active {
		mode = "on"
	}
	e.telemetry.IncPollCycle(mode)
	e.logger.Debug().Bool("active", active).Msg("poll cycle due")
	e.pollCycle(ctx, now)
}

// PollOnce forces a single poll cycle regardless of the schedule and resets
// the accumulator so the next scheduled cycle starts from zero.
func (e *Engine) PollOnce(ctx context.Context) {
	if len(e.appliances) == 0 {
		return
	}
	e.clock.Reset()
	e.telemetry.IncPollCycle("forced")
	e.pollCycle(ctx, time.Now())
}

// Metrics returns a snapshot of the engine counters.
func (e *Engine) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// Close releases the registry backend.
func (e *Engine) Close() error {
	return e.registry.Close()
}

// anyPowerOn reports whether any enabled appliance is currently published as
// powered on. The answer comes from the registry, not from the last fetch, so
// externally updated records are honored too.
func (e *Engine) anyPowerOn(ctx context.Context) bool {
	for _, app := range e.appliances {
		state, err := e.registry.Read(ctx, app.devices.power.ID)
		if err != nil {
			continue
		}
		if state.Numeric == 1 {
			return true
		}
	}
	return false
}

func (e *Engine) pollCycle(ctx context.Context, now time.Time) {
	started := time.Now()
	failures := 0

	if _, ok := e.tokens.AccessToken(); !ok {
		if err := e.tokens.Refresh(ctx); err != nil {
			e.telemetry.IncTokenRefresh("failure")
			e.logger.Error().Err(err).Msg("token refresh failed, skipping poll cycle")
			e.recordCycle(now, time.Since(started), len(e.appliances))
			return
		}
		e.telemetry.IncTokenRefresh("success")
	}

	// One refresh per cycle at most. A 401 invalidates the cached token and
	// triggers a refresh, but the failed appliance is retried on the next
	// cycle instead of inside this one.
	refreshed := false
	for _, app := range e.appliances {
		if err := e.pollAppliance(ctx, app, &refreshed); err != nil {
			failures++
		}
	}

	e.recordCycle(now, time.Since(started), failures)
}

func (e *Engine) pollAppliance(ctx context.Context, app appliance, refreshed *bool) error {
	logger := e.logger.With().Str("appliance", string(app.kind)).Logger()

	accessToken, ok := e.tokens.AccessToken()
	if !ok {
		logger.Warn().Msg("no access token available, skipping fetch")
		e.telemetry.IncFetch(string(app.kind), "skipped")
		return errors.New("no access token")
	}

	doc, err := e.fetcher.FetchStatus(ctx, app.deviceID, accessToken)
	if err != nil {
		if errors.Is(err, smartthings.ErrUnauthorized) {
			e.telemetry.IncFetch(string(app.kind), "unauthorized")
			e.tokens.Invalidate()
			if !*refreshed {
				*refreshed = true
				if rerr := e.tokens.Refresh(ctx); rerr != nil {
					e.telemetry.IncTokenRefresh("failure")
					logger.Error().Err(rerr).Msg("token refresh after unauthorized response failed")
				} else {
					e.telemetry.IncTokenRefresh("success")
					logger.Info().Msg("token refreshed after unauthorized response")
				}
			}
			return err
		}
		e.telemetry.IncFetch(string(app.kind), "transient")
		logger.Error().Err(err).Msg("status fetch failed")
		return err
	}
	e.telemetry.IncFetch(string(app.kind), "ok")

	sig := status.Normalize(app.kind, doc)
	logger.Info().
		Str("power", string(sig.Power)).
		Str("cycle", string(sig.CycleState)).
		Int("remaining_min", sig.RemainingMinutes).
		Msg("appliance status")
	e.telemetry.SetRemainingMinutes(string(app.kind), sig.RemainingMinutes)

	return e.publish(ctx, app, sig, logger)
}

// publish applies the reconciled updates to the registry and advances the
// published-state cache only for writes that succeeded.
func (e *Engine) publish(ctx context.Context, app appliance, sig status.Signal, logger zerolog.Logger) error {
	e.mu.Lock()
	updates := reconcile(app.devices, app.kind, sig, e.published)
	e.mu.Unlock()

	var failed error
	for _, u := range updates {
		if err := e.registry.Update(ctx, u.Device.ID, u.Numeric, u.Text); err != nil {
			logger.Error().Err(err).Str("device", u.Device.ID).Msg("registry update failed")
			failed = err
			continue
		}
		logger.Debug().
			Str("device", u.Device.ID).
			Int("nvalue", u.Numeric).
			Str("svalue", u.Text).
			Msg("registry updated")
		e.mu.Lock()
		e.published[u.Device.ID] = registry.State{Numeric: u.Numeric, Text: u.Text}
		e.mu.Unlock()
	}
	return failed
}

func (e *Engine) recordCycle(now time.Time, elapsed time.Duration, failures int) {
	e.mu.Lock()
	e.metrics.CycleCount++
	e.metrics.LastCycleDuration = elapsed
	e.metrics.LastCycleErrors = failures
	e.metrics.LastCycleTime = now
	e.mu.Unlock()
}
