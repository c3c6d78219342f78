package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/Capricia-k/WoSport/internal/kv"
	"github.com/Capricia-k/WoSport/internal/location"
	"github.com/Capricia-k/WoSport/internal/metrics"
	"github.com/Capricia-k/WoSport/internal/shared/geo"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// GeoSampler is satisfied by *location.Sampler.
type GeoSampler interface {
	Authorize(ctx context.Context) error
	Open(ctx context.Context, onSample func(geo.Coordinate)) (location.Handle, error)
}

// Backend is satisfied by *remote.Client.
type Backend interface {
	CreateSession(ctx context.Context) (Session, error)
	AppendPosition(ctx context.Context, sessionID string, latitude, longitude float64) error
}

// Connectivity is satisfied by *connectivity.Monitor.
type Connectivity interface {
	Current() bool
	Subscribe(onChange func(bool)) func()
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }

func (t timeTicker) Stop() { t.t.Stop() }

func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type alwaysOnline struct{}

func (alwaysOnline) Current() bool { return true }

func (alwaysOnline) Subscribe(func(bool)) func() { return func() {} }

type Options struct {
	Store        kv.Store
	Sampler      GeoSampler
	Backend      Backend
	Connectivity Connectivity
	Calories     CalorieEstimator
	// NewTicker builds the elapsed-time ticker. Each tick is one second.
	NewTicker        func(time.Duration) Ticker
	FlushOnReconnect bool
	// OnUpdate receives a snapshot after every state change. It runs on the
	// goroutine that made the change and must not call back into the controller.
	OnUpdate func(Snapshot)
}

// Controller runs one tracking session at a time:
// idle -> starting -> tracking -> stopping -> idle.
type Controller struct {
	store            kv.Store
	sampler          GeoSampler
	backend          Backend
	conn             Connectivity
	buffer           *OfflineBuffer
	calories         CalorieEstimator
	newTicker        func(time.Duration) Ticker
	flushOnReconnect bool
	onUpdate         func(Snapshot)

	mu        sync.Mutex
	phase     Phase
	state     TrackState
	run       *run
	recovered *Recovered

	flushMu sync.Mutex
}

func NewController(opts Options) *Controller {
	c := &Controller{
		store:            opts.Store,
		sampler:          opts.Sampler,
		backend:          opts.Backend,
		conn:             opts.Connectivity,
		calories:         opts.Calories,
		newTicker:        opts.NewTicker,
		flushOnReconnect: opts.FlushOnReconnect,
		onUpdate:         opts.OnUpdate,
		phase:            PhaseIdle,
	}
	if c.store == nil {
		c.store = kv.NewMemory()
	}
	if c.conn == nil {
		c.conn = alwaysOnline{}
	}
	if c.newTicker == nil {
		c.newTicker = NewTimeTicker
	}
	if c.calories == (CalorieEstimator{}) {
		c.calories = DefaultCalorieEstimator()
	}
	c.buffer = NewOfflineBuffer(c.store)
	return c
}

func (c *Controller) Buffer() *OfflineBuffer {
	return c.buffer
}

type eventKind uint8

const (
	eventSample eventKind = iota
	eventConnectivity
)

type event struct {
	kind      eventKind
	coord     geo.Coordinate
	connected bool
}

// run is the lifetime of one tracking session. Only the loop goroutine
// touches acc. The loop owns state changes; the delivery worker owns every
// backend call, in sample order.
type run struct {
	session     Session
	ctx         context.Context
	cancel      context.CancelFunc
	events      chan event
	handle      location.Handle
	ticker      Ticker
	unsubscribe func()
	acc         geo.Accumulator
	outbox      *outbox

	stop       chan struct{}
	loopDone   chan struct{}
	workerDone chan struct{}
}

func (r *run) push(ev event) {
	select {
	case <-r.loopDone:
		return
	default:
	}
	select {
	case r.events <- ev:
	case <-r.loopDone:
	}
}

func (r *run) stopping() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// Start authorizes location, creates the remote session and begins sampling.
// Calling it while a session is tracking returns that session unchanged.
func (c *Controller) Start(ctx context.Context) (Session, error) {
	c.mu.Lock()
	switch c.phase {
	case PhaseTracking:
		session := c.run.session
		c.mu.Unlock()
		return session, nil
	case PhaseStarting, PhaseStopping:
		c.mu.Unlock()
		return Session{}, ErrBusy
	}
	c.phase = PhaseStarting
	c.mu.Unlock()
	c.publish()

	abort := func(reason string, err error) (Session, error) {
		c.mu.Lock()
		c.phase = PhaseIdle
		c.mu.Unlock()
		metrics.SessionStartFailures.WithLabelValues(reason).Inc()
		log.Warn().Err(err).Str("reason", reason).Msg("session start aborted")
		c.publish()
		return Session{}, err
	}

	if err := c.sampler.Authorize(ctx); err != nil {
		if !errors.Is(err, ErrPermissionDenied) {
			err = errors.Wrap(ErrPermissionDenied, err.Error())
		}
		return abort("permission", err)
	}

	session, err := c.backend.CreateSession(ctx)
	if err != nil {
		return abort("create", errors.Wrap(ErrSessionCreateFailed, err.Error()))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		session:    session,
		ctx:        runCtx,
		cancel:     cancel,
		events:     make(chan event, 64),
		outbox:     newOutbox(),
		stop:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		workerDone: make(chan struct{}),
	}

	handle, err := c.sampler.Open(ctx, func(coord geo.Coordinate) {
		r.push(event{kind: eventSample, coord: coord})
	})
	if err != nil {
		cancel()
		log.Warn().Str("session_id", session.ID).Msg("remote session created but sampler failed to open")
		return abort("sampler", err)
	}
	r.handle = handle
	r.ticker = c.newTicker(time.Second)
	r.unsubscribe = c.conn.Subscribe(func(connected bool) {
		r.push(event{kind: eventConnectivity, connected: connected})
	})

	c.mu.Lock()
	c.state = TrackState{SafetyModeEnabled: c.state.SafetyModeEnabled}
	c.run = r
	c.phase = PhaseTracking
	c.recovered = nil
	fresh := c.state.clone()
	c.mu.Unlock()

	persistCtx := context.WithoutCancel(ctx)
	if err := saveSession(persistCtx, c.store, session); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("failed to persist active session")
	}
	if err := saveTrackState(persistCtx, c.store, fresh, changedCounter); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("failed to reset persisted counters")
	}

	go c.loop(r)
	go c.deliverLoop(r)

	metrics.SessionsStarted.Inc()
	log.Info().Str("session_id", session.ID).Time("started_at", session.StartedAt).Msg("tracking started")
	c.publish()
	return session, nil
}

// Stop ends the current session. When it returns the sampler and ticker are
// closed and no further state change happens. Samples the sampler already
// handed over are recorded, and those not yet delivered are queued offline.
// It is a no-op when idle.
func (c *Controller) Stop(ctx context.Context) error {
	_, err := c.StopSession(ctx)
	return err
}

// StopSession is Stop reporting whether this call ended a session.
func (c *Controller) StopSession(ctx context.Context) (bool, error) {
	c.mu.Lock()
	switch c.phase {
	case PhaseIdle:
		c.mu.Unlock()
		return false, nil
	case PhaseStarting, PhaseStopping:
		c.mu.Unlock()
		return false, ErrBusy
	}
	c.phase = PhaseStopping
	r := c.run
	c.mu.Unlock()
	c.publish()

	r.handle.Close()
	r.ticker.Stop()
	r.unsubscribe()
	close(r.stop)
	<-r.loopDone

	// pending deliveries are queued offline instead of waiting on the backend
	r.cancel()
	r.outbox.close()
	<-r.workerDone

	err := clearTrackState(ctx, c.store)
	if err != nil {
		log.Error().Err(err).Str("session_id", r.session.ID).Msg("failed to clear session keys")
	}

	c.mu.Lock()
	final := c.state.clone()
	c.state = TrackState{SafetyModeEnabled: c.state.SafetyModeEnabled}
	c.run = nil
	c.phase = PhaseIdle
	c.mu.Unlock()

	metrics.SessionsStopped.Inc()
	log.Info().
		Str("session_id", r.session.ID).
		Float64("distance_km", final.DistanceKm).
		Int64("elapsed_seconds", final.ElapsedSeconds).
		Float64("calories", final.Calories).
		Int("positions", len(final.Positions)).
		Msg("tracking stopped")
	c.publish()
	return true, err
}

// SetSafetyMode toggles safety mode in any phase except stopping.
func (c *Controller) SetSafetyMode(ctx context.Context, enabled bool) error {
	var err error
	c.update(ctx, func(s *TrackState) change {
		if c.phase == PhaseStopping {
			err = ErrStopping
			return 0
		}
		s.SafetyModeEnabled = enabled
		return changedSafety
	})
	return err
}

// Restore loads persisted counters at cold start. Counters left behind by a
// session that was never stopped are reported as abandoned.
func (c *Controller) Restore(ctx context.Context) (Recovered, error) {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return Recovered{}, ErrNotIdle
	}
	c.mu.Unlock()

	state, err := LoadTrackState(ctx, c.store, c.calories)
	if err != nil {
		return Recovered{}, err
	}
	session, err := loadSession(ctx, c.store)
	if err != nil {
		return Recovered{}, err
	}
	rec := Recovered{
		State:     state,
		Session:   session,
		Abandoned: session != nil || len(state.Positions) > 0 || state.ElapsedSeconds > 0,
	}

	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return Recovered{}, ErrNotIdle
	}
	c.state = state.clone()
	c.recovered = &rec
	c.mu.Unlock()

	if rec.Abandoned {
		ev := log.Warn().Int("positions", len(state.Positions)).Int64("elapsed_seconds", state.ElapsedSeconds)
		if session != nil {
			ev = ev.Str("session_id", session.ID)
		}
		ev.Msg("found counters of an interrupted session")
	}
	c.publish()
	return rec, nil
}

// Recovered returns what Restore found, until the next Start.
func (c *Controller) Recovered() (Recovered, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recovered == nil {
		return Recovered{}, false
	}
	rec := *c.recovered
	rec.State = rec.State.clone()
	return rec, true
}

// DiscardRecovered drops counters left by an interrupted session. Safety
// mode and offline queues are kept.
func (c *Controller) DiscardRecovered(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return ErrNotIdle
	}
	c.mu.Unlock()

	if err := clearTrackState(ctx, c.store); err != nil {
		return err
	}

	c.mu.Lock()
	if c.phase == PhaseIdle {
		c.state = TrackState{SafetyModeEnabled: c.state.SafetyModeEnabled}
	}
	c.recovered = nil
	c.mu.Unlock()
	c.publish()
	return nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:      c.phase,
		Online:     c.conn.Current(),
		Elapsed:    FormatElapsed(c.state.ElapsedSeconds),
		TrackState: c.state.clone(),
	}
	if c.run != nil {
		session := c.run.session
		snap.Session = &session
	}
	return snap
}

func (c *Controller) publish() {
	if c.onUpdate == nil {
		return
	}
	c.onUpdate(c.Snapshot())
}

// update applies mutate under the lock, then persists the keys it reports.
func (c *Controller) update(ctx context.Context, mutate func(*TrackState) change) {
	c.mu.Lock()
	ch := mutate(&c.state)
	state := c.state.clone()
	c.mu.Unlock()
	if ch == 0 {
		return
	}
	if err := saveTrackState(ctx, c.store, state, ch); err != nil {
		log.Error().Err(err).Msg("failed to persist track state")
	}
	c.publish()
}

func (c *Controller) loop(r *run) {
	defer close(r.loopDone)
	persistCtx := context.WithoutCancel(r.ctx)
	for {
		select {
		case <-r.stop:
			c.drainEvents(r, persistCtx)
			return
		case <-r.ticker.C():
			if r.stopping() {
				continue
			}
			c.update(persistCtx, func(s *TrackState) change {
				s.ElapsedSeconds++
				return changedTime
			})
		case ev := <-r.events:
			switch ev.kind {
			case eventSample:
				c.handleSample(r, persistCtx, ev.coord)
			case eventConnectivity:
				c.handleConnectivity(r, ev.connected)
			}
		}
	}
}

// drainEvents records samples still queued when the session stops. The
// sampler is already closed, so the channel only shrinks.
func (c *Controller) drainEvents(r *run, persistCtx context.Context) {
	for {
		select {
		case ev := <-r.events:
			if ev.kind == eventSample {
				c.handleSample(r, persistCtx, ev.coord)
			}
		default:
			return
		}
	}
}

func (c *Controller) handleSample(r *run, persistCtx context.Context, coord geo.Coordinate) {
	inc := r.acc.Add(coord)
	c.update(persistCtx, func(s *TrackState) change {
		s.Positions = append(s.Positions, coord)
		s.DistanceKm += inc
		s.Calories = c.calories.Calories(s.DistanceKm)
		return changedSample
	})
	r.outbox.put(job{coord: coord})
}

func (c *Controller) deliverLoop(r *run) {
	defer close(r.workerDone)
	persistCtx := context.WithoutCancel(r.ctx)
	for {
		j, ok := r.outbox.next()
		if !ok {
			return
		}
		if j.flush {
			c.flushActive(r)
			continue
		}
		c.deliver(r, persistCtx, j.coord)
	}
}

// deliver sends a sample to the backend, or queues it when offline, when
// the call fails or when the session already stopped. A sample is never
// dropped silently.
func (c *Controller) deliver(r *run, persistCtx context.Context, coord geo.Coordinate) {
	if r.ctx.Err() != nil {
		c.bufferSample(persistCtx, r.session.ID, coord, errors.New("session stopped"))
		return
	}
	if !c.conn.Current() {
		c.bufferSample(persistCtx, r.session.ID, coord, errors.New("offline"))
		return
	}
	start := time.Now()
	err := c.backend.AppendPosition(r.ctx, r.session.ID, coord.Latitude, coord.Longitude)
	metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.bufferSample(persistCtx, r.session.ID, coord, err)
		return
	}
	metrics.Samples.WithLabelValues(metrics.OutcomeDelivered).Inc()
}

func (c *Controller) bufferSample(ctx context.Context, sessionID string, coord geo.Coordinate, cause error) {
	log.Warn().
		Err(errors.Wrap(ErrSampleDeliveryFailed, cause.Error())).
		Str("session_id", sessionID).
		Msg("buffering sample offline")
	if err := c.buffer.Append(ctx, sessionID, coord); err != nil {
		metrics.Samples.WithLabelValues(metrics.OutcomeLost).Inc()
		log.Error().Err(err).
			Str("session_id", sessionID).
			Float64("latitude", coord.Latitude).
			Float64("longitude", coord.Longitude).
			Msg("failed to buffer sample")
		return
	}
	metrics.Samples.WithLabelValues(metrics.OutcomeBuffered).Inc()
}

func (c *Controller) handleConnectivity(r *run, connected bool) {
	log.Info().Bool("connected", connected).Str("session_id", r.session.ID).Msg("connectivity changed")
	c.publish()
	if !connected || !c.flushOnReconnect {
		return
	}
	r.outbox.put(job{flush: true})
}

func (c *Controller) flushActive(r *run) {
	if r.ctx.Err() != nil {
		return
	}
	res, err := c.Flush(r.ctx, r.session.ID)
	if err != nil {
		log.Warn().Err(err).Int("sent", res.Sent).Int("remaining", res.Remaining).Msg("flush on reconnect stopped early")
	}
}

// Flush replays a session's offline queue in order. Delivered entries are
// removed; on the first failure the rest stay queued.
func (c *Controller) Flush(ctx context.Context, sessionID string) (FlushResult, error) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	res := FlushResult{SessionID: sessionID}
	entries, err := c.buffer.Entries(ctx, sessionID)
	if err != nil {
		return res, err
	}

	var sendErr error
	sent := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := c.backend.AppendPosition(ctx, sessionID, e.Latitude, e.Longitude); err != nil {
			sendErr = errors.Wrap(ErrSampleDeliveryFailed, err.Error())
			break
		}
		sent = append(sent, e.ID)
		res.Sent++
	}

	if err := c.buffer.remove(context.WithoutCancel(ctx), sessionID, sent); err != nil {
		return res, err
	}
	res.Remaining = len(entries) - res.Sent
	metrics.SamplesFlushed.Add(float64(res.Sent))
	if res.Sent > 0 {
		log.Info().Str("session_id", sessionID).Int("sent", res.Sent).Int("remaining", res.Remaining).Msg("flushed offline samples")
	}
	return res, sendErr
}
