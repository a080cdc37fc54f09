package autosave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stats are point-in-time counters.
type Stats struct {
	Requests  int64 `json:"requests"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
	Skipped   int64 `json:"skipped"`
	Coalesced int64 `json:"coalesced"`
}

// Controller keeps a remote settings store in sync with a form. It is safe
// for concurrent use; timer callbacks, event handlers and SaveNow may run on
// different goroutines.
type Controller struct {
	form         FormView
	transport    Transport
	clock        Clock
	status       StatusView
	classifier   Classifier
	log          *zap.Logger
	timings      Timings
	timeout      time.Duration
	snippetLimit int
	messages     Messages
	endpoint     string

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	started     bool
	closed      bool

	state     State
	diag      *Diagnostics
	lastSaved string
	inFlight  bool
	saveAgain bool

	// pending is the single debounce slot; pendingSeq invalidates callbacks
	// of timers that were replaced after they had already fired.
	pending    Timer
	pendingSeq uint64
	idle       Timer
	idleSeq    uint64

	stats Stats
}

// New binds a controller to form and transport. Call Start to take the
// baseline snapshot and begin observing edits.
func New(form FormView, transport Transport, options ...Option) (*Controller, error) {
	if form == nil {
		return nil, errors.New("autosave: form is required")
	}
	if transport == nil {
		return nil, errors.New("autosave: transport is required")
	}

	c := &Controller{
		form:         form,
		transport:    transport,
		clock:        SystemClock(),
		status:       nopStatus{},
		log:          zap.NewNop(),
		timeout:      DefaultRequestTimeout,
		snippetLimit: DefaultSnippetLimit,
		messages:     DefaultMessages(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(c)
	}
	if c.classifier == nil {
		c.classifier = NewPhraseClassifier()
	}
	c.timings = c.timings.withDefaults()
	c.messages = c.messages.merge(DefaultMessages())
	return c, nil
}

// Start records the current form state as the last known good snapshot and
// enters Idle. No request is sent. When the form implements EventSource the
// controller subscribes to its events.
func (c *Controller) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.New("autosave: context is required")
	}
	snap, err := c.form.Snapshot()
	if err != nil {
		return fmt.Errorf("autosave: baseline snapshot: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("autosave: controller already started")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.lastSaved = snap.Encode()
	c.started = true
	c.setStateLocked(StateIdle, nil)
	c.mu.Unlock()

	c.log.Debug("autosave: started",
		zap.Int("fields", len(snap)),
		zap.String("endpoint", c.resolveEndpoint()))

	source, ok := c.form.(EventSource)
	if !ok {
		return nil
	}
	cancel := source.Subscribe(c.HandleEvent)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		if cancel != nil {
			cancel()
		}
		return ErrClosed
	}
	c.unsubscribe = cancel
	return nil
}

// HandleEvent schedules a save for qualifying events. Change events and the
// settings-changed signal wait ChangeDelay; input events on free-text fields
// wait InputDelay. Every qualifying event restarts the debounce window.
func (c *Controller) HandleEvent(ev Event) {
	if !ev.qualifies() {
		return
	}
	delay := c.timings.ChangeDelay
	if ev.Kind == EventInput {
		delay = c.timings.InputDelay
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.closed {
		return
	}
	c.log.Debug("autosave: edit",
		zap.Stringer("kind", ev.Kind),
		zap.String("field", ev.Field),
		zap.Duration("delay", delay))
	c.scheduleLocked(delay)
}

// NotifySettingsChanged raises the application-level "settings changed"
// signal, used by components that alter the form without DOM events.
func (c *Controller) NotifySettingsChanged() {
	c.HandleEvent(Event{Kind: EventSettingsChanged})
}

// SaveNow cancels any pending debounce and runs one save on the calling
// goroutine. It returns the failure of that save; skipped and coalesced saves
// return nil.
func (c *Controller) SaveNow(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.stopPendingLocked()
	c.mu.Unlock()
	return c.save(ctx)
}

// State returns the current save state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Diagnostics returns a copy of the diagnostics captured by the last failed
// save, or nil outside the Error state.
func (c *Controller) Diagnostics() *Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.diag == nil {
		return nil
	}
	clone := *c.diag
	return &clone
}

// Stats returns the current counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close stops all timers, cancels an in-flight request and detaches from the
// form. It is safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopPendingLocked()
	c.stopIdleLocked()
	if c.cancel != nil {
		c.cancel()
	}
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	return nil
}

func (c *Controller) fire(seq uint64) {
	c.mu.Lock()
	if seq != c.pendingSeq || c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.mu.Unlock()

	_ = c.save(nil)
}

// save runs the save contract. caller is the context of a SaveNow call; timer
// driven saves pass nil and use the controller context.
func (c *Controller) save(caller context.Context) error {
	snap, snapErr := c.form.Snapshot()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	if c.inFlight {
		c.saveAgain = true
		c.stats.Coalesced++
		c.mu.Unlock()
		return nil
	}

	endpoint := c.resolveEndpoint()
	if snapErr != nil || endpoint == "" {
		err := ErrNoEndpoint
		if snapErr != nil {
			err = fmt.Errorf("autosave: snapshot: %w", snapErr)
		}
		c.stats.Failures++
		diag := c.diagnoseLocked(err, endpoint, nil)
		c.setStateLocked(StateError, diag)
		c.mu.Unlock()
		c.log.Debug("autosave: save failed", diagFields(diag)...)
		return err
	}

	body := snap.Encode()
	if body == c.lastSaved {
		c.stats.Skipped++
		if c.state == StateSaved && c.idle == nil {
			c.scheduleIdleLocked()
		}
		c.mu.Unlock()
		return nil
	}

	c.inFlight = true
	c.stats.Requests++
	c.stopIdleLocked()
	c.setStateLocked(StateSaving, nil)
	parent := c.ctx
	c.mu.Unlock()

	resp, err := c.post(parent, caller, endpoint, body)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if c.closed {
		return err
	}

	if err == nil {
		c.lastSaved = body
		c.stats.Successes++
		c.setStateLocked(StateSaved, nil)
		c.scheduleIdleLocked()
		c.log.Debug("autosave: saved", zap.String("endpoint", endpoint), zap.Int("bytes", len(body)))
	} else {
		c.stats.Failures++
		diag := c.diagnoseLocked(err, endpoint, resp)
		c.setStateLocked(StateError, diag)
		c.log.Debug("autosave: save failed", diagFields(diag)...)
	}

	if c.saveAgain {
		c.saveAgain = false
		c.scheduleLocked(c.timings.FollowUpDelay)
	}
	return err
}

func (c *Controller) post(parent, caller context.Context, endpoint, body string) (*Response, error) {
	base := parent
	if caller != nil {
		base = caller
	}
	ctx, cancel := context.WithTimeout(base, c.timeout)
	defer cancel()
	if caller != nil {
		stop := context.AfterFunc(parent, cancel)
		defer stop()
	}

	resp, err := c.transport.Post(ctx, endpoint, body)
	if err != nil {
		return resp, fmt.Errorf("autosave: post %s: %w", endpoint, err)
	}
	return resp, c.classifier.Classify(resp)
}

func (c *Controller) resolveEndpoint() string {
	if endpoint := strings.TrimSpace(c.endpoint); endpoint != "" {
		return endpoint
	}
	return strings.TrimSpace(c.form.Action())
}

func (c *Controller) setStateLocked(state State, diag *Diagnostics) {
	c.state = state
	c.diag = diag
	c.status.Update(state, c.messages.For(state), diag)
}

func (c *Controller) scheduleLocked(delay time.Duration) {
	c.stopPendingLocked()
	seq := c.pendingSeq
	c.pending = c.clock.AfterFunc(delay, func() { c.fire(seq) })
}

func (c *Controller) stopPendingLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.pendingSeq++
}

func (c *Controller) scheduleIdleLocked() {
	c.stopIdleLocked()
	seq := c.idleSeq
	c.idle = c.clock.AfterFunc(c.timings.IdleDelay, func() { c.revertIdle(seq) })
}

func (c *Controller) stopIdleLocked() {
	if c.idle != nil {
		c.idle.Stop()
		c.idle = nil
	}
	c.idleSeq++
}

// revertIdle moves Saved back to Idle unless a save started or a follow-up
// is waiting. A debounce that later turns into a skipped save re-arms the
// revert.
func (c *Controller) revertIdle(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.idleSeq || c.closed {
		return
	}
	c.idle = nil
	if c.state != StateSaved || c.inFlight || c.saveAgain || c.pending != nil {
		return
	}
	c.setStateLocked(StateIdle, nil)
}

func (c *Controller) diagnoseLocked(err error, endpoint string, resp *Response) *Diagnostics {
	diag := &Diagnostics{
		Time:     c.clock.Now(),
		Message:  err.Error(),
		Endpoint: endpoint,
	}
	if resp != nil {
		diag.Status = resp.Status
		diag.Redirected = resp.Redirected
		diag.ResponseURL = resp.URL
		diag.Snippet = Snippet(resp.Body, c.snippetLimit)
	}
	return diag
}

func diagFields(diag *Diagnostics) []zap.Field {
	return []zap.Field{
		zap.String("error", diag.Message),
		zap.String("endpoint", diag.Endpoint),
		zap.Int("status", diag.Status),
		zap.Bool("redirected", diag.Redirected),
		zap.String("response_url", diag.ResponseURL),
		zap.String("snippet", diag.Snippet),
	}
}
