package autosave

import (
	"time"

	"go.uber.org/zap"
)

// Timings groups the controller delays.
type Timings struct {
	// ChangeDelay debounces change events and the settings-changed signal.
	ChangeDelay time.Duration `yaml:"change_delay"`
	// InputDelay debounces keystrokes in free-text fields.
	InputDelay time.Duration `yaml:"input_delay"`
	// FollowUpDelay is the wait before a coalesced save after a request ends.
	FollowUpDelay time.Duration `yaml:"follow_up_delay"`
	// IdleDelay is how long Saved stays visible before reverting to Idle.
	IdleDelay time.Duration `yaml:"idle_delay"`
}

// DefaultTimings returns the stock delays.
func DefaultTimings() Timings {
	return Timings{
		ChangeDelay:   250 * time.Millisecond,
		InputDelay:    700 * time.Millisecond,
		FollowUpDelay: 250 * time.Millisecond,
		IdleDelay:     1500 * time.Millisecond,
	}
}

func (t Timings) withDefaults() Timings {
	def := DefaultTimings()
	if t.ChangeDelay <= 0 {
		t.ChangeDelay = def.ChangeDelay
	}
	if t.InputDelay <= 0 {
		t.InputDelay = def.InputDelay
	}
	if t.FollowUpDelay <= 0 {
		t.FollowUpDelay = def.FollowUpDelay
	}
	if t.IdleDelay <= 0 {
		t.IdleDelay = def.IdleDelay
	}
	return t
}

// DefaultRequestTimeout bounds a single save request.
const DefaultRequestTimeout = 20 * time.Second

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the timer facility.
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithStatusView sets the status surface.
func WithStatusView(view StatusView) Option {
	return func(c *Controller) {
		if view != nil {
			c.status = view
		}
	}
}

// WithClassifier replaces the default PhraseClassifier.
func WithClassifier(classifier Classifier) Option {
	return func(c *Controller) {
		if classifier != nil {
			c.classifier = classifier
		}
	}
}

// WithLogger sets the logger used for failures and transitions.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.log = logger
		}
	}
}

// WithTimings overrides the debounce and revert delays. Zero fields keep
// their defaults.
func WithTimings(timings Timings) Option {
	return func(c *Controller) {
		c.timings = timings
	}
}

// WithRequestTimeout bounds each save request. Non-positive values keep
// DefaultRequestTimeout.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithSnippetLimit caps the diagnostics response snippet.
func WithSnippetLimit(limit int) Option {
	return func(c *Controller) {
		if limit > 0 {
			c.snippetLimit = limit
		}
	}
}

// WithMessages overrides status texts. Empty entries keep their defaults.
func WithMessages(messages Messages) Option {
	return func(c *Controller) {
		c.messages = messages
	}
}

// WithEndpoint overrides the submission endpoint reported by the form.
func WithEndpoint(endpoint string) Option {
	return func(c *Controller) {
		c.endpoint = endpoint
	}
}
