package autosave_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/elodin/bridge/pkg/autosave"
	"github.com/elodin/bridge/pkg/testsupport"
)

const endpoint = "https://example.test/wp-admin/options.php"

type harness struct {
	ctrl      *autosave.Controller
	form      *testsupport.Form
	transport *testsupport.Transport
	clock     *testsupport.Clock
	status    *testsupport.StatusRecorder
}

func newHarness(t *testing.T, options ...autosave.Option) *harness {
	t.Helper()

	h := &harness{
		form:      testsupport.NewForm(endpoint, "foo", "bar"),
		transport: &testsupport.Transport{},
		clock:     testsupport.NewClock(),
		status:    &testsupport.StatusRecorder{},
	}

	opts := []autosave.Option{
		autosave.WithClock(h.clock),
		autosave.WithStatusView(h.status),
		autosave.WithLogger(zaptest.NewLogger(t)),
	}
	opts = append(opts, options...)

	ctrl, err := autosave.New(h.form, h.transport, opts...)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	if err := ctrl.Start(testsupport.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })
	h.ctrl = ctrl
	return h
}

func (h *harness) assertStates(t *testing.T, want ...autosave.State) {
	t.Helper()
	if diff := cmp.Diff(want, h.status.States()); diff != "" {
		t.Fatalf("state sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestStart_TakesBaselineWithoutNetwork(t *testing.T) {
	h := newHarness(t)

	h.assertStates(t, autosave.StateIdle)
	if got := len(h.transport.Requests()); got != 0 {
		t.Fatalf("expected no requests on start, got %d", got)
	}
	if h.form.Subscribers() != 1 {
		t.Fatalf("expected controller to subscribe to the form")
	}
	if h.ctrl.State() != autosave.StateIdle {
		t.Fatalf("expected idle, got %s", h.ctrl.State())
	}
}

func TestHappyPath(t *testing.T) {
	h := newHarness(t)

	h.form.Set("foo", "baz")
	h.clock.Advance(249 * time.Millisecond)
	if got := len(h.transport.Requests()); got != 0 {
		t.Fatalf("save fired before debounce elapsed: %d requests", got)
	}

	h.clock.Advance(time.Millisecond)
	want := []testsupport.Request{{Endpoint: endpoint, Body: "foo=baz"}}
	if diff := cmp.Diff(want, h.transport.Requests()); diff != "" {
		t.Fatalf("requests mismatch (-want +got):\n%s", diff)
	}
	h.assertStates(t, autosave.StateIdle, autosave.StateSaving, autosave.StateSaved)

	h.clock.Advance(1499 * time.Millisecond)
	if h.ctrl.State() != autosave.StateSaved {
		t.Fatalf("reverted to idle too early: %s", h.ctrl.State())
	}
	h.clock.Advance(time.Millisecond)
	h.assertStates(t, autosave.StateIdle, autosave.StateSaving, autosave.StateSaved, autosave.StateIdle)
}

func TestStatusMessages(t *testing.T) {
	h := newHarness(t, autosave.WithMessages(autosave.Messages{Saved: "All changes saved"}))

	h.form.Set("foo", "baz")
	h.clock.Advance(250 * time.Millisecond)

	updates := h.status.Updates()
	got := make([]string, 0, len(updates))
	for _, u := range updates {
		got = append(got, u.Message)
	}
	want := []string{"", "Saving…", "All changes saved"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestDebounceCollapsesBurst(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 10; i++ {
		h.form.Set("foo", fmt.Sprintf("v%d", i))
		h.clock.Advance(100 * time.Millisecond)
	}
	if got := len(h.transport.Requests()); got != 0 {
		t.Fatalf("expected debounce to hold while edits keep arriving, got %d requests", got)
	}

	h.clock.Advance(150 * time.Millisecond)
	if diff := cmp.Diff([]string{"foo=v9"}, h.transport.Bodies()); diff != "" {
		t.Fatalf("bodies mismatch (-want +got):\n%s", diff)
	}
}

func TestInputEventsUseLongerDebounce(t *testing.T) {
	h := newHarness(t)

	h.form.Type("foo", "typing")
	h.clock.Advance(250 * time.Millisecond)
	if got := len(h.transport.Requests()); got != 0 {
		t.Fatalf("input event saved after change delay: %d requests", got)
	}
	h.clock.Advance(450 * time.Millisecond)
	if diff := cmp.Diff([]string{"foo=typing"}, h.transport.Bodies()); diff != "" {
		t.Fatalf("bodies mismatch (-want +got):\n%s", diff)
	}
}

func TestChangeEventReplacesPendingInputTimer(t *testing.T) {
	h := newHarness(t)

	h.form.Type("foo", "typed")
	h.clock.Advance(100 * time.Millisecond)
	h.form.Set("foo", "committed")
	h.clock.Advance(250 * time.Millisecond)

	if diff := cmp.Diff([]string{"foo=committed"}, h.transport.Bodies()); diff != "" {
		t.Fatalf("bodies mismatch (-want +got):\n%s", diff)
	}
	h.clock.Advance(time.Second)
	if got := len(h.transport.Requests()); got != 1 {
		t.Fatalf("replaced input timer still fired: %d requests", got)
	}
}

func TestNonQualifyingEventsAreIgnored(t *testing.T) {
	h := newHarness(t)

	events := []autosave.Event{
		{Kind: autosave.EventChange, Field: "", FieldType: "text"},
		{Kind: autosave.EventChange, Field: "foo", FieldType: "text", Disabled: true},
		{Kind: autosave.EventChange, Field: "submit", FieldType: "submit"},
		{Kind: autosave.EventChange, Field: "go", FieldType: "button"},
		{Kind: autosave.EventInput, Field: "agree", FieldType: "checkbox"},
		{Kind: autosave.EventInput, Field: "color", FieldType: "radio"},
		{Kind: autosave.EventInput, Field: "_wpnonce", FieldType: "hidden"},
	}
	for _, ev := range events {
		h.ctrl.HandleEvent(ev)
	}
	if got := h.clock.Pending(); got != 0 {
		t.Fatalf("expected no scheduled saves, got %d timers", got)
	}
}

func TestSettingsChangedSignal(t *testing.T) {
	h := newHarness(t)

	h.form.Put("items[0]", "alpha")
	h.ctrl.NotifySettingsChanged()
	h.clock.Advance(250 * time.Millisecond)

	if diff := cmp.Diff([]string{"foo=bar&items%5B0%5D=alpha"}, h.transport.Bodies()); diff != "" {
		t.Fatalf("bodies mismatch (-want +got):\n%s", diff)
	}
}

func TestNoOpSuppression(t *testing.T) {
	h := newHarness(t)

	h.form.Set("foo", "bar")
	h.clock.Advance(250 * time.Millisecond)
	if got := len(h.transport.Requests()); got != 0 {
		t.Fatalf("unchanged snapshot hit the network: %d requests", got)
	}
	h.assertStates(t, autosave.StateIdle)

	h.form.Set("foo", "baz")
	h.clock.Advance(250 * time.Millisecond)
	h.form.Set("foo", "baz")
	h.clock.Advance(250 * time.Millisecond)

	if diff := cmp.Diff([]string{"foo=baz"}, h.transport.Bodies()); diff != "" {
		t.Fatalf("bodies mismatch (-want +got):\n%s", diff)
	}
	if got := h.ctrl.Stats().Skipped; got != 2 {
		t.Fatalf("expected 2 skipped saves, got %d", got)
	}
}

func TestSingleFlightCoalescesEditsDuringRequest(t *testing.T) {
	h := newHarness(t)

	calls := 0
	h.transport.During = func(testsupport.Request) {
		calls++
		if calls != 1 {
			return
		}
		if h.ctrl.State() != autosave.StateSaving {
			t.Errorf("expected saving while in flight, got %s", h.ctrl.State())
		}
		for i := 0; i < 5; i++ {
			h.form.Set("foo", fmt.Sprintf("v%d", i))
			h.clock.Advance(250 * time.Millisecond)
		}
	}

	h.form.Set("foo", "first")
	h.clock.Advance(250 * time.Millisecond)

	if got := len(h.transport.Requests()); got != 1 {
		t.Fatalf("expected a single request while in flight, got %d", got)
	}
	if got := h.ctrl.Stats().Coalesced; got != 5 {
		t.Fatalf("expected 5 coalesced saves, got %d", got)
	}

	h.clock.Advance(250 * time.Millisecond)
	want := []string{"foo=first", "foo=v4"}
	if diff := cmp.Diff(want, h.transport.Bodies()); diff != "" {
		t.Fatalf("bodies mismatch (-want +got):\n%s", diff)
	}

	h.clock.Advance(5 * time.Second)
	if got := len(h.transport.Requests()); got != 2 {
		t.Fatalf("expected exactly one follow-up, got %d requests", got)
	}
	h.assertStates(t,
		autosave.StateIdle,
		autosave.StateSaving, autosave.StateSaved,
		autosave.StateSaving, autosave.StateSaved,
		autosave.StateIdle,
	)
}

func TestFollowUpRunsAfterFailureToo(t *testing.T) {
	h := newHarness(t)

	calls := 0
	h.transport.Respond = func(req testsupport.Request) (*autosave.Response, error) {
		if calls == 1 {
			return testsupport.Reply(502, req.Endpoint, "Bad Gateway"), nil
		}
		return testsupport.OK(req.Endpoint, "ok"), nil
	}
	h.transport.During = func(testsupport.Request) {
		calls++
		if calls == 1 {
			h.form.Set("foo", "second")
			h.clock.Advance(250 * time.Millisecond)
		}
	}

	h.form.Set("foo", "first")
	h.clock.Advance(250 * time.Millisecond)
	if h.ctrl.State() != autosave.StateError {
		t.Fatalf("expected error after 502, got %s", h.ctrl.State())
	}

	h.clock.Advance(250 * time.Millisecond)
	if diff := cmp.Diff([]string{"foo=first", "foo=second"}, h.transport.Bodies()); diff != "" {
		t.Fatalf("bodies mismatch (-want +got):\n%s", diff)
	}
	if h.ctrl.State() != autosave.StateSaved {
		t.Fatalf("expected saved after follow-up, got %s", h.ctrl.State())
	}
}

func TestEditDuringRequestRevertingToSavedValueStillReconciles(t *testing.T) {
	h := newHarness(t)

	first := true
	h.transport.During = func(testsupport.Request) {
		if !first {
			return
		}
		first = false
		h.form.Set("foo", "bar")
		h.clock.Advance(250 * time.Millisecond)
	}

	h.form.Set("foo", "baz")
	h.clock.Advance(250 * time.Millisecond)
	h.clock.Advance(250 * time.Millisecond)

	if diff := cmp.Diff([]string{"foo=baz", "foo=bar"}, h.transport.Bodies()); diff != "" {
		t.Fatalf("bodies mismatch (-want +got):\n%s", diff)
	}
}

func TestSavedToSavingBeforeIdleTimeout(t *testing.T) {
	h := newHarness(t)

	h.form.Set("foo", "one")
	h.clock.Advance(250 * time.Millisecond)
	h.clock.Advance(time.Second)

	h.form.Set("foo", "two")
	h.clock.Advance(250 * time.Millisecond)
	h.assertStates(t,
		autosave.StateIdle,
		autosave.StateSaving, autosave.StateSaved,
		autosave.StateSaving, autosave.StateSaved,
	)

	// The first revert was cancelled; only the second save's timer counts.
	h.clock.Advance(1499 * time.Millisecond)
	if h.ctrl.State() != autosave.StateSaved {
		t.Fatalf("expected saved, got %s", h.ctrl.State())
	}
	h.clock.Advance(time.Millisecond)
	if h.ctrl.State() != autosave.StateIdle {
		t.Fatalf("expected idle, got %s", h.ctrl.State())
	}
}

func TestIdleRevertWaitsForPendingDebounce(t *testing.T) {
	h := newHarness(t)

	h.form.Set("foo", "one")
	h.clock.Advance(250 * time.Millisecond)
	h.clock.Advance(1400 * time.Millisecond)

	// A no-op edit lands right before the revert deadline.
	h.form.Set("foo", "one")
	h.clock.Advance(100 * time.Millisecond)
	if h.ctrl.State() != autosave.StateSaved {
		t.Fatalf("expected saved while a save is pending, got %s", h.ctrl.State())
	}

	h.clock.Advance(150 * time.Millisecond)
	h.clock.Advance(1500 * time.Millisecond)
	if h.ctrl.State() != autosave.StateIdle {
		t.Fatalf("expected idle once the skipped save re-armed the revert, got %s", h.ctrl.State())
	}
	if got := len(h.transport.Requests()); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}
}

func TestRejectedSave(t *testing.T) {
	h := newHarness(t)
	rejection := `<html><head><title>WordPress</title><style>body{color:red}</style></head>` +
		`<body id="error-page"><div class="wp-die-message">Sorry, you are not allowed to manage options for this site.</div></body></html>`
	h.transport.Respond = func(req testsupport.Request) (*autosave.Response, error) {
		return testsupport.OK(req.Endpoint, rejection), nil
	}

	h.form.Set("foo", "baz")
	h.clock.Advance(250 * time.Millisecond)
	h.assertStates(t, autosave.StateIdle, autosave.StateSaving, autosave.StateError)

	diag := h.ctrl.Diagnostics()
	if diag == nil {
		t.Fatalf("expected diagnostics in error state")
	}
	if diag.Status != 200 {
		t.Fatalf("expected status 200 in diagnostics, got %d", diag.Status)
	}
	if diag.Endpoint != endpoint {
		t.Fatalf("expected endpoint %q, got %q", endpoint, diag.Endpoint)
	}
	if want := "Sorry, you are not allowed to manage options for this site."; diag.Snippet != want {
		t.Fatalf("snippet = %q, want %q", diag.Snippet, want)
	}
	if !diag.Time.Equal(h.clock.Now()) {
		t.Fatalf("expected diagnostics timestamp from clock")
	}
	if last, _ := h.status.Last(); last.Diag == nil || last.Message != autosave.DefaultMessages().Error {
		t.Fatalf("status view did not receive error diagnostics: %+v", last)
	}

	h.clock.Advance(time.Minute)
	if h.ctrl.State() != autosave.StateError {
		t.Fatalf("error state must be sticky, got %s", h.ctrl.State())
	}
	if got := len(h.transport.Requests()); got != 1 {
		t.Fatalf("failed save must not retry on its own, got %d requests", got)
	}
}

func TestFailureIsLoggedAtDebugOnly(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := newHarness(t, autosave.WithLogger(zap.New(core)))
	h.transport.Respond = func(req testsupport.Request) (*autosave.Response, error) {
		return testsupport.Reply(500, req.Endpoint, "<p>fatal error</p>"), nil
	}

	h.form.Set("foo", "baz")
	h.clock.Advance(250 * time.Millisecond)
	h.assertStates(t, autosave.StateIdle, autosave.StateSaving, autosave.StateError)

	failures := logs.FilterMessage("autosave: save failed").All()
	if len(failures) != 1 {
		t.Fatalf("expected one failure entry, got %d", len(failures))
	}
	if failures[0].Level != zapcore.DebugLevel {
		t.Fatalf("failure logged at %s, the status views report it", failures[0].Level)
	}
	if got := logs.FilterLevelExact(zapcore.WarnLevel).Len(); got != 0 {
		t.Fatalf("expected no warn entries from the controller, got %d", got)
	}
}

func TestRetryAfterErrorClearsDiagnostics(t *testing.T) {
	h := newHarness(t)
	fail := true
	h.transport.Respond = func(req testsupport.Request) (*autosave.Response, error) {
		if fail {
			return testsupport.OK(req.Endpoint, "<p>Are you sure you want to do this?</p>"), nil
		}
		return testsupport.OK(req.Endpoint, "<p>Settings saved.</p>"), nil
	}

	h.form.Set("foo", "baz")
	h.clock.Advance(250 * time.Millisecond)
	if h.ctrl.State() != autosave.StateError {
		t.Fatalf("expected error, got %s", h.ctrl.State())
	}

	fail = false
	h.form.Set("foo", "qux")
	h.clock.Advance(250 * time.Millisecond)
	h.assertStates(t,
		autosave.StateIdle,
		autosave.StateSaving, autosave.StateError,
		autosave.StateSaving, autosave.StateSaved,
	)
	if h.ctrl.Diagnostics() != nil {
		t.Fatalf("diagnostics must clear on success")
	}
	for _, u := range h.status.Updates()[3:] {
		if u.Diag != nil {
			t.Fatalf("non-error update carried diagnostics: %+v", u)
		}
	}
}

func TestSaveNowErrors(t *testing.T) {
	tests := []struct {
		name    string
		respond func(req testsupport.Request) (*autosave.Response, error)
		check   func(t *testing.T, err error, diag *autosave.Diagnostics)
	}{
		{
			name: "soft rejection",
			respond: func(req testsupport.Request) (*autosave.Response, error) {
				return testsupport.OK(req.Endpoint, "Are you sure you want to do this?"), nil
			},
			check: func(t *testing.T, err error, diag *autosave.Diagnostics) {
				if !errors.Is(err, autosave.ErrRejected) {
					t.Fatalf("expected ErrRejected, got %v", err)
				}
				var rej *autosave.RejectionError
				if !errors.As(err, &rej) || rej.Phrase != "Are you sure you want to do this?" {
					t.Fatalf("expected rejection phrase, got %v", err)
				}
			},
		},
		{
			name: "http error",
			respond: func(req testsupport.Request) (*autosave.Response, error) {
				resp := testsupport.Reply(403, req.Endpoint+"?redirected=1", "Forbidden")
				resp.Redirected = true
				return resp, nil
			},
			check: func(t *testing.T, err error, diag *autosave.Diagnostics) {
				var statusErr *autosave.StatusError
				if !errors.As(err, &statusErr) || statusErr.Status != 403 {
					t.Fatalf("expected StatusError 403, got %v", err)
				}
				if diag.Status != 403 || !diag.Redirected || diag.ResponseURL != endpoint+"?redirected=1" {
					t.Fatalf("unexpected diagnostics: %+v", diag)
				}
			},
		},
		{
			name: "transport error",
			respond: func(testsupport.Request) (*autosave.Response, error) {
				return nil, errors.New("connection refused")
			},
			check: func(t *testing.T, err error, diag *autosave.Diagnostics) {
				if err == nil || !strings.Contains(diag.Message, "connection refused") {
					t.Fatalf("expected transport failure in diagnostics, got %v / %+v", err, diag)
				}
				if diag.Status != 0 || diag.Snippet != "" {
					t.Fatalf("transport failure must not report a response: %+v", diag)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.transport.Respond = tt.respond

			h.form.Put("foo", "baz")
			err := h.ctrl.SaveNow(testsupport.Context())
			if err == nil {
				t.Fatalf("expected error")
			}
			if h.ctrl.State() != autosave.StateError {
				t.Fatalf("expected error state, got %s", h.ctrl.State())
			}
			tt.check(t, err, h.ctrl.Diagnostics())
		})
	}
}

func TestSaveNowCancelsPendingDebounce(t *testing.T) {
	h := newHarness(t)

	h.form.Set("foo", "baz")
	if err := h.ctrl.SaveNow(testsupport.Context()); err != nil {
		t.Fatalf("save now: %v", err)
	}
	h.clock.Advance(time.Second)
	if got := len(h.transport.Requests()); got != 1 {
		t.Fatalf("expected debounce to be cancelled, got %d requests", got)
	}
}

func TestRequestTimeout(t *testing.T) {
	form := testsupport.NewForm(endpoint, "foo", "bar")
	hang := autosave.TransportFunc(func(ctx context.Context, _, _ string) (*autosave.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ctrl, err := autosave.New(form, hang,
		autosave.WithClock(testsupport.NewClock()),
		autosave.WithRequestTimeout(20*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := ctrl.Start(testsupport.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ctrl.Close()

	form.Put("foo", "baz")
	err = ctrl.SaveNow(testsupport.Context())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if ctrl.State() != autosave.StateError {
		t.Fatalf("expected error state after timeout, got %s", ctrl.State())
	}
}

func TestSnapshotFailureSurfacesAsError(t *testing.T) {
	h := newHarness(t)
	h.form.Err = errors.New("form detached")

	err := h.ctrl.SaveNow(testsupport.Context())
	if err == nil || !strings.Contains(err.Error(), "form detached") {
		t.Fatalf("expected snapshot error, got %v", err)
	}
	if h.ctrl.State() != autosave.StateError {
		t.Fatalf("expected error state, got %s", h.ctrl.State())
	}
	if got := len(h.transport.Requests()); got != 0 {
		t.Fatalf("expected no request, got %d", got)
	}
}

func TestEndpointOverride(t *testing.T) {
	h := newHarness(t, autosave.WithEndpoint("https://example.test/custom"))

	h.form.Set("foo", "baz")
	h.clock.Advance(250 * time.Millisecond)

	reqs := h.transport.Requests()
	if len(reqs) != 1 || reqs[0].Endpoint != "https://example.test/custom" {
		t.Fatalf("unexpected requests: %+v", reqs)
	}
}

func TestLifecycleErrors(t *testing.T) {
	form := testsupport.NewForm(endpoint, "foo", "bar")
	ctrl, err := autosave.New(form, &testsupport.Transport{}, autosave.WithClock(testsupport.NewClock()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := ctrl.SaveNow(testsupport.Context()); !errors.Is(err, autosave.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if err := ctrl.Start(testsupport.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := ctrl.Start(testsupport.Context()); err == nil {
		t.Fatalf("expected second start to fail")
	}
	if err := ctrl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ctrl.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if form.Subscribers() != 0 {
		t.Fatalf("expected close to unsubscribe")
	}
	if err := ctrl.SaveNow(testsupport.Context()); !errors.Is(err, autosave.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	if _, err := autosave.New(nil, &testsupport.Transport{}); err == nil {
		t.Fatalf("expected error for nil form")
	}
	if _, err := autosave.New(form, nil); err == nil {
		t.Fatalf("expected error for nil transport")
	}
}

func TestCloseStopsPendingTimers(t *testing.T) {
	h := newHarness(t)

	h.form.Set("foo", "baz")
	if err := h.ctrl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	h.clock.Advance(time.Second)
	if got := len(h.transport.Requests()); got != 0 {
		t.Fatalf("closed controller still saved: %d requests", got)
	}
}
