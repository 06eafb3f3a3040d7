// Package voice drives one speech-capture session over a [speech.Platform].
// Platform events are folded into a small state machine (idle, listening,
// processing, error) and re-emitted as partial transcripts, at most one final
// transcript per capture, and classified errors.
package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/neuralos/neuralos/internal/config"
	"github.com/neuralos/neuralos/internal/observe"
	"github.com/neuralos/neuralos/pkg/speech"
)

// State is the capture session state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateError
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateError:
		return "error"
	}
	return "unknown"
}

// EventKind discriminates session events.
type EventKind int

const (
	// EventStateChanged reports a state transition; State is set.
	EventStateChanged EventKind = iota

	// EventPartial carries an updated partial transcript; Transcript is set.
	EventPartial

	// EventFinal carries the final transcript of a capture; Transcript is
	// set. Fires at most once per Start.
	EventFinal

	// EventError carries a classified capture failure; Err is set.
	EventError
)

// Event is one session notification.
type Event struct {
	Kind       EventKind
	State      State
	Transcript string
	Err        *CaptureError
}

// Default tuning. Both are empirical and platform dependent, hence
// configurable.
const (
	defaultFinalizeGrace = 1200 * time.Millisecond
	defaultErrorCooldown = 2 * time.Second
)

// Config tunes a Session.
type Config struct {
	// Locale is the recognition language tag, e.g. "en-US".
	Locale string

	// FinalizeGrace bounds the wait for a final result after Stop before the
	// session synthesizes one from the last partial transcript. Compensates
	// for platforms that drop the final callback. Default: 1.2s.
	FinalizeGrace time.Duration

	// ErrorCooldown is how long the session shows an error before
	// auto-returning to idle. Default: 2s.
	ErrorCooldown time.Duration
}

// SessionOption is a functional option for configuring a Session.
type SessionOption func(*Session)

// WithMetrics attaches observability instruments.
func WithMetrics(m *observe.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithSettings sources locale and timing from the live settings store instead
// of the static Config. Each capture reads one snapshot at Start, so a config
// reload takes effect on the next capture and never mid-capture.
func WithSettings(st *config.Settings) SessionOption {
	return func(s *Session) { s.settings = st }
}

// ErrDestroyed is returned by Start after Destroy.
var ErrDestroyed = errors.New("voice: session destroyed")

// Session owns at most one native capture at a time. Starting while a capture
// is active cancels the previous capture and awaits the platform's
// acknowledgment before the new one begins.
type Session struct {
	platform speech.Platform
	cfg      Config
	metrics  *observe.Metrics
	settings *config.Settings

	mu            sync.Mutex
	state         State
	lastPartial   string
	lastError     *CaptureError
	gen           int
	finalFired    bool
	captureActive bool
	destroyed     bool
	graceTimer    *time.Timer
	cooldownTimer *time.Timer
	cancelAck     chan struct{}

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	loopDone chan struct{}
}

// NewSession creates a Session over the given platform and starts consuming
// its events. Call Destroy to release it.
func NewSession(platform speech.Platform, cfg Config, opts ...SessionOption) *Session {
	if cfg.FinalizeGrace <= 0 {
		cfg.FinalizeGrace = defaultFinalizeGrace
	}
	if cfg.ErrorCooldown <= 0 {
		cfg.ErrorCooldown = defaultErrorCooldown
	}
	s := &Session{
		platform: platform,
		cfg:      cfg,
		subs:     make(map[int]chan Event),
		loopDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.loop()
	return s
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PartialTranscript returns the best current guess at what was said.
func (s *Session) PartialTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPartial
}

// LastError returns the failure shown in the error state, nil otherwise.
func (s *Session) LastError() *CaptureError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Subscribe registers an event listener. The returned function removes it and
// closes the channel. Slow listeners lose events rather than stalling the
// session.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Start begins a capture. If one is already active it is cancelled first and
// its cancellation acknowledged before the new capture begins, so two native
// sessions never overlap. Permission is requested before capture; a denial
// puts the session in the error state without touching the microphone.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}

	if s.state == StateListening || s.state == StateProcessing {
		ack := make(chan struct{})
		s.cancelAck = ack
		s.resetCaptureLocked()
		s.setStateLocked(StateIdle)
		s.mu.Unlock()

		if err := s.platform.Cancel(ctx); err != nil {
			slog.Warn("capture cancel failed", "err", err)
		}
		select {
		case <-ack:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
		if s.destroyed {
			s.mu.Unlock()
			return ErrDestroyed
		}
	}
	s.stopCooldownLocked()

	if s.settings != nil {
		r := s.settings.Current()
		s.cfg.Locale = r.Locale
		s.cfg.FinalizeGrace = r.FinalizeGrace
		s.cfg.ErrorCooldown = r.ErrorCooldown
	}

	if err := s.platform.CheckAvailable(ctx); err != nil {
		cerr := newCaptureError(speech.CodeClient)
		s.enterErrorLocked(cerr)
		s.mu.Unlock()
		return cerr
	}

	granted, err := s.platform.RequestPermission(ctx)
	if err != nil || !granted {
		cerr := permissionError()
		s.enterErrorLocked(cerr)
		s.mu.Unlock()
		return cerr
	}

	s.gen++
	s.finalFired = false
	s.lastPartial = ""
	s.lastError = nil

	if err := s.platform.Start(ctx, s.cfg.Locale); err != nil {
		slog.Error("speech capture failed to start", "err", err)
		cerr := newCaptureError(speech.CodeAudio)
		s.enterErrorLocked(cerr)
		s.mu.Unlock()
		return cerr
	}

	s.captureActive = true
	s.setStateLocked(StateListening)
	if s.metrics != nil && s.metrics.ActiveCaptures != nil {
		s.metrics.ActiveCaptures.Add(ctx, 1)
	}
	s.mu.Unlock()
	return nil
}

// Stop ends audio intake and waits for the recognizer's final result. If none
// arrives within the finalize grace the session synthesizes a final from the
// last partial transcript, or settles at idle with no result.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != StateListening && s.state != StateProcessing {
		s.mu.Unlock()
		return
	}
	if s.state == StateListening {
		s.setStateLocked(StateProcessing)
	}
	gen := s.gen
	s.stopGraceLocked()
	s.graceTimer = time.AfterFunc(s.cfg.FinalizeGrace, func() {
		s.graceExpired(gen)
	})
	s.mu.Unlock()

	if err := s.platform.Stop(context.Background()); err != nil {
		slog.Warn("capture stop failed", "err", err)
	}
}

// Cancel discards the capture. No final result is delivered. In the error
// state it dismisses the error immediately instead of waiting out the
// cooldown.
func (s *Session) Cancel() {
	s.mu.Lock()
	switch s.state {
	case StateError:
		s.stopCooldownLocked()
		s.lastError = nil
		s.setStateLocked(StateIdle)
		s.mu.Unlock()
		return
	case StateListening, StateProcessing:
	default:
		s.mu.Unlock()
		return
	}
	s.resetCaptureLocked()
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	if err := s.platform.Cancel(context.Background()); err != nil {
		slog.Warn("capture cancel failed", "err", err)
	}
}

// Destroy releases the native recognizer and stops the event loop. Further
// calls on the session are no-ops; Start returns ErrDestroyed.
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.resetCaptureLocked()
	s.stopCooldownLocked()
	s.state = StateIdle
	if ack := s.cancelAck; ack != nil {
		s.cancelAck = nil
		close(ack)
	}
	s.mu.Unlock()

	if err := s.platform.Destroy(); err != nil {
		slog.Warn("platform destroy failed", "err", err)
	}
	<-s.loopDone

	s.subMu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subMu.Unlock()
}

// loop consumes platform events until the platform closes its channel.
func (s *Session) loop() {
	defer close(s.loopDone)
	for ev := range s.platform.Events() {
		s.handle(ev)
	}
}

func (s *Session) handle(ev speech.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case speech.KindStarted:
		// Already reflected by the Listening transition in Start.

	case speech.KindPartial:
		if s.state != StateListening && s.state != StateProcessing {
			return
		}
		s.lastPartial = ev.Text
		s.publish(Event{Kind: EventPartial, Transcript: ev.Text})

	case speech.KindEndOfSpeech:
		if s.state == StateListening {
			s.setStateLocked(StateProcessing)
		}

	case speech.KindFinal:
		s.finalizeLocked(ev.Text)

	case speech.KindError:
		if s.state != StateListening && s.state != StateProcessing {
			return
		}
		s.resetCaptureLocked()
		s.enterErrorLocked(newCaptureError(ev.Code))

	case speech.KindCancelled:
		if ack := s.cancelAck; ack != nil {
			s.cancelAck = nil
			close(ack)
		}
	}
}

// finalizeLocked delivers the final transcript and settles at idle. An empty
// payload falls back to the last partial transcript; if that is empty too the
// capture ends with no result.
func (s *Session) finalizeLocked(text string) {
	if s.finalFired || (s.state != StateListening && s.state != StateProcessing) {
		return
	}
	if text == "" {
		text = s.lastPartial
	}
	s.finalFired = true
	s.stopGraceLocked()
	s.lastPartial = ""
	s.endCaptureLocked()
	s.setStateLocked(StateIdle)
	if text != "" {
		s.publish(Event{Kind: EventFinal, Transcript: text})
	}
}

// graceExpired fires when Stop's finalize grace elapses without a final
// result from the platform.
func (s *Session) graceExpired(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != StateProcessing {
		return
	}
	slog.Debug("final result missing after stop, synthesizing from partial",
		"partial", s.lastPartial != "")
	s.finalizeLocked(s.lastPartial)
}

// enterErrorLocked moves to the error state and arms the auto-idle cooldown.
func (s *Session) enterErrorLocked(cerr *CaptureError) {
	s.lastError = cerr
	s.lastPartial = ""
	s.setStateLocked(StateError)
	s.publish(Event{Kind: EventError, Err: cerr})
	slog.Warn("speech capture failed",
		"class", cerr.Class,
		"code", cerr.Code,
	)
	if s.metrics != nil && s.metrics.SpeechErrors != nil {
		s.metrics.SpeechErrors.Add(context.Background(), 1, observe.Class(string(cerr.Class)))
	}

	gen := s.gen
	s.stopCooldownLocked()
	s.cooldownTimer = time.AfterFunc(s.cfg.ErrorCooldown, func() {
		s.cooldownExpired(gen)
	})
}

// cooldownExpired auto-dismisses the error state so the control surface is
// usable again without an explicit dismissal.
func (s *Session) cooldownExpired(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != StateError {
		return
	}
	s.lastError = nil
	s.setStateLocked(StateIdle)
}

// resetCaptureLocked discards the in-flight capture's transcript and timers
// and suppresses any late final result from it.
func (s *Session) resetCaptureLocked() {
	s.gen++
	s.finalFired = true
	s.lastPartial = ""
	s.stopGraceLocked()
	s.endCaptureLocked()
}

func (s *Session) endCaptureLocked() {
	if !s.captureActive {
		return
	}
	s.captureActive = false
	if s.metrics != nil && s.metrics.ActiveCaptures != nil {
		s.metrics.ActiveCaptures.Add(context.Background(), -1)
	}
}

func (s *Session) stopGraceLocked() {
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
}

func (s *Session) stopCooldownLocked() {
	if s.cooldownTimer != nil {
		s.cooldownTimer.Stop()
		s.cooldownTimer = nil
	}
}

func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	s.publish(Event{Kind: EventStateChanged, State: st})
}

// publish fans an event out to subscribers without blocking.
func (s *Session) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
