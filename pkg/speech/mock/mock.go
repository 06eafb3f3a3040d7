// Package mock provides a scripted test double for the speech.Platform
// interface. Tests drive the event stream directly via Emit and inspect the
// recorded command calls afterwards.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/neuralos/neuralos/pkg/speech"
)

// Platform is a mock implementation of speech.Platform.
//
// The zero value is not usable; construct with New. Configure the exported
// fields before handing the mock to the code under test.
type Platform struct {
	mu sync.Mutex

	events    chan speech.Event
	destroyed bool

	// --- Configurable behaviour ---

	// PermissionGranted is the result of RequestPermission. Defaults to true.
	PermissionGranted bool

	// PermissionErr, if non-nil, is returned by RequestPermission.
	PermissionErr error

	// AvailableErr, if non-nil, is returned by CheckAvailable.
	AvailableErr error

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// AutoAckCancel, when true (the default), makes Cancel emit a
	// KindCancelled event immediately, the way real platforms acknowledge.
	AutoAckCancel bool

	// --- Call records (read after test) ---

	// StartCalls records the locale of every Start invocation.
	StartCalls []string

	// StopCalls counts Stop invocations.
	StopCalls int

	// CancelCalls counts Cancel invocations.
	CancelCalls int
}

// New returns a ready-to-use mock platform with permission granted and
// automatic cancel acknowledgment.
func New() *Platform {
	return &Platform{
		events:            make(chan speech.Event, 64),
		PermissionGranted: true,
		AutoAckCancel:     true,
	}
}

// Emit injects an event into the platform's event stream, as if the native
// service had reported it.
func (p *Platform) Emit(ev speech.Event) {
	p.events <- ev
}

// CheckAvailable implements speech.Platform.
func (p *Platform) CheckAvailable(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.AvailableErr
}

// RequestPermission implements speech.Platform.
func (p *Platform) RequestPermission(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PermissionErr != nil {
		return false, p.PermissionErr
	}
	return p.PermissionGranted, nil
}

// Start implements speech.Platform.
func (p *Platform) Start(_ context.Context, locale string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return errors.New("mock: platform destroyed")
	}
	if p.StartErr != nil {
		return p.StartErr
	}
	p.StartCalls = append(p.StartCalls, locale)
	return nil
}

// Stop implements speech.Platform.
func (p *Platform) Stop(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StopCalls++
	return nil
}

// Cancel implements speech.Platform.
func (p *Platform) Cancel(context.Context) error {
	p.mu.Lock()
	ack := p.AutoAckCancel && !p.destroyed
	p.CancelCalls++
	p.mu.Unlock()

	if ack {
		p.events <- speech.Event{Kind: speech.KindCancelled}
	}
	return nil
}

// Destroy implements speech.Platform.
func (p *Platform) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.destroyed {
		p.destroyed = true
		close(p.events)
	}
	return nil
}

// Events implements speech.Platform.
func (p *Platform) Events() <-chan speech.Event {
	return p.events
}
