// Package speech defines the Platform interface over an OS or network speech
// recognition service.
//
// A speech platform wraps a recognition backend (an on-device recognizer, or a
// streaming cloud service) and exposes a uniform command set plus an event
// stream. The voice session engine consumes events only — it never sees audio
// frames, sample rates, or the provider's wire format.
//
// Implementations must be safe for concurrent use. The Events channel is owned
// by the implementation and is closed by Destroy.
package speech

import "context"

// EventKind discriminates platform events.
type EventKind int

const (
	// KindStarted signals that the platform began capturing audio.
	KindStarted EventKind = iota

	// KindPartial carries an interim recognition hypothesis in Event.Text.
	// Partials may be emitted many times per capture and may revise earlier
	// partials wholesale.
	KindPartial

	// KindEndOfSpeech signals that the platform detected the end of the
	// utterance. A final result usually (but not always) follows.
	KindEndOfSpeech

	// KindFinal carries the authoritative transcript in Event.Text. Emitted at
	// most once per capture. Text may be empty when the platform dropped the
	// result; the session engine compensates from the last partial.
	KindFinal

	// KindError carries a platform-numeric error code in Event.Code.
	KindError

	// KindCancelled acknowledges a Cancel command; no result follows.
	KindCancelled
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindPartial:
		return "partial"
	case KindEndOfSpeech:
		return "end-of-speech"
	case KindFinal:
		return "final"
	case KindError:
		return "error"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Event is a single occurrence reported by the platform.
type Event struct {
	// Kind discriminates the event.
	Kind EventKind

	// Text is the transcript payload for KindPartial and KindFinal.
	Text string

	// Code is the platform-numeric error code for KindError. Codes are mapped
	// to the session error taxonomy by the voice package; unmapped codes fall
	// back to the unknown classification.
	Code int
}

// Platform is the abstraction over any speech recognition backend.
//
// Exactly one capture may be active at a time per Platform instance. Start
// while a capture is active is an error; callers must Stop or Cancel first.
// All methods must be safe for concurrent use.
type Platform interface {
	// CheckAvailable reports whether the recognition service is usable right
	// now (installed, reachable). A non-nil error means captures will fail.
	CheckAvailable(ctx context.Context) error

	// RequestPermission asks the OS for microphone/recognition permission.
	// Returns (false, nil) when the user denied; the result may be cached by
	// the platform, making subsequent calls cheap.
	RequestPermission(ctx context.Context) (bool, error)

	// Start begins a capture for the given BCP-47 locale (e.g., "en-US").
	// Events flow on the Events channel until a final, an error, or a cancel.
	Start(ctx context.Context, locale string) error

	// Stop ends audio capture and asks the platform to finalise the current
	// hypothesis. The final result (if any) arrives as a KindFinal event.
	Stop(ctx context.Context) error

	// Cancel aborts the capture, discarding any pending result. The platform
	// acknowledges with a KindCancelled event.
	Cancel(ctx context.Context) error

	// Destroy releases native resources and closes the Events channel.
	// Subsequent calls are no-ops.
	Destroy() error

	// Events returns the platform's event stream. The same channel is returned
	// on every call; it is closed by Destroy.
	Events() <-chan Event
}
