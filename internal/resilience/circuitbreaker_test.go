package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", FailureLimit: 3, OpenFor: time.Hour})
	fail := errors.New("boom")

	for i := 0; i < 2; i++ {
		if !b.Allow() {
			t.Fatalf("Allow = false before limit (call %d)", i)
		}
		b.Report(fail)
	}
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("state = %v, want closed below limit", got)
	}

	b.Allow()
	b.Report(fail)
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state = %v, want open at limit", got)
	}
	if b.Allow() {
		t.Error("Allow = true while open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureLimit: 2, OpenFor: time.Hour})
	fail := errors.New("boom")

	b.Allow()
	b.Report(fail)
	b.Allow()
	b.Report(nil)
	b.Allow()
	b.Report(fail)

	if got := b.State(); got != BreakerClosed {
		t.Errorf("state = %v, want closed; success must reset the streak", got)
	}
}

func TestBreaker_ProbeRecovery(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureLimit: 1, OpenFor: 10 * time.Millisecond})

	b.Allow()
	b.Report(errors.New("boom"))
	if b.Allow() {
		t.Fatal("Allow = true immediately after opening")
	}

	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("Allow = false after open window, want probe")
	}
	// Only one probe is in flight at a time.
	if b.Allow() {
		t.Error("second concurrent probe allowed")
	}

	b.Report(nil)
	if got := b.State(); got != BreakerClosed {
		t.Errorf("state after successful probe = %v, want closed", got)
	}
	if !b.Allow() {
		t.Error("Allow = false after recovery")
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureLimit: 1, OpenFor: 10 * time.Millisecond})

	b.Allow()
	b.Report(errors.New("boom"))
	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("probe not allowed")
	}
	b.Report(errors.New("still down"))

	if got := b.State(); got != BreakerOpen {
		t.Errorf("state after failed probe = %v, want open", got)
	}
	if b.Allow() {
		t.Error("Allow = true right after failed probe")
	}
}

func TestBreaker_Do(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureLimit: 1, OpenFor: time.Hour})

	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("Do = %v", err)
	}
	boom := errors.New("boom")
	if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Do = %v, want boom", err)
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Do = %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureLimit: 1, OpenFor: time.Hour})
	b.Allow()
	b.Report(errors.New("boom"))

	b.Reset()
	if got := b.State(); got != BreakerClosed {
		t.Errorf("state after Reset = %v, want closed", got)
	}
	if !b.Allow() {
		t.Error("Allow = false after Reset")
	}
}
