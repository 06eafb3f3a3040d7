package action

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Features gates which builtin commands get registered. Disabled commands are
// simply absent, so the model's suggestion surfaces an unknown-command error
// instead of silently half-working.
type Features struct {
	Notifications bool
	OpenURL       bool
	Email         bool
	PhoneCall     bool
}

// AllFeatures enables every builtin.
func AllFeatures() Features {
	return Features{Notifications: true, OpenURL: true, Email: true, PhoneCall: true}
}

// Opener hands a URI to the host environment (browser, mail client, dialer).
type Opener func(ctx context.Context, uri string) error

// logOpener is the default Opener: it records the intent without touching the
// host, which is the right behavior in headless and test environments.
func logOpener(_ context.Context, uri string) error {
	slog.Info("open requested", "uri", uri)
	return nil
}

// Notification is one delivered reminder.
type Notification struct {
	Title string
	Body  string
}

// Scheduler queues in-process notifications. Delivered notifications are
// published on Delivered; the channel drops when nobody is listening.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[int]*time.Timer
	nextID  int
	closed  bool
	deliver chan Notification
}

// NewScheduler creates a Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		timers:  make(map[int]*time.Timer),
		deliver: make(chan Notification, 16),
	}
}

// Delivered exposes fired notifications.
func (s *Scheduler) Delivered() <-chan Notification { return s.deliver }

// Schedule queues a notification after delay.
func (s *Scheduler) Schedule(title, body string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("action: scheduler closed")
	}
	id := s.nextID
	s.nextID++
	s.timers[id] = time.AfterFunc(delay, func() {
		s.fire(id, Notification{Title: title, Body: body})
	})
	return nil
}

// Pending returns the number of queued notifications.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close cancels all queued notifications.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) fire(id int, n Notification) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.mu.Unlock()

	slog.Info("notification fired", "title", n.Title)
	select {
	case s.deliver <- n:
	default:
	}
}

// BuiltinConfig wires the builtin handlers.
type BuiltinConfig struct {
	Features  Features
	Scheduler *Scheduler

	// Open overrides the default log-only Opener.
	Open Opener
}

// RegisterBuiltins registers the enabled builtin commands on the dispatcher.
func RegisterBuiltins(d *Dispatcher, cfg BuiltinConfig) error {
	open := cfg.Open
	if open == nil {
		open = logOpener
	}

	if cfg.Features.Notifications {
		sched := cfg.Scheduler
		if sched == nil {
			return fmt.Errorf("action: notifications enabled without a scheduler")
		}
		if err := d.Register("schedule_notification", scheduleNotification(sched)); err != nil {
			return err
		}
	}
	if cfg.Features.OpenURL {
		if err := d.Register("open_url", openURL(open)); err != nil {
			return err
		}
	}
	if cfg.Features.Email {
		if err := d.Register("send_email", sendEmail(open)); err != nil {
			return err
		}
	}
	if cfg.Features.PhoneCall {
		if err := d.Register("phone_call", phoneCall(open)); err != nil {
			return err
		}
	}
	return nil
}

func scheduleNotification(sched *Scheduler) Handler {
	return func(_ context.Context, params map[string]string) (Result, error) {
		title := params["title"]
		body := params["body"]
		if title == "" {
			return Result{}, fmt.Errorf("missing title")
		}
		seconds, err := strconv.Atoi(strings.TrimSpace(params["delay"]))
		if err != nil || seconds < 0 {
			return Result{}, fmt.Errorf("invalid delay %q", params["delay"])
		}
		if err := sched.Schedule(title, body, time.Duration(seconds)*time.Second); err != nil {
			return Result{}, err
		}
		return Result{Success: true, Message: fmt.Sprintf("Reminder set for %ds from now.", seconds)}, nil
	}
}

func openURL(open Opener) Handler {
	return func(ctx context.Context, params map[string]string) (Result, error) {
		raw := strings.TrimSpace(params["url"])
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return Result{}, fmt.Errorf("invalid url %q", raw)
		}
		if err := open(ctx, u.String()); err != nil {
			return Result{}, err
		}
		return Result{Success: true, Message: "Opening " + u.Host + "."}, nil
	}
}

func sendEmail(open Opener) Handler {
	return func(ctx context.Context, params map[string]string) (Result, error) {
		to := strings.TrimSpace(params["to"])
		if to == "" || !strings.Contains(to, "@") {
			return Result{}, fmt.Errorf("invalid recipient %q", to)
		}
		q := url.Values{}
		if s := params["subject"]; s != "" {
			q.Set("subject", s)
		}
		if b := params["body"]; b != "" {
			q.Set("body", b)
		}
		uri := "mailto:" + to
		if len(q) > 0 {
			uri += "?" + q.Encode()
		}
		if err := open(ctx, uri); err != nil {
			return Result{}, err
		}
		return Result{Success: true, Message: "Drafting email to " + to + "."}, nil
	}
}

func phoneCall(open Opener) Handler {
	return func(ctx context.Context, params map[string]string) (Result, error) {
		number := strings.TrimSpace(params["number"])
		if !validPhoneNumber(number) {
			return Result{}, fmt.Errorf("invalid number %q", number)
		}
		if err := open(ctx, "tel:"+number); err != nil {
			return Result{}, err
		}
		return Result{Success: true, Message: "Calling " + number + "."}, nil
	}
}

// validPhoneNumber accepts digits with an optional leading + and common
// separators.
func validPhoneNumber(number string) bool {
	digits := 0
	for i, r := range number {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 3
}
