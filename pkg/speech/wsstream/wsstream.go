// Package wsstream provides a speech.Platform backed by a streaming
// transcription WebSocket API (Deepgram-style wire format). Audio is pulled
// from a caller-supplied source while a capture is active; interim and final
// transcript messages are translated into platform events.
package wsstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/neuralos/neuralos/pkg/speech"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultSampleRate = 16000

	// audioChunkSize is the size of audio reads pushed per binary message:
	// 100 ms of 16 kHz mono 16-bit PCM.
	audioChunkSize = 3200
)

// AudioSource opens the microphone (or any PCM byte stream) for one capture.
// The returned reader is closed when the capture ends.
type AudioSource func(ctx context.Context) (io.ReadCloser, error)

// Option is a functional option for configuring the Platform.
type Option func(*Platform)

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Platform) { p.endpoint = endpoint }
}

// WithModel sets the recognition model (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Platform) { p.model = model }
}

// WithSampleRate sets the PCM sample rate in Hz delivered by the audio source.
func WithSampleRate(rate int) Option {
	return func(p *Platform) { p.sampleRate = rate }
}

// Platform implements speech.Platform over a streaming transcription socket.
//
// One capture at a time: Start while a capture is active returns an error, per
// the speech.Platform contract.
type Platform struct {
	apiKey     string
	endpoint   string
	model      string
	sampleRate int
	source     AudioSource

	events chan speech.Event

	mu        sync.Mutex
	active    *capture
	destroyed bool
}

// New creates a Platform. apiKey must be non-empty and source must not be nil.
func New(apiKey string, source AudioSource, opts ...Option) (*Platform, error) {
	if apiKey == "" {
		return nil, errors.New("wsstream: apiKey must not be empty")
	}
	if source == nil {
		return nil, errors.New("wsstream: audio source must not be nil")
	}
	p := &Platform{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		sampleRate: defaultSampleRate,
		source:     source,
		events:     make(chan speech.Event, 64),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// CheckAvailable implements speech.Platform. The endpoint is not probed; a
// capture failure surfaces as a network error event instead.
func (p *Platform) CheckAvailable(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return errors.New("wsstream: platform destroyed")
	}
	return nil
}

// RequestPermission implements speech.Platform by opening and immediately
// closing the audio source. A source that cannot be opened is reported as a
// denied permission rather than an error, matching OS recognizer behaviour.
func (p *Platform) RequestPermission(ctx context.Context) (bool, error) {
	rc, err := p.source(ctx)
	if err != nil {
		return false, nil
	}
	_ = rc.Close()
	return true, nil
}

// Start implements speech.Platform.
func (p *Platform) Start(ctx context.Context, locale string) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return errors.New("wsstream: platform destroyed")
	}
	if p.active != nil {
		p.mu.Unlock()
		return errors.New("wsstream: capture already active")
	}
	p.mu.Unlock()

	wsURL, err := p.buildURL(locale)
	if err != nil {
		return fmt.Errorf("wsstream: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return fmt.Errorf("wsstream: dial: %w", err)
	}

	audio, err := p.source(ctx)
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "no audio source")
		return fmt.Errorf("wsstream: open audio source: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	c := &capture{
		platform: p,
		conn:     conn,
		audio:    audio,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	p.mu.Lock()
	p.active = c
	p.mu.Unlock()

	p.emit(speech.Event{Kind: speech.KindStarted})

	c.wg.Add(2)
	go c.readLoop(streamCtx)
	go c.writeLoop(streamCtx)

	return nil
}

// Stop implements speech.Platform. It stops pushing audio and asks the server
// to flush its final hypothesis; the final arrives as a KindFinal event once
// the server closes the stream.
func (p *Platform) Stop(context.Context) error {
	p.mu.Lock()
	c := p.active
	p.mu.Unlock()
	if c == nil {
		return nil
	}
	c.stop()
	return nil
}

// Cancel implements speech.Platform. The capture is torn down immediately and
// no final result is delivered.
func (p *Platform) Cancel(context.Context) error {
	p.mu.Lock()
	c := p.active
	p.mu.Unlock()
	if c != nil {
		c.abort()
	}
	p.emit(speech.Event{Kind: speech.KindCancelled})
	return nil
}

// Destroy implements speech.Platform.
func (p *Platform) Destroy() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}
	p.destroyed = true
	c := p.active
	p.active = nil
	p.mu.Unlock()

	if c != nil {
		c.abort()
	}
	close(p.events)
	return nil
}

// Events implements speech.Platform.
func (p *Platform) Events() <-chan speech.Event {
	return p.events
}

// emit delivers an event unless the platform was destroyed.
func (p *Platform) emit(ev speech.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	select {
	case p.events <- ev:
	default:
		// Event buffer full; drop rather than block the socket loops.
	}
}

// clearActive detaches c if it is still the active capture.
func (p *Platform) clearActive(c *capture) {
	p.mu.Lock()
	if p.active == c {
		p.active = nil
	}
	p.mu.Unlock()
}

// buildURL constructs the streaming endpoint URL for the given locale.
func (p *Platform) buildURL(locale string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	if locale != "" {
		q.Set("language", locale)
	}
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(p.sampleRate))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- capture ----

// resultMessage is the JSON structure the server sends for a Results event.
type resultMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// capture is one live recognition stream.
type capture struct {
	platform *Platform
	conn     *websocket.Conn
	audio    io.ReadCloser
	cancel   context.CancelFunc

	done      chan struct{}
	stopOnce  sync.Once
	abortOnce sync.Once
	wg        sync.WaitGroup

	mu        sync.Mutex
	stopping  bool
	aborted   bool
	segments  []string // is_final segments committed so far
	finalSent bool
}

// stop ends audio input and requests a flush of the pending hypothesis.
func (c *capture) stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopping = true
		c.mu.Unlock()

		close(c.done)
		_ = c.audio.Close()
		// Ask the server to flush pending audio and close the stream.
		_ = c.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
	})
}

// abort tears the capture down without delivering a final result.
func (c *capture) abort() {
	c.abortOnce.Do(func() {
		c.mu.Lock()
		c.aborted = true
		c.finalSent = true // suppress any trailing final
		c.mu.Unlock()

		c.stopOnce.Do(func() {
			c.mu.Lock()
			c.stopping = true
			c.mu.Unlock()
			close(c.done)
			_ = c.audio.Close()
		})
		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "cancelled")
		c.platform.clearActive(c)
	})
}

// writeLoop pushes audio chunks from the source to the socket until the
// capture stops or the source ends.
func (c *capture) writeLoop(ctx context.Context) {
	defer c.wg.Done()

	buf := make([]byte, audioChunkSize)
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		n, err := c.audio.Read(buf)
		if n > 0 {
			if werr := c.conn.Write(ctx, websocket.MessageBinary, buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			// EOF from the source behaves like a manual stop.
			if errors.Is(err, io.EOF) {
				c.stop()
			}
			return
		}
	}
}

// readLoop receives JSON messages from the server and dispatches them as
// platform events. It also synthesises the terminal final event when the
// server closes the stream after a stop.
func (c *capture) readLoop(ctx context.Context) {
	defer c.wg.Done()
	defer c.platform.clearActive(c)

	for {
		_, msg, err := c.conn.Read(ctx)
		if err != nil {
			c.handleClose(err)
			return
		}

		var res resultMessage
		if jerr := json.Unmarshal(msg, &res); jerr != nil || res.Type != "Results" {
			continue
		}
		if len(res.Channel.Alternatives) == 0 {
			continue
		}
		text := res.Channel.Alternatives[0].Transcript

		switch {
		case res.SpeechFinal:
			c.commitSegment(text)
			c.platform.emit(speech.Event{Kind: speech.KindEndOfSpeech})
			c.emitFinal()
			return

		case res.IsFinal:
			c.commitSegment(text)
			c.platform.emit(speech.Event{Kind: speech.KindPartial, Text: c.hypothesis("")})

		default:
			if text != "" {
				c.platform.emit(speech.Event{Kind: speech.KindPartial, Text: c.hypothesis(text)})
			}
		}
	}
}

// handleClose maps a socket termination to the right terminal event.
func (c *capture) handleClose(err error) {
	c.mu.Lock()
	stopping := c.stopping
	aborted := c.aborted
	c.mu.Unlock()

	switch {
	case aborted:
		// Cancelled; the platform already emitted KindCancelled.
	case stopping:
		// Server flushed and closed after CloseStream: whatever was committed
		// is the final result. An empty final is legal; the session engine
		// falls back to its last partial.
		c.emitFinal()
	default:
		var closeErr websocket.CloseError
		code := speech.CodeNetwork
		if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusInternalError {
			code = speech.CodeServer
		}
		c.platform.emit(speech.Event{Kind: speech.KindError, Code: code})
	}
}

// commitSegment appends a finalised transcript segment.
func (c *capture) commitSegment(text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	c.segments = append(c.segments, text)
	c.mu.Unlock()
}

// hypothesis returns the committed segments joined with the current interim.
func (c *capture) hypothesis(interim string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	parts := c.segments
	if interim != "" {
		parts = append(append([]string{}, c.segments...), interim)
	}
	return strings.Join(parts, " ")
}

// emitFinal delivers the final transcript exactly once.
func (c *capture) emitFinal() {
	c.mu.Lock()
	if c.finalSent {
		c.mu.Unlock()
		return
	}
	c.finalSent = true
	text := strings.Join(c.segments, " ")
	c.mu.Unlock()

	c.platform.emit(speech.Event{Kind: speech.KindFinal, Text: text})
}
