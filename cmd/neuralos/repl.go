package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/neuralos/neuralos/internal/action"
	"github.com/neuralos/neuralos/internal/completion"
	"github.com/neuralos/neuralos/internal/directive"
	"github.com/neuralos/neuralos/internal/session"
	"github.com/neuralos/neuralos/internal/transcript"
	"github.com/neuralos/neuralos/internal/voice"
)

// repl is the interactive terminal surface: it feeds typed lines and voice
// transcripts into the session controller and renders turn progress.
type repl struct {
	controller *session.Controller
	dispatcher *action.Dispatcher
	scheduler  *action.Scheduler
	voice      *voice.Session
	corrector  *transcript.Corrector

	// lastActions are the directives of the most recent completed turn,
	// activated with /run <n>.
	lastActions []directive.Action

	// shown is the display text already written for the current turn.
	shown string
}

// run blocks until ctx is cancelled or the user quits.
func (r *repl) run(ctx context.Context) error {
	events, unsubscribe := r.controller.Subscribe()
	defer unsubscribe()

	var voiceEvents <-chan voice.Event
	if r.voice != nil {
		var stopVoice func()
		voiceEvents, stopVoice = r.voice.Subscribe()
		defer stopVoice()
	}

	lines := readLines(ctx)

	fmt.Print("> ")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := r.handleLine(ctx, line); quit {
				return nil
			}

		case ev := <-events:
			r.renderTurn(ev)

		case ev := <-voiceEvents:
			r.renderVoice(ctx, ev)

		case n := <-r.scheduler.Delivered():
			fmt.Printf("\n[notification] %s: %s\n> ", n.Title, n.Body)
		}
	}
}

// handleLine routes one input line. Reports true when the user quit.
func (r *repl) handleLine(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "/quit" || trimmed == "/exit":
		return true

	case trimmed == "/voice":
		if r.voice == nil {
			fmt.Println("voice capture is not enabled")
			break
		}
		if err := r.voice.Start(ctx); err != nil {
			fmt.Println(captureMessage(err))
		} else {
			fmt.Println("listening… /stop to finish, /cancel to discard")
		}

	case trimmed == "/stop":
		if r.voice != nil {
			r.voice.Stop()
		}

	case trimmed == "/cancel":
		if r.voice != nil {
			r.voice.Cancel()
		}
		r.controller.CancelStream()

	case trimmed == "/clear":
		r.controller.ClearHistory()
		r.lastActions = nil
		fmt.Println("history cleared")

	case strings.HasPrefix(trimmed, "/run "):
		r.runAction(ctx, strings.TrimSpace(trimmed[len("/run "):]))

	case trimmed != "":
		r.shown = ""
		r.controller.SendMessage(ctx, trimmed, completion.InputText)
	}

	fmt.Print("> ")
	return false
}

// runAction dispatches one of the last turn's directives by index.
func (r *repl) runAction(ctx context.Context, arg string) {
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 1 || idx > len(r.lastActions) {
		fmt.Printf("no such action %q\n", arg)
		return
	}
	act := r.lastActions[idx-1]

	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	res, err := r.dispatcher.Dispatch(dctx, act)
	if err != nil {
		slog.Warn("action dispatch failed", "command", act.Command, "err", err)
		fmt.Printf("%s failed\n", act.Label)
		return
	}
	fmt.Println(res.Message)
}

// renderTurn prints controller progress. Streaming chunks are rendered as
// display-text deltas; directive lines never reach the terminal.
func (r *repl) renderTurn(ev session.Event) {
	switch ev.Kind {
	case session.EventChunk:
		r.printDelta(ev.Parsed.DisplayText)

	case session.EventComplete:
		r.printDelta(ev.Parsed.DisplayText)
		fmt.Println()
		if card := ev.Parsed.Card; card != nil {
			fmt.Printf("[%s]\n", card.Title)
		}
		r.lastActions = ev.Parsed.Actions
		for i, act := range r.lastActions {
			fmt.Printf("  %d. %s (/run %d)\n", i+1, act.Label, i+1)
		}
		fmt.Print("> ")

	case session.EventTurnError:
		fmt.Printf("\n%s\n> ", ev.Err.Message)
	}
}

// renderVoice prints capture progress and forwards final transcripts into the
// conversation.
func (r *repl) renderVoice(ctx context.Context, ev voice.Event) {
	switch ev.Kind {
	case voice.EventPartial:
		fmt.Printf("\r… %s", ev.Transcript)

	case voice.EventFinal:
		text := r.corrector.Correct(ev.Transcript)
		fmt.Printf("\ryou said: %s\n", text)
		r.shown = ""
		r.controller.SendMessage(ctx, text, completion.InputVoice)

	case voice.EventError:
		fmt.Printf("\n%s\n> ", ev.Err.Message)
	}
}

// printDelta writes only the unseen suffix of the display text. The display
// text shrinks or shifts only when a half-parsed directive line gets
// stripped; in that case the response restarts on a fresh line.
func (r *repl) printDelta(display string) {
	if !strings.HasPrefix(display, r.shown) {
		fmt.Print("\n")
		r.shown = ""
	}
	fmt.Print(display[len(r.shown):])
	r.shown = display
}

// captureMessage extracts the user-facing text from a capture failure.
func captureMessage(err error) string {
	if cerr, ok := err.(*voice.CaptureError); ok {
		if cerr.SuggestTyping {
			return cerr.Message + " (you can keep typing here)"
		}
		return cerr.Message
	}
	return "voice capture failed"
}

// readLines pumps stdin lines onto a channel so the main loop can also watch
// session events.
func readLines(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
