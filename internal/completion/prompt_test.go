package completion

import (
	"strings"
	"testing"
	"time"

	"github.com/neuralos/neuralos/pkg/provider/llm"
)

func TestBuildSystemPrompt_VoiceVsText(t *testing.T) {
	voice := BuildSystemPrompt(PromptSpec{Method: InputVoice})
	if !strings.Contains(voice, "speaking, not typing") {
		t.Error("voice prompt missing voice addendum")
	}

	text := BuildSystemPrompt(PromptSpec{Method: InputText})
	if !strings.Contains(text, "The user is typing") {
		t.Error("text prompt missing text addendum")
	}
	if strings.Contains(text, "speaking, not typing") {
		t.Error("text prompt contains voice addendum")
	}
}

func TestBuildSystemPrompt_EmbedsTime(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 9, 0, 0, time.UTC)
	got := BuildSystemPrompt(PromptSpec{Now: now})
	if !strings.Contains(got, "Friday, 14 Mar 2025 15:09 UTC") {
		t.Errorf("prompt missing formatted time:\n%s", got)
	}
}

func TestBuildSystemPrompt_PersonaOverrideAndContext(t *testing.T) {
	got := BuildSystemPrompt(PromptSpec{
		Persona: "You are a terse robot.",
		Context: "user is driving",
	})
	if !strings.HasPrefix(got, "You are a terse robot.") {
		t.Error("persona override not applied")
	}
	if strings.Contains(got, "NeuralOS") {
		t.Error("default persona leaked despite override")
	}
	if !strings.Contains(got, "Context: user is driving") {
		t.Error("context missing")
	}
}

func TestBuildSystemPrompt_DefaultPersonaListsCommands(t *testing.T) {
	got := BuildSystemPrompt(PromptSpec{})
	for _, cmd := range []string{"schedule_notification", "open_url", "send_email", "phone_call"} {
		if !strings.Contains(got, cmd) {
			t.Errorf("default persona missing command %q", cmd)
		}
	}
}

func TestStats_RecordAndReset(t *testing.T) {
	var s Stats
	s.record(llm.Usage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14})
	s.record(llm.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10})

	snap := s.Snapshot()
	if snap.InputTokens != 17 || snap.OutputTokens != 7 || snap.RequestCount != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	s.Reset()
	if snap := s.Snapshot(); snap != (Snapshot{}) {
		t.Errorf("after reset: %+v", snap)
	}
}
