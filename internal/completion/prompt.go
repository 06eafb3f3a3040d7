package completion

import (
	"strings"
	"time"
)

// InputMethod describes how the user produced the current utterance. The
// system prompt adapts to it: spoken input gets brevity guidance, typed input
// allows richer formatting.
type InputMethod string

const (
	InputVoice InputMethod = "voice"
	InputText  InputMethod = "text"
)

// defaultPersona is the static personality block included in every system
// prompt unless the caller supplies its own.
const defaultPersona = `You are NeuralOS, a personal assistant running on the user's device.
You are helpful, direct, and concise. You never invent device capabilities.

When an answer benefits from a summary card, append one line:
CARD: {"title":"...","icon":"...","accentColor":"..."}
When the user's request maps to a device action, append one line:
ACTIONS: [{"label":"...","command":"...","variant":"default|primary|success|warning|danger","params":{"key":"value"}}]
Available commands: schedule_notification (params: title, body, delay in seconds),
open_url (params: url), send_email (params: to, subject, body), phone_call (params: number).
Emit each directive line at most once, after your reply text. Emit none when no
card or action applies.`

// voiceAddendum is appended when the utterance came in by voice.
const voiceAddendum = `The user is speaking, not typing. Keep replies short and natural to hear
aloud. Avoid lists, markdown, and long URLs in the reply text.`

// textAddendum is appended when the utterance was typed.
const textAddendum = `The user is typing. Plain text formatting is fine.`

// PromptSpec carries everything needed to compose a system prompt. The prompt
// is rebuilt for every request — it embeds the current time, so caching a
// composed prompt across requests would serve stale timestamps.
type PromptSpec struct {
	// Persona overrides the default personality block when non-empty.
	Persona string

	// Method selects the input-specific addendum.
	Method InputMethod

	// Context is optional caller-supplied situational context (e.g., the
	// active screen, pending reminders).
	Context string

	// Now is the timestamp embedded in the prompt. The zero value means
	// time.Now().
	Now time.Time
}

// BuildSystemPrompt composes the full instruction text for one request.
func BuildSystemPrompt(spec PromptSpec) string {
	persona := spec.Persona
	if persona == "" {
		persona = defaultPersona
	}

	now := spec.Now
	if now.IsZero() {
		now = time.Now()
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	if spec.Method == InputVoice {
		b.WriteString(voiceAddendum)
	} else {
		b.WriteString(textAddendum)
	}
	if spec.Context != "" {
		b.WriteString("\n\nContext: ")
		b.WriteString(spec.Context)
	}
	b.WriteString("\n\nCurrent time: ")
	b.WriteString(now.Format("Monday, 02 Jan 2006 15:04 MST"))
	return b.String()
}
