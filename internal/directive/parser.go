// Package directive extracts in-band response directives from assistant
// output. The model appends machine-readable lines to its reply text:
//
//	CARD: {"title":"...","icon":"...","accentColor":"..."}
//	ACTIONS: [{"label":"...","command":"...","variant":"...","params":{...}}]
//
// Parse strips those lines from the display text and decodes them into typed
// values. It is designed to be re-run on every streamed chunk: a directive
// line whose JSON payload is still arriving is hidden from the display text
// immediately but produces no card or actions until the payload is balanced
// and valid.
package directive

import (
	"encoding/json"
	"strings"
)

// Variant is the visual weight of an action button.
type Variant string

const (
	VariantDefault Variant = "default"
	VariantPrimary Variant = "primary"
	VariantSuccess Variant = "success"
	VariantWarning Variant = "warning"
	VariantDanger  Variant = "danger"
)

// knownVariants guards against model-invented styles.
var knownVariants = map[Variant]bool{
	VariantDefault: true,
	VariantPrimary: true,
	VariantSuccess: true,
	VariantWarning: true,
	VariantDanger:  true,
}

// Action is one actionable suggestion attached to a response.
type Action struct {
	// Label is the user-visible button text.
	Label string `json:"label"`

	// Command names the operation to dispatch when activated.
	Command string `json:"command"`

	// Variant is the visual weight. Unknown values fall back to default.
	Variant Variant `json:"variant,omitempty"`

	// Icon is an optional icon hint.
	Icon string `json:"icon,omitempty"`

	// Params carries command arguments verbatim.
	Params map[string]string `json:"params,omitempty"`
}

// CardHeader is an optional summary card for the response.
type CardHeader struct {
	Title       string `json:"title"`
	Icon        string `json:"icon,omitempty"`
	AccentColor string `json:"accentColor,omitempty"`
}

// Parsed is the result of splitting a response into display text and
// directives.
type Parsed struct {
	// DisplayText is the response with all directive lines removed and
	// surrounding whitespace trimmed.
	DisplayText string

	// Actions are the decoded action entries, nil when absent or invalid.
	Actions []Action

	// Card is the decoded card header, nil when absent or invalid.
	Card *CardHeader
}

const (
	cardPrefix    = "CARD:"
	actionsPrefix = "ACTIONS:"
)

// Parse splits text into display content and directives. Safe on partial
// input: it never fails, and an incomplete or malformed payload simply yields
// no directive. The first well-formed occurrence of each directive wins;
// later duplicates are stripped but ignored.
func Parse(text string) Parsed {
	var p Parsed
	if text == "" {
		return p
	}

	var display []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, cardPrefix):
			payload := strings.TrimSpace(trimmed[len(cardPrefix):])
			if p.Card == nil {
				p.Card = parseCard(payload)
			}
		case strings.HasPrefix(trimmed, actionsPrefix):
			payload := strings.TrimSpace(trimmed[len(actionsPrefix):])
			if p.Actions == nil {
				p.Actions = parseActions(payload)
			}
		default:
			display = append(display, line)
		}
	}

	p.DisplayText = strings.TrimSpace(strings.Join(display, "\n"))
	return p
}

// parseCard decodes one card payload, nil unless balanced and valid.
func parseCard(payload string) *CardHeader {
	obj, ok := balancedJSON(payload, '{', '}')
	if !ok {
		return nil
	}
	var card CardHeader
	if err := json.Unmarshal([]byte(obj), &card); err != nil {
		return nil
	}
	if card.Title == "" {
		return nil
	}
	return &card
}

// parseActions decodes one actions payload, nil unless balanced and valid.
// Entries missing a label or command are dropped; an unknown variant falls
// back to default.
func parseActions(payload string) []Action {
	arr, ok := balancedJSON(payload, '[', ']')
	if !ok {
		return nil
	}
	var raw []Action
	if err := json.Unmarshal([]byte(arr), &raw); err != nil {
		return nil
	}

	actions := make([]Action, 0, len(raw))
	for _, a := range raw {
		if a.Label == "" || a.Command == "" {
			continue
		}
		if !knownVariants[a.Variant] {
			a.Variant = VariantDefault
		}
		actions = append(actions, a)
	}
	if len(actions) == 0 {
		return nil
	}
	return actions
}

// balancedJSON extracts the first complete JSON value delimited by open/close
// from s, tracking string and escape state so braces inside string literals
// do not count. Reports false when the value has not closed yet, which is the
// normal condition while a directive payload is still streaming in.
func balancedJSON(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
