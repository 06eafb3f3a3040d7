package directive

import "testing"

func TestParse_PlainText(t *testing.T) {
	p := Parse("Just a reply.\nWith two lines.")
	if p.DisplayText != "Just a reply.\nWith two lines." {
		t.Errorf("DisplayText = %q", p.DisplayText)
	}
	if p.Actions != nil {
		t.Errorf("Actions = %v, want nil", p.Actions)
	}
	if p.Card != nil {
		t.Errorf("Card = %v, want nil", p.Card)
	}
}

func TestParse_ActionsRoundTrip(t *testing.T) {
	p := Parse("Done.\nACTIONS: [{\"label\":\"A\",\"command\":\"c\"}]")
	if p.DisplayText != "Done." {
		t.Errorf("DisplayText = %q, want %q", p.DisplayText, "Done.")
	}
	if len(p.Actions) != 1 {
		t.Fatalf("len(Actions) = %d, want 1", len(p.Actions))
	}
	act := p.Actions[0]
	if act.Label != "A" || act.Command != "c" {
		t.Errorf("action = %+v", act)
	}
	if act.Variant != VariantDefault {
		t.Errorf("Variant = %q, want default", act.Variant)
	}
}

func TestParse_CardAndActions(t *testing.T) {
	text := "Here's the weather.\n" +
		`CARD: {"title":"Weather","icon":"sun","accentColor":"#fc3"}` + "\n" +
		`ACTIONS: [{"label":"Refresh","command":"refresh","variant":"primary","params":{"city":"Berlin"}}]`
	p := Parse(text)

	if p.DisplayText != "Here's the weather." {
		t.Errorf("DisplayText = %q", p.DisplayText)
	}
	if p.Card == nil {
		t.Fatal("Card = nil")
	}
	if p.Card.Title != "Weather" || p.Card.Icon != "sun" || p.Card.AccentColor != "#fc3" {
		t.Errorf("Card = %+v", p.Card)
	}
	if len(p.Actions) != 1 {
		t.Fatalf("len(Actions) = %d, want 1", len(p.Actions))
	}
	if p.Actions[0].Variant != VariantPrimary {
		t.Errorf("Variant = %q, want primary", p.Actions[0].Variant)
	}
	if p.Actions[0].Params["city"] != "Berlin" {
		t.Errorf("Params = %v", p.Actions[0].Params)
	}
}

func TestParse_TruncatedPayloadIsHiddenButIgnored(t *testing.T) {
	// Mid-stream: the directive line has started arriving but its JSON is
	// not balanced yet. It must be stripped from display and yield nothing.
	truncations := []string{
		"Done.\nACTIONS: [",
		"Done.\nACTIONS: [{\"label\":\"A\",",
		"Done.\nACTIONS: [{\"label\":\"A\",\"command\":\"c\"}",
		"Done.\nCARD: {\"title\":\"We",
	}
	for _, text := range truncations {
		p := Parse(text)
		if p.DisplayText != "Done." {
			t.Errorf("Parse(%q).DisplayText = %q, want %q", text, p.DisplayText, "Done.")
		}
		if p.Actions != nil || p.Card != nil {
			t.Errorf("Parse(%q) produced directives from unbalanced JSON", text)
		}
	}
}

func TestParse_MalformedJSONIgnored(t *testing.T) {
	p := Parse("Done.\nACTIONS: [{\"label\":}]")
	if p.DisplayText != "Done." {
		t.Errorf("DisplayText = %q", p.DisplayText)
	}
	if p.Actions != nil {
		t.Errorf("Actions = %v, want nil", p.Actions)
	}
}

func TestParse_GrowingTextMonotonic(t *testing.T) {
	full := "Sure.\nACTIONS: [{\"label\":\"Go\",\"command\":\"open_url\",\"params\":{\"url\":\"https://example.com\"}}]"
	var final Parsed
	for i := 1; i <= len(full); i++ {
		final = Parse(full[:i])
	}
	if final.DisplayText != "Sure." {
		t.Errorf("DisplayText = %q", final.DisplayText)
	}
	if len(final.Actions) != 1 || final.Actions[0].Command != "open_url" {
		t.Errorf("Actions = %+v", final.Actions)
	}
}

func TestParse_FirstWellFormedWins(t *testing.T) {
	text := "Hi.\n" +
		`ACTIONS: [{"label":"First","command":"a"}]` + "\n" +
		`ACTIONS: [{"label":"Second","command":"b"}]`
	p := Parse(text)
	if p.DisplayText != "Hi." {
		t.Errorf("DisplayText = %q", p.DisplayText)
	}
	if len(p.Actions) != 1 || p.Actions[0].Label != "First" {
		t.Errorf("Actions = %+v, want only the first directive", p.Actions)
	}
}

func TestParse_DropsEntriesMissingLabelOrCommand(t *testing.T) {
	text := `ACTIONS: [{"label":"A","command":"c"},{"label":"NoCmd"},{"command":"orphan"}]`
	p := Parse(text)
	if len(p.Actions) != 1 {
		t.Fatalf("len(Actions) = %d, want 1", len(p.Actions))
	}
	if p.Actions[0].Label != "A" {
		t.Errorf("kept wrong entry: %+v", p.Actions[0])
	}
}

func TestParse_UnknownVariantFallsBack(t *testing.T) {
	p := Parse(`ACTIONS: [{"label":"A","command":"c","variant":"sparkly"}]`)
	if len(p.Actions) != 1 {
		t.Fatalf("len(Actions) = %d, want 1", len(p.Actions))
	}
	if p.Actions[0].Variant != VariantDefault {
		t.Errorf("Variant = %q, want default", p.Actions[0].Variant)
	}
}

func TestParse_BracesInsideStrings(t *testing.T) {
	p := Parse(`ACTIONS: [{"label":"A }] tricky","command":"c"}]`)
	if len(p.Actions) != 1 {
		t.Fatalf("len(Actions) = %d, want 1", len(p.Actions))
	}
	if p.Actions[0].Label != "A }] tricky" {
		t.Errorf("Label = %q", p.Actions[0].Label)
	}
}

func TestParse_CardMissingTitleIgnored(t *testing.T) {
	p := Parse(`CARD: {"icon":"sun"}`)
	if p.Card != nil {
		t.Errorf("Card = %+v, want nil", p.Card)
	}
}

func TestParse_ReminderScenario(t *testing.T) {
	text := "I'll remind you in 30 seconds.\n" +
		`ACTIONS: [{"label":"Cancel reminder","command":"schedule_notification","params":{"title":"NeuralOS Reminder","body":"Time to drink water!","delay":"30"}}]`
	p := Parse(text)
	if len(p.Actions) != 1 {
		t.Fatalf("len(Actions) = %d, want 1", len(p.Actions))
	}
	params := p.Actions[0].Params
	if params["title"] != "NeuralOS Reminder" {
		t.Errorf("title = %q", params["title"])
	}
	if params["body"] != "Time to drink water!" {
		t.Errorf("body = %q", params["body"])
	}
	if params["delay"] != "30" {
		t.Errorf("delay = %q", params["delay"])
	}
}

func TestParse_Empty(t *testing.T) {
	p := Parse("")
	if p.DisplayText != "" || p.Actions != nil || p.Card != nil {
		t.Errorf("Parse(\"\") = %+v, want zero value", p)
	}
}
