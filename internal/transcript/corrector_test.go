package transcript

import "testing"

func TestCorrect_PhoneticNearMiss(t *testing.T) {
	c := NewCorrector([]string{"Jira", "Kubernetes"})

	got := c.Correct("file it in jura please")
	want := "file it in Jira please"
	if got != want {
		t.Errorf("Correct = %q, want %q", got, want)
	}
}

func TestCorrect_PreservesPunctuation(t *testing.T) {
	c := NewCorrector([]string{"Jira"})

	got := c.Correct("check jura, then reply")
	want := "check Jira, then reply"
	if got != want {
		t.Errorf("Correct = %q, want %q", got, want)
	}
}

func TestCorrect_SpellingDrift(t *testing.T) {
	c := NewCorrector([]string{"NeuralOS"})

	got := c.Correct("ask nuralos about it")
	want := "ask NeuralOS about it"
	if got != want {
		t.Errorf("Correct = %q, want %q", got, want)
	}
}

func TestCorrect_ExactMatchLeftAlone(t *testing.T) {
	c := NewCorrector([]string{"Jira"})

	// A case-insensitive exact match is already the right word; the corrector
	// does not rewrite its casing.
	got := c.Correct("jira is down")
	if got != "jira is down" {
		t.Errorf("Correct = %q, want input unchanged", got)
	}
}

func TestCorrect_UnrelatedWordsUntouched(t *testing.T) {
	c := NewCorrector([]string{"Jira"})

	in := "a banana and an apple"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct = %q, want input unchanged", got)
	}
}

func TestCorrect_ShortWordsSkipped(t *testing.T) {
	c := NewCorrector([]string{"Go"})

	in := "go do it"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct = %q, want input unchanged", got)
	}
}

func TestCorrect_EmptyVocabularyPassThrough(t *testing.T) {
	c := NewCorrector(nil)

	in := "anything at all"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct = %q, want input unchanged", got)
	}
}

func TestCorrect_BlankVocabularyEntriesSkipped(t *testing.T) {
	c := NewCorrector([]string{"", "  ", "Jira"})

	got := c.Correct("open jura now")
	want := "open Jira now"
	if got != want {
		t.Errorf("Correct = %q, want %q", got, want)
	}
}
