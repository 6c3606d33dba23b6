package analyzer

import (
	"strings"
	"testing"
)

func TestParseResultAcceptsPlainJSON(t *testing.T) {
	output := `{"stage":"qualified","confidence":85,"reasoning":"Budget and timeline confirmed.","sentiment":"positive","objections":[],"followups":["Send design call invite"]}`

	result, err := ParseResult(output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stage != "qualified" {
		t.Fatalf("unexpected stage: %q", result.Stage)
	}
	if result.Confidence != 85 {
		t.Fatalf("unexpected confidence: %d", result.Confidence)
	}
	if len(result.Followups) != 1 {
		t.Fatalf("unexpected followups: %v", result.Followups)
	}
}

func TestParseResultStripsMarkdownFences(t *testing.T) {
	output := "```json\n" + `{"stage":"no_change","confidence":40,"reasoning":"Nothing decided on the call.","sentiment":"neutral","objections":["price"],"followups":[]}` + "\n```"

	result, err := ParseResult(output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stage != NoChange {
		t.Fatalf("expected no_change, got %q", result.Stage)
	}
	if len(result.Objections) != 1 || result.Objections[0] != "price" {
		t.Fatalf("unexpected objections: %v", result.Objections)
	}
}

func TestParseResultRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"no json":           "the customer seemed happy",
		"unknown stage":     `{"stage":"closed_won","confidence":90,"reasoning":"x","sentiment":"positive","objections":[],"followups":[]}`,
		"confidence range":  `{"stage":"qualified","confidence":140,"reasoning":"x","sentiment":"positive","objections":[],"followups":[]}`,
		"bad sentiment":     `{"stage":"qualified","confidence":80,"reasoning":"x","sentiment":"ecstatic","objections":[],"followups":[]}`,
		"missing reasoning": `{"stage":"qualified","confidence":80,"reasoning":"","sentiment":"positive","objections":[],"followups":[]}`,
		"unknown field":     `{"stage":"qualified","confidence":80,"reasoning":"x","sentiment":"positive","objections":[],"followups":[],"nextCall":"tomorrow"}`,
	}

	for name, output := range cases {
		if _, err := ParseResult(output); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseResultDefaultsNilSlices(t *testing.T) {
	output := `{"stage":"qualified","confidence":70,"reasoning":"Solid discovery call.","sentiment":"positive"}`

	result, err := ParseResult(output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Objections == nil || result.Followups == nil {
		t.Fatalf("expected empty slices, got nil")
	}
}

func TestSystemPromptListsAllStages(t *testing.T) {
	prompt := systemPrompt()
	for _, fragment := range []string{"new_enquiry", "complete", "lost", NoChange} {
		if !strings.Contains(prompt, fragment) {
			t.Fatalf("prompt missing %q", fragment)
		}
	}
}
