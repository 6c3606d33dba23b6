// Package analyzer turns post-call notes into a structured stage
// suggestion using an LLM. The model output is strict JSON; anything the
// validator rejects is treated as an analysis failure, never stored.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/google/uuid"

	"pipeline_backend/internal/opportunities/domain"
	"pipeline_backend/platform/ai/moonshot"
	"pipeline_backend/platform/config"
)

// NoChange is the sentinel stage value meaning the call does not justify a
// transition.
const NoChange = "no_change"

const appName = "stage_analyst"

// Input is everything the analyst sees about one completed call.
type Input struct {
	ContactName  string
	CurrentStage domain.Stage
	BookingType  string
	Notes        string
}

// Result is the validated suggestion produced by the model.
type Result struct {
	Stage      string   `json:"stage"`
	Confidence int      `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Sentiment  string   `json:"sentiment"`
	Objections []string `json:"objections"`
	Followups  []string `json:"followups"`
}

// Analyzer wraps an ADK agent over the Kimi model.
type Analyzer struct {
	agent          agent.Agent
	runner         *runner.Runner
	sessionService session.Service
}

// New builds the analyst agent. Returns nil when no API key is configured;
// callers treat a nil analyzer as an unavailable dependency.
func New(cfg config.SuggestionConfig) (*Analyzer, error) {
	if !cfg.IsSuggestionEnabled() {
		return nil, nil
	}

	kimi := moonshot.NewModel(moonshot.Config{
		APIKey: cfg.GetMoonshotAPIKey(),
		Model:  cfg.GetMoonshotModel(),
	})

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "StageAnalyst",
		Model:       kimi,
		Description: "Reads post-call notes from a home services sales pipeline and suggests the next pipeline stage.",
		Instruction: systemPrompt(),
	})
	if err != nil {
		return nil, fmt.Errorf("create analyst agent: %w", err)
	}

	sessionService := session.InMemoryService()

	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("create analyst runner: %w", err)
	}

	return &Analyzer{
		agent:          adkAgent,
		runner:         r,
		sessionService: sessionService,
	}, nil
}

// Analyze runs the model over the call notes and returns the validated
// suggestion.
func (a *Analyzer) Analyze(ctx context.Context, input Input) (*Result, error) {
	if a == nil || a.runner == nil {
		return nil, fmt.Errorf("analyzer is not configured")
	}

	userID := "analyst"
	sessionID := uuid.New().String()

	if _, err := a.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	}); err != nil {
		return nil, fmt.Errorf("create analyst session: %w", err)
	}
	defer func() {
		_ = a.sessionService.Delete(ctx, &session.DeleteRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: sessionID,
		})
	}()

	message := genai.NewContentFromText(buildUserMessage(input), genai.RoleUser)

	var output string
	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeNone}
	for event, err := range a.runner.Run(ctx, userID, sessionID, message, runConfig) {
		if err != nil {
			return nil, fmt.Errorf("analyst run failed: %w", err)
		}
		if event.Content != nil {
			for _, part := range event.Content.Parts {
				output += part.Text
			}
		}
	}

	return ParseResult(output)
}

func buildUserMessage(input Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Contact: %s\n", input.ContactName)
	fmt.Fprintf(&b, "Current stage: %s\n", input.CurrentStage)
	fmt.Fprintf(&b, "Call type: %s\n", input.BookingType)
	b.WriteString("Call notes:\n")
	b.WriteString(input.Notes)
	return b.String()
}

func systemPrompt() string {
	stages := make([]string, 0, len(domain.Stages()))
	for _, stage := range domain.Stages() {
		stages = append(stages, string(stage))
	}

	return fmt.Sprintf(`You are a sales operations analyst for a home services company.
You read the notes a salesperson wrote after a call and decide which pipeline
stage the opportunity should move to, if any.

The pipeline stages, in order, are: %s.

Respond with a single JSON object and nothing else, using exactly this shape:
{
  "stage": "<one of the stages above, or %q if the notes do not justify a move>",
  "confidence": <integer 0-100>,
  "reasoning": "<one or two sentences>",
  "sentiment": "<positive|neutral|negative>",
  "objections": ["<customer objections raised on the call>"],
  "followups": ["<concrete follow-up actions for the salesperson>"]
}

Rules:
- Never invent facts that are not in the notes.
- Suggest a stage the notes clearly support; when in doubt, use %q.
- Do not wrap the JSON in markdown fences or add commentary.`,
		strings.Join(stages, ", "), NoChange, NoChange)
}

// ParseResult validates the raw model output into a Result. It tolerates
// markdown fences and surrounding prose but rejects anything that is not a
// well-formed suggestion.
func ParseResult(output string) (*Result, error) {
	payload := extractJSON(output)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	var result Result
	decoder := json.NewDecoder(strings.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&result); err != nil {
		return nil, fmt.Errorf("decode suggestion: %w", err)
	}

	if result.Stage != NoChange && !domain.IsKnownStage(domain.Stage(result.Stage)) {
		return nil, fmt.Errorf("unknown suggested stage %q", result.Stage)
	}
	if result.Confidence < 0 || result.Confidence > 100 {
		return nil, fmt.Errorf("confidence %d out of range", result.Confidence)
	}
	switch result.Sentiment {
	case "positive", "neutral", "negative":
	default:
		return nil, fmt.Errorf("unknown sentiment %q", result.Sentiment)
	}
	if result.Reasoning == "" {
		return nil, fmt.Errorf("missing reasoning")
	}
	if result.Objections == nil {
		result.Objections = []string{}
	}
	if result.Followups == nil {
		result.Followups = []string{}
	}

	return &result, nil
}

// extractJSON pulls the outermost JSON object out of the model output,
// stripping markdown fences and stray prose.
func extractJSON(output string) string {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return output[start : end+1]
}
