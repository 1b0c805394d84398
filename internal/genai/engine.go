package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/resilience"
	"github.com/BTreeMap/ovnchat/internal/session"
)

// simpleIntents are answered from the fallback table without calling the model.
var simpleIntents = []string{"greeting", "thanks", "bye", "policy"}

var (
	thinkingBlock = regexp.MustCompile(`<thinking>[\s\S]*?</thinking>`)
	anyTag        = regexp.MustCompile(`<[^>]+>`)
	blankLines    = regexp.MustCompile(`\n{3,}`)
	jsonGreedy    = regexp.MustCompile(`\{[\s\S]*\}`)
	jsonLazy      = regexp.MustCompile(`\{[\s\S]*?\}`)
)

// Options steer GenerateResponse.
type Options struct {
	Intent   string
	Products []models.Product
	Context  session.FlowContext
	History  []session.Turn
	// Fast uses the short single-prompt path instead of the chain-of-thought one.
	Fast bool
}

// Interpretation is the model's reading of a short answer.
type Interpretation struct {
	Interpreted string  `json:"interpreted"`
	Type        string  `json:"type"`
	Value       string  `json:"value,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Solution is the model's analysis of a customer problem.
type Solution struct {
	ProblemType     string   `json:"problem_type,omitempty"`
	UnderstoodIssue string   `json:"understood_issue,omitempty"`
	NeedsMoreInfo   bool     `json:"needs_more_info"`
	InfoNeeded      []string `json:"info_needed,omitempty"`
	Solution        string   `json:"solution"`
	Response        string   `json:"response,omitempty"`
	SuggestedAction string   `json:"suggested_action"`
}

// Classification is an intent guess from the model.
type Classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Engine answers with the model when it is reachable and from canned text otherwise. No method
// returns an error.
type Engine struct {
	client *Client
	exec   *resilience.Executor
}

// NewEngine wraps client. A nil client yields an engine that only uses fallbacks; a nil
// executor gets the default "llm" executor.
func NewEngine(client *Client, exec *resilience.Executor) *Engine {
	if exec == nil {
		exec = resilience.NewExecutor(resilience.NameLLM)
	}
	return &Engine{client: client, exec: exec}
}

// Available reports whether a model is configured.
func (e *Engine) Available() bool {
	return e != nil && e.client != nil
}

func (e *Engine) call(ctx context.Context, req request) (string, error) {
	res := resilience.Execute(ctx, e.exec, func(ctx context.Context) (string, error) {
		return e.client.complete(ctx, req)
	}, nil)
	if res.Err != nil {
		return "", fmt.Errorf("%s: %w", req.method, models.ErrAIUnavailable)
	}
	return strings.TrimSpace(res.Value), nil
}

// GenerateResponse answers msg. Simple intents, an unavailable model, and failures all yield
// the fallback for the intent.
func (e *Engine) GenerateResponse(ctx context.Context, msg string, opts Options) string {
	if !e.Available() || slices.Contains(simpleIntents, opts.Intent) {
		return Fallback(opts.Intent, opts.Products)
	}

	var req request
	if opts.Fast {
		req = request{
			method:      "GenerateResponse.fast",
			fast:        true,
			messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(fmt.Sprintf(fastPrompt, msg))},
			maxTokens:   150,
			temperature: 0.7,
		}
	} else {
		req = request{
			method:      "GenerateResponse",
			messages:    fullMessages(msg, opts),
			maxTokens:   300,
			temperature: 0.7,
			topP:        0.9,
		}
	}

	out, err := e.call(ctx, req)
	if err != nil || out == "" {
		slog.Debug("Engine.GenerateResponse: using fallback", "intent", opts.Intent, "error", err)
		return Fallback(opts.Intent, opts.Products)
	}
	if !opts.Fast {
		out = CleanResponse(out)
	}
	return out
}

func fullMessages(msg string, opts Options) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(systemPrompt)}
	if info := contextInfo(opts); info != "" {
		messages = append(messages, openai.SystemMessage("CURRENT CONTEXT:\n"+info))
	}
	history := opts.History
	if len(history) > 4 {
		history = history[len(history)-4:]
	}
	for _, turn := range history {
		if turn.Content == "" {
			continue
		}
		switch turn.Role {
		case session.RoleUser:
			messages = append(messages, openai.UserMessage(turn.Content))
		case session.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		}
	}
	return append(messages, openai.UserMessage(thinkingPrompt+"\n\nUser: "+msg))
}

// contextInfo summarises what the conversation already knows.
func contextInfo(opts Options) string {
	var parts []string
	if opts.Intent != "" {
		parts = append(parts, "Detected intent: "+opts.Intent)
	}
	if n := len(opts.Products); n > 0 {
		parts = append(parts, fmt.Sprintf("Products found: %d", n))
		if n <= 3 {
			for _, p := range opts.Products {
				parts = append(parts, fmt.Sprintf("  - %s @ %s", models.TruncateRunes(p.Name, 50), models.FormatPrice(p.Price)))
			}
		}
	}
	if pc, ok := opts.Context.(*session.PlacementContext); ok {
		if pc.Product != nil {
			parts = append(parts, fmt.Sprintf("Selected: %s - %s", pc.Product.Name, models.FormatPrice(pc.Product.Price)))
		}
		if pc.Quantity > 0 {
			parts = append(parts, fmt.Sprintf("Quantity: %d", pc.Quantity))
		}
		if pc.CustomerName != "" {
			parts = append(parts, "Customer: "+pc.CustomerName)
		}
		if pc.ContactNumber != "" {
			parts = append(parts, "Phone: "+pc.ContactNumber)
		}
		if pc.District != "" {
			parts = append(parts, fmt.Sprintf("Location: %s, %s", pc.Location, pc.District))
		}
		if pc.DeliveryCharge > 0 {
			parts = append(parts, "Delivery: "+models.FormatPrice(pc.DeliveryCharge))
		}
	}
	return strings.Join(parts, "\n")
}

// CleanResponse strips thinking blocks and stray tags and squeezes blank lines.
func CleanResponse(s string) string {
	s = thinkingBlock.ReplaceAllString(s, "")
	s = anyTag.ReplaceAllString(s, "")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// InterpretResponse reads a short answer given what the bot expected ("confirmation",
// "phone", ...). Without a usable answer it returns the message itself with type "unknown".
func (e *Engine) InterpretResponse(ctx context.Context, msg, expected string) Interpretation {
	unknown := Interpretation{Interpreted: msg, Type: "unknown", Confidence: 0.5}
	if !e.Available() {
		return unknown
	}
	out, err := e.call(ctx, request{
		method:      "InterpretResponse",
		fast:        true,
		messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(fmt.Sprintf(interpretPrompt, expected, msg))},
		maxTokens:   100,
		temperature: 0.2,
	})
	if err != nil {
		return unknown
	}
	obj := jsonLazy.FindString(out)
	if obj == "" || !gjson.Valid(obj) {
		return unknown
	}
	r := gjson.Parse(obj)
	in := Interpretation{
		Interpreted: r.Get("interpreted").String(),
		Type:        r.Get("type").String(),
		Value:       r.Get("value").String(),
		Confidence:  r.Get("confidence").Float(),
	}
	if in.Interpreted == "" {
		in.Interpreted = msg
	}
	return in
}

// IsConfirmation asks the model whether msg means yes.
func (e *Engine) IsConfirmation(ctx context.Context, msg string) bool {
	in := e.InterpretResponse(ctx, msg, "confirmation")
	return in.Type == "confirmation" && in.Confidence > 0.6
}

// IsRejection asks the model whether msg means no.
func (e *Engine) IsRejection(ctx context.Context, msg string) bool {
	in := e.InterpretResponse(ctx, msg, "rejection")
	return in.Type == "rejection" && in.Confidence > 0.6
}

// SolveProblem analyses a customer issue. The reply is free text when the model returns no
// JSON object.
func (e *Engine) SolveProblem(ctx context.Context, problem string, details map[string]any) Solution {
	if !e.Available() {
		return Solution{
			Solution:        "I'd be happy to help! Could you please provide more details?",
			NeedsMoreInfo:   true,
			SuggestedAction: "ask_details",
		}
	}
	ctxText := "No additional context"
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			ctxText = string(b)
		}
	}
	out, err := e.call(ctx, request{
		method: "SolveProblem",
		messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a problem-solving AI. Always respond with valid JSON."),
			openai.UserMessage(fmt.Sprintf(problemPrompt, problem, ctxText)),
		},
		maxTokens:   500,
		temperature: 0.5,
	})
	if err != nil {
		return Solution{
			Solution:        "I understand you have a concern. Let me help you with that.",
			NeedsMoreInfo:   true,
			SuggestedAction: "ask_details",
		}
	}
	var sol Solution
	if obj := jsonGreedy.FindString(out); obj != "" && json.Unmarshal([]byte(obj), &sol) == nil {
		return sol
	}
	return Solution{Solution: out, SuggestedAction: "none"}
}

// ClassifyIntent asks the model for an intent. It returns general/0.5 when it cannot.
func (e *Engine) ClassifyIntent(ctx context.Context, msg string) Classification {
	def := Classification{Intent: "general", Confidence: 0.5}
	if !e.Available() {
		return def
	}
	out, err := e.call(ctx, request{
		method:      "ClassifyIntent",
		fast:        true,
		messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(fmt.Sprintf(classifyPrompt, msg))},
		maxTokens:   50,
		temperature: 0.2,
	})
	if err != nil {
		return def
	}
	obj := jsonLazy.FindString(out)
	if obj == "" || !gjson.Valid(obj) {
		return def
	}
	r := gjson.Parse(obj)
	c := Classification{Intent: r.Get("intent").String(), Confidence: 0.7}
	if conf := r.Get("confidence"); conf.Exists() {
		c.Confidence = conf.Float()
	}
	if c.Intent == "" {
		c.Intent = "general"
	}
	return c
}

// EnhanceResponse rewrites a handler reply to sound more natural, or returns it unchanged.
func (e *Engine) EnhanceResponse(ctx context.Context, base string) string {
	if !e.Available() || base == "" {
		return base
	}
	out, err := e.call(ctx, request{
		method: "EnhanceResponse",
		messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You improve chatbot responses to be natural and friendly."),
			openai.UserMessage(fmt.Sprintf(enhancePrompt, base)),
		},
		maxTokens:   200,
		temperature: 0.7,
	})
	if err != nil || out == "" {
		return base
	}
	return out
}

// Fallback returns the canned answer for intent.
func Fallback(intent string, products []models.Product) string {
	if intent == "product_search" {
		if len(products) > 0 {
			return fmt.Sprintf("🔍 Here are %d products I found!", len(products))
		}
		return "🔍 Here are some products I found!"
	}
	if msg, ok := fallbacks[intent]; ok {
		return msg
	}
	return fallbacks["general"]
}
