package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/persistorai/graphrouter/internal/models"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultFailureThreshold = 5
	defaultCooldown         = 30 * time.Second
	maxResponseBytes        = 10 << 20
)

// Config configures the Ollama client.
type Config struct {
	URL        string
	Model      string
	EmbedModel string
	Timeout    time.Duration
	// LocalOnly restricts connections to loopback addresses.
	LocalOnly bool
	// FailureThreshold consecutive failures open the breaker for Cooldown.
	FailureThreshold uint32
	Cooldown         time.Duration
}

// OllamaClient implements Scorer, Extractor, Embedder and Reasoner against
// Ollama's /api/chat and /api/embed endpoints. A circuit breaker fails calls
// fast while the provider is down.
type OllamaClient struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Logger
}

var (
	_ Scorer    = (*OllamaClient)(nil)
	_ Extractor = (*OllamaClient)(nil)
	_ Embedder  = (*OllamaClient)(nil)
	_ Reasoner  = (*OllamaClient)(nil)
)

// NewOllama creates a client for the given endpoint and model.
func NewOllama(cfg Config, log *logrus.Logger) *OllamaClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}

	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}

	if cfg.EmbedModel == "" {
		cfg.EmbedModel = cfg.Model
	}

	cfg.URL = strings.TrimRight(cfg.URL, "/")

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.LocalOnly {
		httpClient.Transport = &http.Transport{DialContext: loopbackDialer}
	}

	threshold := cfg.FailureThreshold

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ollama",
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("llm circuit breaker state changed")
		},
	})

	return &OllamaClient{cfg: cfg, client: httpClient, breaker: breaker, log: log}
}

func loopbackDialer(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolving llm host: %w", err)
	}

	for _, ip := range ips {
		if !ip.IP.IsLoopback() {
			return nil, fmt.Errorf("llm connections restricted to localhost")
		}
	}

	return (&net.Dialer{}).DialContext(ctx, network, addr)
}

// call runs fn through the breaker and wraps every failure in a ProviderError.
func (c *OllamaClient) call(fn func() error) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	if err == nil {
		return nil
	}

	return &models.ProviderError{Provider: "ollama", Err: err}
}

func (c *OllamaClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling ollama %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.

		return fmt.Errorf("ollama %s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}

	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// chatJSON sends one system+user exchange in JSON mode and decodes the reply into out.
func (c *OllamaClient) chatJSON(ctx context.Context, system, user string, out any) error {
	return c.call(func() error {
		var resp chatResponse

		err := c.post(ctx, "/api/chat", chatRequest{
			Model: c.cfg.Model,
			Messages: []chatMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			Format:  "json",
			Options: map[string]any{"temperature": 0},
		}, &resp)
		if err != nil {
			return err
		}

		if err := json.Unmarshal([]byte(resp.Message.Content), out); err != nil {
			return fmt.Errorf("model returned invalid JSON: %w", err)
		}

		return nil
	})
}

const scoreSystem = `You decide whether two knowledge-graph records describe the same real-world entity.
Respond with a JSON object {"score": <number between 0 and 1>, "reason": "<short reason>"}.`

// ScoreSimilarity asks the model for a sameness likelihood. Scores outside
// [0,1] are clamped.
func (c *OllamaClient) ScoreSimilarity(ctx context.Context, a, b models.Node) (float64, error) {
	pa, _ := json.Marshal(map[string]any{"label": a.Label, "properties": Salient(a)}) //nolint:errcheck // decoded JSON values.
	pb, _ := json.Marshal(map[string]any{"label": b.Label, "properties": Salient(b)}) //nolint:errcheck // decoded JSON values.

	var out struct {
		Score *float64 `json:"score"`
	}

	if err := c.chatJSON(ctx, scoreSystem, "Record A: "+string(pa)+"\nRecord B: "+string(pb), &out); err != nil {
		return 0, err
	}

	if out.Score == nil {
		return 0, &models.ProviderError{Provider: "ollama", Err: errors.New("response has no score")}
	}

	return Clamp(*out.Score), nil
}

// Extract asks the model to fill the schema's fields from text. Fields the
// model omits are absent from the result.
func (c *OllamaClient) Extract(ctx context.Context, text string, schema map[string]string) (map[string]any, error) {
	fields := make([]string, 0, len(schema))
	for name, typ := range schema {
		fields = append(fields, fmt.Sprintf("%q (%s)", name, typ))
	}

	sort.Strings(fields)

	system := "Extract structured data from the user's text. Respond with a JSON object containing only these keys: " +
		strings.Join(fields, ", ") + ". Omit keys the text does not support."

	out := map[string]any{}
	if err := c.chatJSON(ctx, system, text, &out); err != nil {
		return nil, err
	}

	for k := range out {
		if _, ok := schema[k]; !ok {
			delete(out, k)
		}
	}

	return out, nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed produces a vector embedding for text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float64, error) {
	var vec []float64

	err := c.call(func() error {
		var resp embedResponse
		if err := c.post(ctx, "/api/embed", embedRequest{Model: c.cfg.EmbedModel, Input: text}, &resp); err != nil {
			return err
		}

		if len(resp.Embeddings) == 0 {
			return errors.New("ollama returned empty embeddings")
		}

		vec = resp.Embeddings[0]

		return nil
	})

	return vec, err
}

// Next asks the model for the next retrieval step.
func (c *OllamaClient) Next(ctx context.Context, p Prompt) (Decision, error) {
	var raw struct {
		Thought     string          `json:"thought"`
		Action      string          `json:"action"`
		ActionInput json.RawMessage `json:"action_input"`
		FinalAnswer string          `json:"final_answer"`
	}

	if err := c.chatJSON(ctx, reasonSystem(p), reasonUser(p), &raw); err != nil {
		return Decision{}, err
	}

	input, err := ParseActionInput(raw.ActionInput)
	if err != nil {
		return Decision{}, &models.ProviderError{Provider: "ollama", Err: err}
	}

	return Decision{
		Thought: raw.Thought,
		Action:  NormalizeAction(raw.Action),
		Input:   input,
		Answer:  raw.FinalAnswer,
	}, nil
}

// ParseActionInput accepts an object, a JSON-encoded object string, or nothing.
func ParseActionInput(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("decoding action input: %w", err)
		}

		if strings.TrimSpace(s) == "" {
			return map[string]any{}, nil
		}

		trimmed = []byte(s)
	}

	out := map[string]any{}
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("action input is not a JSON object: %w", err)
	}

	return out, nil
}

func reasonSystem(p Prompt) string {
	var b strings.Builder

	b.WriteString("You answer questions about a graph database using read-only tools. ")
	b.WriteString("Explore direct and indirect relationships one step at a time.\n\n")

	if p.Schema != "" {
		b.WriteString("Ontology:\n")
		b.WriteString(p.Schema)
		b.WriteString("\n\n")
	}

	b.WriteString("Tools:\n")

	for _, t := range p.Tools {
		fmt.Fprintf(&b, "- %s: %s Example input: %s\n", t.Name, t.Description, t.Example)
	}

	fmt.Fprintf(&b, "- %s: stop and give the final answer.\n\n", ActionFinish)
	b.WriteString(`Respond with a JSON object {"thought": "...", "action": "<tool name>", "action_input": {...}, "final_answer": "..."}.`)

	return b.String()
}

func reasonUser(p Prompt) string {
	var b strings.Builder

	b.WriteString("Question: ")
	b.WriteString(p.Question)

	for i, s := range p.Steps {
		input, _ := json.Marshal(s.Input) //nolint:errcheck // decoded JSON values.

		fmt.Fprintf(&b, "\n\nStep %d\nThought: %s\nAction: %s\nInput: %s\n", i+1, s.Thought, s.Action, input)

		if s.Error != "" {
			fmt.Fprintf(&b, "Error: %s", s.Error)
		} else {
			fmt.Fprintf(&b, "Output: %s", s.Output)
		}
	}

	return b.String()
}
