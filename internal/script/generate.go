package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"unicode"

	"github.com/podforge/podforge/internal/config"
)

// Generator is the external script-writing collaborator: it must produce a
// script in the turn format ParseTurns consumes, using exactly the two host
// names it is given.
type Generator interface {
	Generate(ctx context.Context, topic, model, hostA, hostB string) (string, error)
	Models(ctx context.Context) ([]string, error)
}

// NewGenerator builds a generator from config.
func NewGenerator(cfg config.GeneratorConfig) (Generator, error) {
	switch cfg.Mode {
	case "mock":
		return &mockGenerator{}, nil
	case "ollama":
		return &ollamaGenerator{
			endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
			fallbackModel: cfg.DefaultModel,
			temperature:   cfg.Temperature,
			topP:          cfg.TopP,
			client:        http.DefaultClient,
		}, nil
	default:
		return nil, fmt.Errorf("unknown generator mode %q", cfg.Mode)
	}
}

const systemPromptTemplate = `You are a helpful assistant. The user will provide you with a topic to write a podcast about. You should write an informative podcast (a la NPR) based on the topic. The podcast should cover all the topics and key points the user requests.

The podcast has two hosts, {host_a} and {host_b}. {host_a} is a intelligent, informative host who is always excited to talk about the topic. {host_b} is a more skeptical host, asking questions to {host_a} about the topic for her to answer and adding his own thoughts to her response. Together the hosts do an excellent job of breaking down the topic and hit all the key points the user requests.

Your response should be a series of conversation turns, where each turn starts with the speaker's name in the format "<|speaker_name|>: " followed by their dialogue. Each turn should be separated by a blank line.

Example format:
<|{host_a}|>: [First host's dialogue]

<|{host_b}|>: [Second host's dialogue]

<|{host_a}|>: [First host's response]`

func systemPrompt(hostA, hostB string) string {
	return strings.NewReplacer(
		"{host_a}", titleCase(hostA),
		"{host_b}", titleCase(hostB),
	).Replace(systemPromptTemplate)
}

func titleCase(name string) string {
	runes := []rune(strings.TrimSpace(name))
	if len(runes) == 0 {
		return ""
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

type ollamaGenerator struct {
	endpoint      string
	fallbackModel string
	temperature   float64
	topP          float64
	client        *http.Client
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (g *ollamaGenerator) Generate(ctx context.Context, topic, model, hostA, hostB string) (string, error) {
	if model == "" {
		model = g.fallbackModel
	}
	payload := ollamaRequest{
		Model:  model,
		Prompt: fmt.Sprintf("%s\n\nTopic: %s", systemPrompt(hostA, hostB), topic),
		Stream: false,
		Options: ollamaOptions{
			Temperature: g.temperature,
			TopP:        g.topP,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate script: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("script model returned status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read script response: %w", err)
	}
	var out ollamaResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode script response: %w", err)
	}
	return out.Response, nil
}

// Models lists the models the endpoint serves, falling back to the
// configured default when the endpoint is unreachable.
func (g *ollamaGenerator) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"/api/tags", nil)
	if err != nil {
		return []string{g.fallbackModel}, nil
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return []string{g.fallbackModel}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return []string{g.fallbackModel}, nil
	}

	var tags ollamaTags
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return []string{g.fallbackModel}, nil
	}
	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	if len(models) == 0 {
		return []string{g.fallbackModel}, nil
	}
	sort.Strings(models)
	return models, nil
}

type mockGenerator struct{}

func (mockGenerator) Generate(_ context.Context, topic, _, hostA, hostB string) (string, error) {
	a, b := titleCase(hostA), titleCase(hostB)
	return fmt.Sprintf(
		"<|%s|>: Welcome back! Today we are talking about %s.\n\n"+
			"<|%s|>: Really? What makes %s worth a whole episode?\n\n"+
			"<|%s|>: Stick around and find out.",
		a, topic, b, topic, a), nil
}

func (mockGenerator) Models(context.Context) ([]string, error) {
	return []string{"mock"}, nil
}
