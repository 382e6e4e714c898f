// Package assistant asks a chat model for a plain-language preparedness
// summary of a county's blackout risk.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lox/solixa/internal/config"
	"github.com/lox/solixa/internal/htmlutil"
	"github.com/lox/solixa/internal/httputil"
	"github.com/lox/solixa/internal/metrics"
	"github.com/lox/solixa/internal/outage"
	"github.com/lox/solixa/internal/risk"
	"github.com/lox/solixa/internal/weather"
)

const SystemPrompt = "You are Solixa, an emergency preparedness assistant. " +
	"Summarize the county blackout risk and provide 3-5 practical steps. " +
	"Keep it factual, concise, and community-focused."

const (
	maxTokens         = 800
	maxQuestionLength = 500
	requestTimeout    = 30 * time.Second
)

var ErrNotConfigured = errors.New("chat assistant is not configured")

// CountyBrief is the context sent to the model.
type CountyBrief struct {
	FIPS       string           `json:"fips"`
	County     string           `json:"county,omitempty"`
	State      string           `json:"state,omitempty"`
	Risk       float64          `json:"county_risk"`
	MLRisk     float64          `json:"ml_risk"`
	SVI        float64          `json:"svi"`
	Weather    *weather.Summary `json:"weather,omitempty"`
	Outage     *outage.Summary  `json:"outages,omitempty"`
	Assessment *risk.Assessment `json:"assessment,omitempty"`
	Question   string           `json:"-"`
}

type Assistant struct {
	client openai.Client
	model  string
}

// New returns ErrNotConfigured when no API key is set.
func New(cfg config.AssistantConfig) (*Assistant, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httputil.NewClient(requestTimeout)),
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &Assistant{client: openai.NewClient(opts...), model: model}, nil
}

// Prompt renders the user message for a brief.
func Prompt(brief CountyBrief) (string, error) {
	data, err := json.MarshalIndent(brief, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode county brief: %w", err)
	}
	var b strings.Builder
	b.WriteString("County data:\n")
	b.Write(data)
	b.WriteString("\n\nExplain what is happening and recommend actions.")
	if q := strings.TrimSpace(brief.Question); q != "" {
		b.WriteString("\nUser question: ")
		b.WriteString(htmlutil.Truncate(q, maxQuestionLength))
	}
	return b.String(), nil
}

// CountySummary returns the model's answer for a county.
func (a *Assistant) CountySummary(ctx context.Context, brief CountyBrief) (string, error) {
	prompt, err := Prompt(brief)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(maxTokens),
	})
	metrics.UpstreamLatency.WithLabelValues("openai").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamCallsTotal.WithLabelValues("openai", "error").Inc()
		return "", fmt.Errorf("%w: chat completion: %w", httputil.ErrUpstream, err)
	}
	metrics.UpstreamCallsTotal.WithLabelValues("openai", "ok").Inc()

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion returned no choices", httputil.ErrUpstream)
	}
	choice := resp.Choices[0]
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		if choice.FinishReason == "length" {
			return "Response incomplete (max tokens reached).", nil
		}
		return "No response text available.", nil
	}
	log.Printf("assistant: county %s summary (%d tokens)", brief.FIPS, resp.Usage.TotalTokens)
	return text, nil
}
