package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

type OpenAIConfig struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
	Temperature  float32
	MaxRetries   int
	Timeout      time.Duration
}

const defaultSystemPrompt = "You write draft content for a business tool. " +
	"Reply with one JSON object whose keys are the requested fields and whose values are the field contents."

type openaiGenerator struct {
	log        *logger.Logger
	client     *openai.Client
	model      string
	system     string
	temp       float32
	maxRetries int
	sleep      func(time.Duration)
}

func NewOpenAI(cfg OpenAIConfig, baseLog *logger.Logger) (Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		oc.BaseURL = base
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.GPT4oMini
	}
	system := strings.TrimSpace(cfg.SystemPrompt)
	if system == "" {
		system = defaultSystemPrompt
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	genLog := baseLog.With("service", "OpenAIGenerator")
	genLog.Info("OpenAI generator initialized", "model", model)
	return &openaiGenerator{
		log:        genLog,
		client:     openai.NewClientWithConfig(oc),
		model:      model,
		system:     system,
		temp:       cfg.Temperature,
		maxRetries: retries,
		sleep:      time.Sleep,
	}, nil
}

func (g *openaiGenerator) Generate(ctx context.Context, req Request) (map[string]any, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, Fail(err, false)
	}
	chat := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    g.temp,
	}

	backoff := time.Second
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, Fail(err, true)
		}
		resp, err := g.client.CreateChatCompletion(ctx, chat)
		if err == nil {
			return decodeContent(resp, req.Fields)
		}
		if !isTransient(err) || attempt == g.maxRetries {
			return nil, Fail(fmt.Errorf("openai chat completion: %w", err), isTransient(err))
		}
		sleepFor := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		g.log.Warn("OpenAI request retrying",
			"attempt", attempt+1,
			"max_retries", g.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		g.sleep(sleepFor)
		backoff *= 2
	}
	return nil, Failf("unreachable retry loop")
}

func buildPrompt(req Request) (string, error) {
	inputs, err := json.Marshal(req.Inputs)
	if err != nil {
		return "", fmt.Errorf("encode inputs: %w", err)
	}
	var b strings.Builder
	if req.Tool != "" {
		fmt.Fprintf(&b, "Tool: %s\n", req.Tool)
	}
	if len(req.Fields) > 0 {
		fields := append([]string(nil), req.Fields...)
		sort.Strings(fields)
		fmt.Fprintf(&b, "Fields: %s\n", strings.Join(fields, ", "))
	}
	fmt.Fprintf(&b, "Inputs: %s\n", inputs)
	return b.String(), nil
}

func decodeContent(resp openai.ChatCompletionResponse, fields []string) (map[string]any, error) {
	if len(resp.Choices) == 0 {
		return nil, Failf("openai returned no choices")
	}
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	if raw == "" {
		return nil, Failf("openai returned empty content")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, Fail(fmt.Errorf("openai content is not a JSON object: %w", err), false)
	}
	if out == nil {
		return nil, Failf("openai content is null")
	}
	var missing []string
	for _, f := range fields {
		if _, ok := out[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, Fail(errors.New("openai content missing fields: "+strings.Join(missing, ", ")), true)
	}
	return out, nil
}
