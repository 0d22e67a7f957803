// Package llm adapts the heterogeneous Proposer/Validator LLM slots (spec
// §6.3) behind one uniform Invoke contract, routing Claude and Gemini calls
// through their native SDKs.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/lorekeeper/extractor/internal/common"
)

// Provider identifies a vendor family. The Proposer and Validator slots MUST
// be configured to distinct Providers to preserve the consensus property
// (spec §4.6, §9).
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderGemini Provider = "gemini"
)

// Request is the uniform LLM call contract (spec §6.3).
type Request struct {
	Provider Provider
	Model    string
	Prompt   string
	Schema   map[string]interface{}
	Timeout  time.Duration
}

// Response is the uniform LLM call result (spec §6.3).
type Response struct {
	JSON         map[string]interface{}
	InputTokens  int
	OutputTokens int
	RawText      string
	Latency      time.Duration
}

// ErrSchemaViolation is returned when a provider's response cannot be parsed
// as a JSON object or lacks a field the requested schema lists as required
// (spec §6.3, AgentParseError in spec §7). Field types are not checked.
var ErrSchemaViolation = fmt.Errorf("llm response did not conform to the requested schema")

// Factory creates and caches provider clients, and dispatches Invoke calls
// to the right vendor SDK. Adapted from the teacher's ProviderFactory
// (internal/services/llm/provider.go), narrowed to the Invoke(provider,
// model, prompt, schema, timeout) shape this engine's core depends on.
type Factory struct {
	claudeConfig common.ClaudeConfig
	geminiConfig common.GeminiConfig
	logger       arbor.ILogger

	geminiClient *genai.Client
	claudeClient *anthropic.Client
}

// NewFactory builds a Factory. Provider clients are created lazily on first
// use so a Factory can be constructed even if only one vendor's API key is
// configured (e.g. in tests exercising a single slot).
func NewFactory(claudeConfig common.ClaudeConfig, geminiConfig common.GeminiConfig, logger arbor.ILogger) *Factory {
	return &Factory{claudeConfig: claudeConfig, geminiConfig: geminiConfig, logger: logger}
}

func (f *Factory) getClaudeClient() *anthropic.Client {
	if f.claudeClient == nil {
		client := anthropic.NewClient(option.WithAPIKey(f.claudeConfig.APIKey))
		f.claudeClient = &client
	}
	return f.claudeClient
}

func (f *Factory) getGeminiClient(ctx context.Context) (*genai.Client, error) {
	if f.geminiClient != nil {
		return f.geminiClient, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  f.geminiConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	f.geminiClient = client
	return client, nil
}

// Invoke dispatches a request to the configured provider and enforces that
// the response parses as a JSON object carrying every field the schema's
// "required" list names. On a schema/parse violation it
// returns ErrSchemaViolation wrapped with provider context; callers (the
// Proposer/Validator agents) own fallback-model retry policy (spec §4.5).
func (f *Factory) Invoke(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	var (
		rawText             string
		inputTok, outputTok int
		err                 error
	)

	switch req.Provider {
	case ProviderClaude:
		rawText, inputTok, outputTok, err = f.invokeClaude(ctx, req)
	case ProviderGemini:
		rawText, inputTok, outputTok, err = f.invokeGemini(ctx, req)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", req.Provider)
	}

	latency := time.Since(start)
	if err != nil {
		return nil, err
	}

	parsed, perr := parseJSONObject(rawText)
	if perr != nil {
		return &Response{RawText: rawText, InputTokens: inputTok, OutputTokens: outputTok, Latency: latency},
			fmt.Errorf("%w: %v", ErrSchemaViolation, perr)
	}
	if required, ok := req.Schema["required"].([]string); ok {
		for _, key := range required {
			if _, present := parsed[key]; !present {
				return &Response{RawText: rawText, InputTokens: inputTok, OutputTokens: outputTok, Latency: latency},
					fmt.Errorf("%w: missing required field %q", ErrSchemaViolation, key)
			}
		}
	}

	return &Response{
		JSON:         parsed,
		InputTokens:  inputTok,
		OutputTokens: outputTok,
		RawText:      rawText,
		Latency:      latency,
	}, nil
}

// invokeClaude embeds the schema in the prompt (this SDK generation has no
// native response-schema parameter) and relies on Invoke's parse check, with
// the Proposer/Validator agents retrying on their fallback model, matching the
// teacher's agents/service.go validation-loop idiom of prompting for strict
// JSON and re-parsing the result.
func (f *Factory) invokeClaude(ctx context.Context, req Request) (string, int, int, error) {
	client := f.getClaudeClient()

	model := req.Model
	if model == "" {
		model = f.claudeConfig.Model
	}

	prompt := req.Prompt
	if len(req.Schema) > 0 {
		if schemaJSON, err := json.Marshal(req.Schema); err == nil {
			prompt = prompt + "\n\nRespond with a single JSON object matching this schema exactly:\n" + string(schemaJSON)
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	retryConfig := NewDefaultRetryConfig()

	var resp *anthropic.Message
	var apiErr error
	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		resp, apiErr = client.Messages.New(ctx, params)
		if apiErr == nil {
			break
		}
		if attempt == retryConfig.MaxRetries {
			break
		}

		backoff := time.Duration(attempt+1) * 2 * time.Second
		if IsRateLimitError(apiErr) {
			backoff = retryConfig.CalculateBackoff(attempt, 0)
		}
		f.logger.Warn().Int("attempt", attempt+1).Dur("backoff", backoff).Err(apiErr).Msg("retrying Claude API call")

		select {
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if apiErr != nil {
		return "", 0, 0, fmt.Errorf("claude API call failed after %d retries: %w", retryConfig.MaxRetries, apiErr)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", 0, 0, fmt.Errorf("empty response from Claude API")
	}

	return text.String(), int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens), nil
}

// invokeGemini uses genai's native ResponseSchema/ResponseMIMEType for
// schema-constrained structured output, adapted from the teacher's
// convertToGenaiSchema path.
func (f *Factory) invokeGemini(ctx context.Context, req Request) (string, int, int, error) {
	client, err := f.getGeminiClient(ctx)
	if err != nil {
		return "", 0, 0, err
	}

	model := req.Model
	if model == "" {
		model = f.geminiConfig.Model
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	config := &genai.GenerateContentConfig{}
	if len(req.Schema) > 0 {
		genaiSchema, serr := convertToGenaiSchema(req.Schema)
		if serr != nil {
			f.logger.Warn().Err(serr).Msg("failed to convert output schema, continuing without it")
		} else if genaiSchema != nil {
			config.ResponseMIMEType = "application/json"
			config.ResponseSchema = genaiSchema
		}
	}

	retryConfig := NewDefaultRetryConfig()

	var resp *genai.GenerateContentResponse
	var apiErr error
	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		resp, apiErr = client.Models.GenerateContent(ctx, model, contents, config)
		if apiErr == nil {
			break
		}
		if attempt == retryConfig.MaxRetries {
			break
		}

		var backoff time.Duration
		if IsRateLimitError(apiErr) {
			backoff = retryConfig.CalculateBackoff(attempt, ExtractRetryDelay(apiErr))
		} else {
			backoff = time.Duration(attempt+1) * 2 * time.Second
		}
		f.logger.Warn().Int("attempt", attempt+1).Dur("backoff", backoff).Err(apiErr).Msg("retrying Gemini API call")

		select {
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if apiErr != nil {
		return "", 0, 0, fmt.Errorf("gemini API call failed after %d retries: %w", retryConfig.MaxRetries, apiErr)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", 0, 0, fmt.Errorf("empty response from Gemini API")
	}

	text := resp.Text()
	if text == "" {
		return "", 0, 0, fmt.Errorf("empty text in Gemini response")
	}

	var inputTok, outputTok int
	if resp.UsageMetadata != nil {
		inputTok = int(resp.UsageMetadata.PromptTokenCount)
		outputTok = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return text, inputTok, outputTok, nil
}

// parseJSONObject extracts and decodes the first top-level JSON object found
// in text, tolerating markdown code fences a model may wrap its answer in.
func parseJSONObject(text string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON object: %w", err)
	}
	return out, nil
}
