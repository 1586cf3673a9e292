package narrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pov-scribe/backend/internal/fault"
)

const openAIChatURL = "https://api.openai.com/v1/chat/completions"

// OpenAIEngine generates narratives through the OpenAI chat completions API.
type OpenAIEngine struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenAIEngine(apiKey, model string) *OpenAIEngine {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIEngine{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (o *OpenAIEngine) Name() string { return "openai" }

func (o *OpenAIEngine) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error) {
	if o.apiKey == "" {
		return "", fault.New(fault.CredentialMissing, "OpenAI API key not configured")
	}

	reqBody := map[string]interface{}{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature":           cfg.Temperature,
		"max_completion_tokens": cfg.MaxOutputTokens,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", openAIChatURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	log.Printf("[narrate-openai] using model: %s, prompt %d chars", o.model, len(prompt))

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("OpenAI API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		fe := fault.New(fault.NarratorFailed, "OpenAI API error (status %d)", resp.StatusCode)
		fe.Stderr = string(body)
		return "", fe
	}

	var openAIResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(openAIResp.Choices) == 0 {
		return "", fault.New(fault.NarratorFailed, "empty OpenAI response")
	}
	if fr := openAIResp.Choices[0].FinishReason; fr != "" && fr != "stop" {
		log.Printf("[narrate-openai] WARNING: finish_reason=%s", fr)
	}

	var text bytes.Buffer
	text.WriteString(openAIResp.Choices[0].Message.Content)
	return text.String(), nil
}
