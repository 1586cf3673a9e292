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

const geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiEngine generates narratives through the Google Gemini API.
type GeminiEngine struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewGeminiEngine(apiKey, model string) *GeminiEngine {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiEngine{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (g *GeminiEngine) Name() string { return "gemini" }

func (g *GeminiEngine) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error) {
	if g.apiKey == "" {
		return "", fault.New(fault.CredentialMissing, "Gemini API key not configured")
	}

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     cfg.Temperature,
			"maxOutputTokens": cfg.MaxOutputTokens,
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s:generateContent", geminiAPIBase, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	log.Printf("[narrate-gemini] using model: %s, prompt %d chars", g.model, len(prompt))

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("Gemini API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		fe := fault.New(fault.NarratorFailed, "Gemini API error (status %d)", resp.StatusCode)
		fe.Stderr = string(body)
		return "", fe
	}

	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		PromptFeedback struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
	}
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		if geminiResp.PromptFeedback.BlockReason != "" {
			return "", fault.New(fault.NarratorFailed, "Gemini blocked: %s", geminiResp.PromptFeedback.BlockReason)
		}
		return "", fault.New(fault.NarratorFailed, "empty Gemini response")
	}
	if fr := geminiResp.Candidates[0].FinishReason; fr != "" && fr != "STOP" {
		log.Printf("[narrate-gemini] WARNING: finishReason=%s", fr)
	}

	var text bytes.Buffer
	for _, p := range geminiResp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return text.String(), nil
}
