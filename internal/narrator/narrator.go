// Package narrator produces short human-readable alert summaries, with an
// optional local LLM and a deterministic template fallback.
package narrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/httpx"
)

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Service narrates alert reasons. With no Ollama URL configured it always
// uses the template.
type Service struct {
	http    *httpx.Client
	baseURL string
	model   string
	log     zerolog.Logger
}

// New builds a narrator. baseURL may be empty.
func New(client *httpx.Client, baseURL, model string, logger zerolog.Logger) *Service {
	return &Service{http: client, baseURL: strings.TrimRight(baseURL, "/"), model: model, log: logger}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Narrate asks the model for a two-sentence summary of the reasons payload.
// Any response that is empty, too short, or mentions numbers that do not
// appear in the payload is discarded in favour of the template.
func (s *Service) Narrate(ctx context.Context, reasons map[string]any) string {
	fallback := Template(reasons)
	if s.baseURL == "" {
		return fallback
	}

	payload, err := json.Marshal(reasons)
	if err != nil {
		return fallback
	}
	prompt := fmt.Sprintf(
		"You are a trading desk assistant. Summarise this on-chain signal in exactly two short sentences. "+
			"Use only numbers that appear verbatim in the data. Data: %s", payload)

	var resp generateResponse
	err = s.http.PostJSON(ctx, s.baseURL+"/api/generate", generateRequest{
		Model:  s.model,
		Prompt: prompt,
	}, &resp)
	if err != nil {
		s.log.Debug().Err(err).Msg("narrator model call failed")
		return fallback
	}

	text := strings.TrimSpace(resp.Response)
	if !Acceptable(text, string(payload)) {
		return fallback
	}
	return text
}

// Acceptable rejects model output that is empty, under two sentences, or
// hallucinates numbers absent from the source payload.
func Acceptable(text, source string) bool {
	if text == "" {
		return false
	}
	if sentenceCount(text) < 2 {
		return false
	}
	for _, num := range numberPattern.FindAllString(text, -1) {
		if !strings.Contains(source, num) {
			return false
		}
	}
	return true
}

func sentenceCount(text string) int {
	n := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			n++
		}
	}
	return n
}

// Template is the deterministic fallback narrative.
func Template(reasons map[string]any) string {
	var parts []string

	if tier, ok := reasons["wallet_tier"].(string); ok && tier != "" {
		parts = append(parts, fmt.Sprintf("A %s wallet opened a position", tier))
	} else if pair, ok := reasons["pair_address"].(string); ok && pair != "" {
		parts = append(parts, "Activity on a watched pool")
	} else {
		parts = append(parts, "A tracked wallet opened a position")
	}

	if usd, ok := reasons["trade_usd"].(float64); ok && usd > 0 {
		parts[0] += fmt.Sprintf(" worth $%.0f", usd)
	}
	if tss, ok := reasons["tss"].(float64); ok {
		parts = append(parts, fmt.Sprintf("Token safety score is %.0f/100", tss))
	}
	if netev, ok := reasons["netev"].(map[string]any); ok {
		if v, ok := netev["netev_usd"].(float64); ok {
			parts = append(parts, fmt.Sprintf("Expected profit after costs is $%.0f", v))
		}
	}

	return strings.Join(parts, ". ") + "."
}
