package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/llm"
)

// maxLLMResponseBytes caps how much of the streamed completion is
// accumulated into the final markdown body.
const maxLLMResponseBytes = 32 * 1024

// llmTimeout bounds the combined connect+read time for the upstream
// chat-completions call.
const llmTimeout = 30 * time.Second

// promptTemplate never receives raw user input; every value interpolated
// into it is first marshaled to JSON so an adversarial string cannot
// break out of the template.
const promptTemplate = `You are a clinical monitoring assistant. Analyze the following vital-sign trend window and produce a short markdown report describing any notable patterns, possible concerns, and a plain-language summary. Do not invent data points beyond what is given.

Parameter: %s
Time scale: %s
Unit: %s
Timestamps: %s
Values: %s`

// LLMProxy forwards a trend window to an external chat-completions-style
// provider and returns the response verbatim as markdown.
type LLMProxy struct {
	provider llm.Provider
	model    string
}

// NewLLMProxy constructs an LLMProxy from a resolved pkg/llm Provider.
func NewLLMProxy(provider llm.Provider, model string) *LLMProxy {
	return &LLMProxy{provider: provider, model: model}
}

type llmAnalysisRequest struct {
	Parameter  string    `json:"parameter"`
	TimeScale  string    `json:"time_scale"`
	Unit       string    `json:"unit"`
	Timestamps []string  `json:"timestamps"`
	Values     []float64 `json:"values"`
}

func (s *Server) handleLLMAnalysis(c *gin.Context) {
	var req llmAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if s.llm == nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "LLM analysis is not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), llmTimeout)
	defer cancel()

	markdown, err := s.llm.Analyze(ctx, req)
	if err != nil {
		s.logger.WithError(err).Warn("api: llm analysis failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"markdown": markdown})
}

// Analyze builds the fixed prompt, sends it to the configured provider,
// and accumulates the streamed response into a size-capped markdown
// string.
func (p *LLMProxy) Analyze(ctx context.Context, req llmAnalysisRequest) (string, error) {
	timestamps, err := json.Marshal(req.Timestamps)
	if err != nil {
		return "", fmt.Errorf("llm: marshal timestamps: %w", err)
	}
	values, err := json.Marshal(req.Values)
	if err != nil {
		return "", fmt.Errorf("llm: marshal values: %w", err)
	}
	parameter, _ := json.Marshal(req.Parameter)
	timeScale, _ := json.Marshal(req.TimeScale)
	unit, _ := json.Marshal(req.Unit)

	prompt := fmt.Sprintf(promptTemplate, parameter, timeScale, unit, timestamps, values)

	messages := []llm.Message{{Role: "user", Content: prompt}}

	stream, err := p.provider.Complete(ctx, messages, nil)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer stream.Close()

	var builder strings.Builder
	for builder.Len() < maxLLMResponseBytes {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("llm: stream error: %w", err)
		}
		remaining := maxLLMResponseBytes - builder.Len()
		if len(chunk.Content) > remaining {
			builder.WriteString(chunk.Content[:remaining])
			break
		}
		builder.WriteString(chunk.Content)
	}

	return builder.String(), nil
}
