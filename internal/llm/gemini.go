package llm

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// Request is one structured-extraction call.
type Request struct {
	Model  string
	System string
	Prompt string
	Schema *genai.Schema
}

// Generator performs a structured-extraction call with a given API key and
// returns the raw JSON text.
type Generator interface {
	Generate(ctx context.Context, apiKey string, req Request) (string, error)
}

// GeminiGenerator calls the Gemini API, keeping one client per key.
type GeminiGenerator struct {
	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiGenerator creates an empty generator; clients are built lazily.
func NewGeminiGenerator() *GeminiGenerator {
	return &GeminiGenerator{clients: make(map[string]*genai.Client)}
}

func (g *GeminiGenerator) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	g.clients[apiKey] = c
	return c, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, apiKey string, req Request) (string, error) {
	c, err := g.client(ctx, apiKey)
	if err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1),
		TopP:             genai.Ptr[float32](0.7),
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := c.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", &errInvalidResponse{cause: fmt.Errorf("empty response")}
	}
	return text, nil
}
