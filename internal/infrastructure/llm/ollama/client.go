package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	judgeModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

// WithJudgeModel selects a separate model for relevance judgments.
func WithJudgeModel(model string) Option {
	return func(c *Client) {
		if strings.TrimSpace(model) != "" {
			c.judgeModel = model
		}
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func New(baseURL, genModel, embedModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		judgeModel: genModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, fragments []string) (string, error) {
	return g.client.generateText(ctx, g.client.genModel, buildAnswerPrompt(question, fragments))
}

// Judge asks the model to order candidates by relevance.
type Judge struct {
	client *Client
}

func NewJudge(client *Client) *Judge {
	return &Judge{client: client}
}

func (j *Judge) Judge(ctx context.Context, question string, candidates []domain.JudgeCandidate) ([]int, error) {
	if len(candidates) == 0 {
		return []int{}, nil
	}

	respText, err := j.client.generateJSON(ctx, j.client.judgeModel, buildJudgePrompt(question, candidates))
	if err != nil {
		return nil, err
	}

	var verdict struct {
		RankedIndices []int `json:"ranked_indices"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &verdict); err != nil {
		return nil, fmt.Errorf("parse judgment json: %w", err)
	}
	if verdict.RankedIndices == nil {
		return nil, fmt.Errorf("judgment has no ranked_indices")
	}
	return verdict.RankedIndices, nil
}

func (c *Client) generateJSON(ctx context.Context, model, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody, "judge")
}

func (c *Client) generateText(ctx context.Context, model, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
	}
	return c.generate(ctx, reqBody, "generate")
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any, operation string) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, operation); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
