package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "lexical"
)

// Client stores chunk embeddings and hashed term weights as named vectors of one
// Qdrant collection and serves both retrieval channels from it.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

type Option func(*Client)

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

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type point struct {
	ID      string         `json:"id"`
	Vector  map[string]any `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// IndexChunks upserts one point per chunk. Point ids derive from the document id
// and chunk index, so re-indexing a document overwrites its previous points.
func (c *Client) IndexChunks(ctx context.Context, doc *domain.Document, chunks []string, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch")
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]point, 0, len(chunks))
	for i := range chunks {
		points = append(points, point{
			ID: pointID(doc.ID, i),
			Vector: map[string]any{
				denseVectorName:  vectors[i],
				sparseVectorName: encodeSparseDocument(chunks[i], doc.Filename),
			},
			Payload: map[string]any{
				"doc_id":      doc.ID,
				"filename":    doc.Filename,
				"chunk_index": i,
				"text":        chunks[i],
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.do(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil)
}

// DeleteDocument removes every point of the document. A missing collection
// means there is nothing to delete.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	reqBody := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "doc_id", "match": map[string]any{"value": documentID}},
			},
		},
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	err := c.do(ctx, "delete", http.MethodPost, path, reqBody, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// Search runs the dense channel.
func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.RetrievalCandidate, error) {
	if len(queryVector) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant search", errors.New("empty query vector"))
	}
	return c.query(ctx, "search", queryVector, denseVectorName, limit, filter)
}

// SearchLexical runs the sparse term-weight channel. A query without indexable
// terms matches nothing.
func (c *Client) SearchLexical(
	ctx context.Context,
	text string,
	limit int,
	filter domain.SearchFilter,
) ([]domain.RetrievalCandidate, error) {
	sparse := encodeSparseQuery(text)
	if len(sparse.Indices) == 0 {
		return []domain.RetrievalCandidate{}, nil
	}
	return c.query(ctx, "search_lexical", sparse, sparseVectorName, limit, filter)
}

func (c *Client) query(
	ctx context.Context,
	operation string,
	query any,
	using string,
	limit int,
	filter domain.SearchFilter,
) ([]domain.RetrievalCandidate, error) {
	if limit <= 0 {
		return []domain.RetrievalCandidate{}, nil
	}
	reqBody := map[string]any{
		"query":        query,
		"using":        using,
		"limit":        limit,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}

	var queryResp struct {
		Result struct {
			Points []struct {
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/query", c.collection)
	if err := c.do(ctx, operation, http.MethodPost, path, reqBody, &queryResp); err != nil {
		if isNotFound(err) {
			return []domain.RetrievalCandidate{}, nil
		}
		return nil, err
	}

	out := make([]domain.RetrievalCandidate, 0, len(queryResp.Result.Points))
	for _, p := range queryResp.Result.Points {
		out = append(out, domain.RetrievalCandidate{
			SourceID:   getStringPayload(p.Payload, "doc_id"),
			ChunkIndex: getIntPayload(p.Payload, "chunk_index"),
			Content:    getStringPayload(p.Payload, "text"),
			Score:      p.Score,
		})
	}
	return out, nil
}

func buildFilter(filter domain.SearchFilter) map[string]any {
	ids := filter.Normalized().DocumentIDs
	if len(ids) == 0 {
		return nil
	}
	return map[string]any{
		"must": []map[string]any{
			{"key": "doc_id", "match": map[string]any{"any": ids}},
		},
	}
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{"modifier": "idf"},
		},
	}

	path := fmt.Sprintf("/collections/%s", c.collection)
	err := c.do(ctx, "ensure_collection", http.MethodPut, path, reqBody, nil)
	// 409 if the collection already exists (depends on version/config).
	var statusErr *resilience.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		err = nil
	}
	if err != nil {
		return err
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

// pointID is stable per (document, chunk).
func pointID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(documentID+"#"+strconv.Itoa(chunkIndex))).String()
}

func isNotFound(err error) bool {
	var statusErr *resilience.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
