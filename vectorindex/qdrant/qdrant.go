package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/vectorindex"
)

// Index is a minimal REST client to a Qdrant collection.
// It assumes cosine distance and creates the collection if missing.
type Index struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

// Config holds connection settings for a Qdrant index.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// New creates an index bound to one Qdrant collection, creating the
// collection with cosine distance if it does not exist.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.URL == "" || cfg.Collection == "" {
		return nil, fmt.Errorf("%w: qdrant url and collection are required", core.ErrInvalidArgument)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", core.ErrInvalidArgument, cfg.Dimension)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	x := &Index{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}

	// Qdrant returns 200 for an existing collection with the same schema.
	body := map[string]any{
		"vectors": map[string]any{
			"size":     cfg.Dimension,
			"distance": "Cosine",
		},
	}
	if err := x.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", x.url, x.collection), body, nil); err != nil {
		return nil, err
	}
	return x, nil
}

// Upsert stores the entries, waiting for the write to be applied.
func (x *Index) Upsert(ctx context.Context, entries []vectorindex.Entry) ([]string, error) {
	for i, e := range entries {
		if len(e.Vector) != x.dimension {
			return nil, fmt.Errorf("%w: entry %d has dimension %d, expected %d",
				core.ErrDimensionMismatch, i, len(e.Vector), x.dimension)
		}
	}

	refs := make([]string, len(entries))
	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		payload := make(map[string]any, len(e.Payload)+1)
		for k, v := range e.Payload {
			payload[k] = v
		}
		payload["external_id"] = e.ExternalID
		points[i] = map[string]any{
			"id":      pointID(e.ExternalID),
			"vector":  e.Vector,
			"payload": payload,
		}
		refs[i] = e.ExternalID
	}

	body := map[string]any{"points": points}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", x.url, x.collection)
	if err := x.do(ctx, http.MethodPut, url, body, nil); err != nil {
		return nil, err
	}
	return refs, nil
}

// Search queries the collection for the topK nearest points.
func (x *Index) Search(ctx context.Context, vector []float32, topK int) ([]vectorindex.Match, error) {
	if len(vector) != x.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, expected %d",
			core.ErrDimensionMismatch, len(vector), x.dimension)
	}
	if topK <= 0 {
		return []vectorindex.Match{}, nil
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any               `json:"id"`
			Score   float32           `json:"score"`
			Payload map[string]string `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", x.url, x.collection)
	if err := x.do(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, err
	}

	matches := make([]vectorindex.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		ref := r.Payload["external_id"]
		if ref == "" {
			ref = fmt.Sprint(r.ID)
		}
		matches = append(matches, vectorindex.Match{Ref: ref, Score: r.Score, Payload: r.Payload})
	}
	return matches, nil
}

// Delete removes points by reference. Qdrant ignores unknown IDs.
func (x *Index) Delete(ctx context.Context, refs []string) error {
	if len(refs) == 0 {
		return nil
	}
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = pointID(ref)
	}
	body := map[string]any{"points": ids}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", x.url, x.collection)
	return x.do(ctx, http.MethodPost, url, body, nil)
}

// Dimension returns the configured vector dimension.
func (x *Index) Dimension() int {
	return x.dimension
}

// Close is a no-op; the HTTP client holds no persistent connections
// worth tearing down explicitly.
func (x *Index) Close() error {
	return nil
}

// pointID converts an external reference to a Qdrant-acceptable point
// ID. Qdrant only accepts unsigned integers or UUID strings; 32-char
// hex references are reshaped into UUID form.
func pointID(externalID string) string {
	if len(externalID) != 32 {
		return externalID
	}
	return externalID[0:8] + "-" + externalID[8:12] + "-" + externalID[12:16] + "-" + externalID[16:20] + "-" + externalID[20:32]
}

// do issues one JSON request. Network and server failures are reported
// as transient capability errors so the orchestrator's retry applies.
func (x *Index) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return core.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return core.Transient(fmt.Errorf("qdrant %s %s: status %d: %s", method, url, resp.StatusCode, data))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
