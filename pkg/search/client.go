package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPEngine talks to an Elasticsearch-compatible engine over its JSON API.
// Every request carries the configured timeout; transport failures come back
// wrapped as connection errors so the breaker can classify them.
type HTTPEngine struct {
	baseURL     string
	indexPrefix string
	client      *http.Client
}

// NewHTTPEngine creates a client for the engine at baseURL.
func NewHTTPEngine(baseURL, indexPrefix string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPEngine{
		baseURL:     strings.TrimRight(baseURL, "/"),
		indexPrefix: indexPrefix,
		client:      &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEngine) indexName(kind string) string {
	if e.indexPrefix == "" {
		return kind
	}
	return e.indexPrefix + "-" + kind
}

// Ping checks engine reachability.
func (e *HTTPEngine) Ping(ctx context.Context) error {
	_, err := e.do(ctx, http.MethodGet, "/", nil)
	return err
}

// EnsureIndex creates the index with the given field mapping, tolerating an
// already-existing index.
func (e *HTTPEngine) EnsureIndex(ctx context.Context, kind string, mapping map[string]string) error {
	properties := make(map[string]interface{}, len(mapping))
	for field, fieldType := range mapping {
		properties[field] = map[string]interface{}{"type": fieldType}
	}
	body := map[string]interface{}{
		"mappings": map[string]interface{}{"properties": properties},
	}
	_, err := e.do(ctx, http.MethodPut, "/"+e.indexName(kind), body)
	if err != nil && strings.Contains(err.Error(), "resource_already_exists") {
		return nil
	}
	return err
}

// DeleteIndex drops the index. A missing index is not an error.
func (e *HTTPEngine) DeleteIndex(ctx context.Context, kind string) error {
	_, err := e.do(ctx, http.MethodDelete, "/"+e.indexName(kind), nil)
	if err != nil && strings.Contains(err.Error(), "index_not_found") {
		return nil
	}
	return err
}

// IndexDocument writes one document.
func (e *HTTPEngine) IndexDocument(ctx context.Context, kind string, id int64, doc map[string]interface{}) error {
	path := fmt.Sprintf("/%s/_doc/%d", e.indexName(kind), id)
	_, err := e.do(ctx, http.MethodPut, path, doc)
	return err
}

// DeleteDocument removes one document. A missing document is not an error.
func (e *HTTPEngine) DeleteDocument(ctx context.Context, kind string, id int64) error {
	path := fmt.Sprintf("/%s/_doc/%d", e.indexName(kind), id)
	_, err := e.do(ctx, http.MethodDelete, path, nil)
	if err != nil && strings.Contains(err.Error(), "not_found") {
		return nil
	}
	return err
}

// Search executes one query.
func (e *HTTPEngine) Search(ctx context.Context, kind string, q EngineQuery) (*EngineResult, error) {
	body := buildSearchBody(q)
	path := "/" + e.indexName(kind) + "/_search"
	respBody, err := e.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	return parseSearchResponse(respBody)
}

// buildSearchBody translates the neutral query into the engine DSL: the
// text clause in "must", scope and base filters in "filter" so they never
// affect scoring yet always restrict the result set.
func buildSearchBody(q EngineQuery) map[string]interface{} {
	var textClause map[string]interface{}
	switch {
	case strings.TrimSpace(q.Text) == "":
		textClause = map[string]interface{}{"match_all": map[string]interface{}{}}
	case q.Advanced:
		textClause = map[string]interface{}{
			"query_string": map[string]interface{}{
				"query":            q.Text,
				"fields":           q.Fields,
				"default_operator": "AND",
			},
		}
	default:
		match := map[string]interface{}{
			"query":  q.Text,
			"fields": append([]string{"fulltext"}, q.Fields...),
		}
		if q.Fuzzy {
			match["fuzziness"] = "AUTO"
		}
		textClause = map[string]interface{}{"multi_match": match}
	}

	filters := make([]map[string]interface{}, 0, len(q.ScopeFilters)+len(q.EqualityFilters))
	for field, values := range q.ScopeFilters {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{field: values},
		})
	}
	for field, value := range q.EqualityFilters {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{field: value},
		})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   []interface{}{textClause},
				"filter": filters,
			},
		},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{"fulltext": map[string]interface{}{}},
		},
		"from": q.From,
		"size": q.Size,
	}
}

func parseSearchResponse(body []byte) (*EngineResult, error) {
	var parsed struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID        string              `json:"_id"`
				Score     float64             `json:"_score"`
				Highlight map[string][]string `json:"highlight"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	result := &EngineResult{Total: parsed.Hits.Total.Value}
	for _, hit := range parsed.Hits.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		engineHit := EngineHit{ID: id, Score: hit.Score}
		if snippets, ok := hit.Highlight["fulltext"]; ok && len(snippets) > 0 {
			engineHit.Highlight = snippets[0]
		}
		result.Hits = append(result.Hits, engineHit)
	}
	return result, nil
}

func (e *HTTPEngine) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &connError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &connError{err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("engine returned %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
