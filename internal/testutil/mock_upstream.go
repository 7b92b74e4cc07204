// Package testutil provides a mock enrichment GraphQL API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mock GraphQL response.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// Request is one GraphQL request received by the mock.
type Request struct {
	Operation string         `json:"operationName"`
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// Int returns the integer variable name, or def when absent.
func (r Request) Int(name string, def int) int {
	switch v := r.Variables[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// String returns the string variable name, or "" when absent.
func (r Request) String(name string) string {
	s, _ := r.Variables[name].(string)
	return s
}

// Strings returns the string-list variable name.
func (r Request) Strings(name string) []string {
	list, _ := r.Variables[name].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// OperationHandler answers one request.
type OperationHandler func(req Request) MockResponse

// MockUpstream is a configurable mock GraphQL server. Requests are routed by
// operation name.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]OperationHandler
	requests []Request
}

// NewMockUpstream creates a new mock GraphQL server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers: make(map[string]OperationHandler),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"errors":[{"message":"malformed request"}]}`, http.StatusBadRequest)
			return
		}

		mock.mu.Lock()
		mock.requests = append(mock.requests, req)
		handler, exists := mock.handlers[req.Operation]
		mock.mu.Unlock()

		resp := NewDataResponse(nil)
		if exists {
			resp = handler(req)
		}

		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}))

	return mock
}

// URL returns the GraphQL endpoint of the mock.
func (m *MockUpstream) URL() string {
	return m.server.URL + "/graphql"
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears the recorded requests.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets the handler of operation.
func (m *MockUpstream) SetHandler(operation string, handler OperationHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[operation] = handler
}

// SetResponse answers every request for operation with resp.
func (m *MockUpstream) SetResponse(operation string, resp MockResponse) {
	m.SetHandler(operation, func(Request) MockResponse { return resp })
}

// Requests returns the recorded requests for operation, or all requests
// when operation is empty.
func (m *MockUpstream) Requests(operation string) []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Request
	for _, r := range m.requests {
		if operation == "" || r.Operation == operation {
			out = append(out, r)
		}
	}
	return out
}

// RequestCount returns the number of requests for operation ("" for all).
func (m *MockUpstream) RequestCount(operation string) int {
	return len(m.Requests(operation))
}

// NewDataResponse creates a 200 response carrying data.
func NewDataResponse(data any) MockResponse {
	body, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal data: %v", err))
	}
	return MockResponse{StatusCode: http.StatusOK, Body: string(body)}
}

// NewGraphQLErrorResponse creates a 200 response carrying a GraphQL error.
func NewGraphQLErrorResponse(message string) MockResponse {
	body, _ := json.Marshal(map[string]any{
		"data":   nil,
		"errors": []map[string]any{{"message": message}},
	})
	return MockResponse{StatusCode: http.StatusOK, Body: string(body)}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":[{"message":"Internal server error"}]}`,
	}
}

// Background wraps an enrich or pairedEnrich payload in its currentBackground
// envelope.
func Background(paired bool, payload any) any {
	field := "enrich"
	if paired {
		field = "pairedEnrich"
	}
	return map[string]any{"currentBackground": map[string]any{field: payload}}
}

// window returns the [from, to) slice of a result set of size n selected by
// the request's offset and first variables.
func window(req Request, n int) (int, int) {
	from := min(max(req.Int("offset", 0), 0), n)
	to := min(from+max(req.Int("first", 10), 0), n)
	return from, to
}

// SingleNode builds unpaired result node i with one gene set.
func SingleNode(i int) map[string]any {
	return map[string]any{
		"geneSetHash": fmt.Sprintf("hash-%d", i),
		"nOverlap":    10,
		"oddsRatio":   2.5,
		"pvalue":      0.001,
		"adjPvalue":   0.01,
		"geneSets": map[string]any{"nodes": []any{
			geneSet(fmt.Sprintf("CPC%03d_MCF7_24H_X1_DRUG%d up_10UM", i%1000, i), 250),
		}},
	}
}

// PairedNode builds paired result node i with its up and down gene sets.
func PairedNode(i int) map[string]any {
	return map[string]any{
		"mimickerOverlap":  5,
		"pvalueMimic":      0.01,
		"adjPvalueMimic":   0.05,
		"reverserOverlap":  3,
		"pvalueReverse":    0.2,
		"adjPvalueReverse": 0.4,
		"geneSet": map[string]any{"nodes": []any{
			geneSet(fmt.Sprintf("CPC%03d_A375_6H_X2_DRUG%d up_10UM", i%1000, i), 200),
			geneSet(fmt.Sprintf("CPC%03d_A375_6H_X2_DRUG%d down_10UM", i%1000, i), 180),
		}},
	}
}

// AggregateNode builds consensus or MoA node i.
func AggregateNode(i int) map[string]any {
	return map[string]any{
		"drug":               fmt.Sprintf("DRUG%d", i),
		"countSignificant":   12,
		"countInsignificant": 30,
		"countUpSignificant": 5,
		"oddsRatio":          1.8,
		"pvalue":             0.002,
		"adjPvalue":          0.02,
		"pvalueUp":           0.003,
		"adjPvalueUp":        0.03,
		"oddsRatioUp":        1.5,
		"pvalueDown":         0.004,
		"adjPvalueDown":      0.04,
		"oddsRatioDown":      1.2,
	}
}

func geneSet(term string, size int) map[string]any {
	return map[string]any{
		"term":     term,
		"nGeneIds": size,
		"geneSetFdaCountsById": map[string]any{"nodes": []any{
			map[string]any{"approved": true, "count": 3, "moa": "HDAC inhibitor"},
		}},
	}
}

// NodesHandler serves a result set of size nodes built by node, windowed by
// offset and first, under list.
func NodesHandler(paired bool, size int, node func(int) map[string]any) OperationHandler {
	return func(req Request) MockResponse {
		from, to := window(req, size)
		nodes := make([]any, 0, to-from)
		for i := from; i < to; i++ {
			nodes = append(nodes, node(i))
		}
		return NewDataResponse(Background(paired, map[string]any{
			"nodes":      nodes,
			"totalCount": size,
		}))
	}
}

// CountedHandler serves an aggregate result set of size nodes under
// listField, reporting reported under countField.
func CountedHandler(paired bool, listField, countField string, size, reported int) OperationHandler {
	return func(req Request) MockResponse {
		from, to := window(req, size)
		nodes := make([]any, 0, to-from)
		for i := from; i < to; i++ {
			nodes = append(nodes, AggregateNode(i))
		}
		return NewDataResponse(Background(paired, map[string]any{
			listField:  nodes,
			countField: reported,
		}))
	}
}

// UserGeneSetHandler serves userGeneSet lookups from sets.
func UserGeneSetHandler(sets map[string][]string) OperationHandler {
	return func(req Request) MockResponse {
		genes, ok := sets[req.String("id")]
		if !ok {
			return NewDataResponse(map[string]any{"userGeneSet": nil})
		}
		return NewDataResponse(map[string]any{
			"userGeneSet": map[string]any{"genes": genes, "description": "test set"},
		})
	}
}
