package driver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPConfig holds configuration for the HTTP driver
type HTTPConfig struct {
	// Host is the server hostname or IP address (default: "localhost")
	Host string
	// Port is the server port (default: 8080)
	Port int
	// Database is the logical store name used in cache fingerprints
	Database string
	// Timeout is the HTTP request timeout (default: 30s)
	Timeout time.Duration
	// MaxIdleConns is the maximum number of idle connections (default: 10)
	MaxIdleConns int
	// MaxConnsPerHost is the maximum connections per host (default: 10)
	MaxConnsPerHost int
}

// DefaultHTTPConfig returns the default HTTP driver configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Host:            "localhost",
		Port:            8080,
		Database:        "default",
		Timeout:         30 * time.Second,
		MaxIdleConns:    10,
		MaxConnsPerHost: 10,
	}
}

// HTTP executes queries against one collection of a LauraDB-style
// JSON-over-HTTP server
type HTTP struct {
	baseURL    string
	database   string
	collection string
	httpClient *http.Client
}

// NewHTTP creates an HTTP driver bound to a collection
func NewHTTP(config *HTTPConfig, collection string) *HTTP {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Database == "" {
		config.Database = "default"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 10
	}
	if config.MaxConnsPerHost == 0 {
		config.MaxConnsPerHost = 10
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		MaxIdleConnsPerHost: config.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}

	return &HTTP{
		baseURL:    fmt.Sprintf("http://%s:%d", config.Host, config.Port),
		database:   config.Database,
		collection: collection,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// NewHTTPFromURL creates an HTTP driver from a base URL, used when the
// server address is already assembled (tests, reverse proxies)
func NewHTTPFromURL(baseURL, database, collection string) *HTTP {
	return &HTTP{
		baseURL:    baseURL,
		database:   database,
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the store name
func (h *HTTP) Name() string {
	return h.database
}

// Collection returns the collection name
func (h *HTTP) Collection() string {
	return h.collection
}

// response is the standard API envelope
type response struct {
	OK      bool            `json:"ok"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    int             `json:"code,omitempty"`
}

// doRequest performs an HTTP request and returns the parsed envelope
func (h *HTTP) doRequest(method, path string, body interface{}) (*response, error) {
	reqURL := h.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !apiResp.OK {
		return &apiResp, fmt.Errorf("API error: %s - %s", apiResp.Error, apiResp.Message)
	}

	return &apiResp, nil
}

func (h *HTTP) collectionPath(suffix string) string {
	return "/" + url.PathEscape(h.collection) + suffix
}

// searchRequest is the body of a _search call
type searchRequest struct {
	Filter     map[string]interface{} `json:"filter,omitempty"`
	Projection map[string]interface{} `json:"projection,omitempty"`
	Sort       map[string]interface{} `json:"sort,omitempty"`
	Skip       int                    `json:"skip,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
	MaxTimeMS  int64                  `json:"maxTimeMS,omitempty"`
	Options    map[string]interface{} `json:"options,omitempty"`
}

// Find performs a filtered fetch via the _search endpoint
func (h *HTTP) Find(filter map[string]interface{}, options map[string]interface{}) ([]map[string]interface{}, error) {
	req := &searchRequest{Filter: filter}

	extra := make(map[string]interface{})
	for key, value := range options {
		switch key {
		case "projection":
			req.Projection, _ = value.(map[string]interface{})
		case "sort":
			req.Sort, _ = value.(map[string]interface{})
		case "skip":
			if n, ok := toInt(value); ok {
				req.Skip = n
			}
		case "limit":
			if n, ok := toInt(value); ok {
				req.Limit = n
			}
		case "maxTimeMS":
			if n, ok := toInt(value); ok {
				req.MaxTimeMS = int64(n)
			}
		default:
			extra[key] = value
		}
	}
	if len(extra) > 0 {
		req.Options = extra
	}

	resp, err := h.doRequest("POST", h.collectionPath("/_search"), req)
	if err != nil {
		return nil, err
	}

	var docs []map[string]interface{}
	if err := json.Unmarshal(resp.Result, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}
	return docs, nil
}

// Aggregate executes a pipeline via the _aggregate endpoint
func (h *HTTP) Aggregate(pipeline []map[string]interface{}, options map[string]interface{}) ([]map[string]interface{}, error) {
	body := map[string]interface{}{"pipeline": pipeline}
	if len(options) > 0 {
		body["options"] = options
	}

	resp, err := h.doRequest("POST", h.collectionPath("/_aggregate"), body)
	if err != nil {
		return nil, err
	}

	var docs []map[string]interface{}
	if err := json.Unmarshal(resp.Result, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse aggregation results: %w", err)
	}
	return docs, nil
}

// Distinct fetches the distinct values of a field via the _distinct
// endpoint
func (h *HTTP) Distinct(field string, filter map[string]interface{}) ([]interface{}, error) {
	body := map[string]interface{}{"field": field}
	if len(filter) > 0 {
		body["filter"] = filter
	}

	resp, err := h.doRequest("POST", h.collectionPath("/_distinct"), body)
	if err != nil {
		return nil, err
	}

	var values []interface{}
	if err := json.Unmarshal(resp.Result, &values); err != nil {
		return nil, fmt.Errorf("failed to parse distinct results: %w", err)
	}
	return values, nil
}

// InsertOne inserts a single document
func (h *HTTP) InsertOne(doc map[string]interface{}) (*WriteResult, error) {
	resp, err := h.doRequest("POST", h.collectionPath("/_doc"), doc)
	if err != nil {
		return nil, err
	}

	var result struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse insert response: %w", err)
	}

	return &WriteResult{Acknowledged: true, InsertedIDs: []string{result.ID}}, nil
}

// InsertMany inserts multiple documents
func (h *HTTP) InsertMany(docs []map[string]interface{}) (*WriteResult, error) {
	body := map[string]interface{}{"documents": docs}
	resp, err := h.doRequest("POST", h.collectionPath("/_docs"), body)
	if err != nil {
		return nil, err
	}

	var result struct {
		IDs []string `json:"_ids"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse insert response: %w", err)
	}

	return &WriteResult{Acknowledged: true, InsertedIDs: result.IDs}, nil
}

// updateResponse is the body of an _update or _delete result
type updateResponse struct {
	Acknowledged bool `json:"acknowledged"`
	Matched      int  `json:"matched"`
	Modified     int  `json:"modified"`
	Deleted      int  `json:"deleted"`
}

// UpdateOne applies an update to the first matching document
func (h *HTTP) UpdateOne(filter, update map[string]interface{}) (*WriteResult, error) {
	return h.update(filter, update, false)
}

// UpdateMany applies an update to every matching document
func (h *HTTP) UpdateMany(filter, update map[string]interface{}) (*WriteResult, error) {
	return h.update(filter, update, true)
}

func (h *HTTP) update(filter, update map[string]interface{}, multi bool) (*WriteResult, error) {
	body := map[string]interface{}{
		"filter": filter,
		"update": update,
		"multi":  multi,
	}

	resp, err := h.doRequest("POST", h.collectionPath("/_update"), body)
	if err != nil {
		return nil, err
	}

	var result updateResponse
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse update response: %w", err)
	}

	// An unacknowledged write reports a zero-effect result.
	if !result.Acknowledged {
		return &WriteResult{}, nil
	}

	return &WriteResult{
		Acknowledged:  true,
		MatchedCount:  result.Matched,
		ModifiedCount: result.Modified,
	}, nil
}

// DeleteOne removes the first matching document
func (h *HTTP) DeleteOne(filter map[string]interface{}) (*WriteResult, error) {
	return h.delete(filter, false)
}

// DeleteMany removes every matching document
func (h *HTTP) DeleteMany(filter map[string]interface{}) (*WriteResult, error) {
	return h.delete(filter, true)
}

func (h *HTTP) delete(filter map[string]interface{}, multi bool) (*WriteResult, error) {
	body := map[string]interface{}{
		"filter": filter,
		"multi":  multi,
	}

	resp, err := h.doRequest("POST", h.collectionPath("/_delete"), body)
	if err != nil {
		return nil, err
	}

	var result updateResponse
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse delete response: %w", err)
	}

	if !result.Acknowledged {
		return &WriteResult{}, nil
	}

	return &WriteResult{Acknowledged: true, DeletedCount: result.Deleted}, nil
}

// Drop drops the collection
func (h *HTTP) Drop() error {
	_, err := h.doRequest("DELETE", h.collectionPath(""), nil)
	return err
}
