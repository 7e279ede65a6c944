package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/mentoria/internal/cli"
	"github.com/hyperjump/mentoria/internal/models"
	"github.com/hyperjump/mentoria/internal/storage"
)

// apiClient talks to a running mentoria server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

type retrieveResponse struct {
	Query string                `json:"query"`
	K     int                   `json:"k"`
	Agent string                `json:"agent"`
	Hits  []models.RetrievalHit `json:"hits"`
}

func (c *apiClient) retrieve(q models.SearchQuery) (*retrieveResponse, error) {
	params := url.Values{}
	params.Set("q", q.Query)
	if q.K > 0 {
		params.Set("k", strconv.Itoa(q.K))
	}
	if q.AgentID != "" {
		params.Set("agentId", q.AgentID)
	}
	for key, value := range q.Filters {
		params.Set(key, value)
	}
	var out retrieveResponse
	if err := c.do(http.MethodGet, "/api/debug/retriever?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) progress(sessionID, agentID string) (*models.ProgressSummary, error) {
	params := url.Values{}
	params.Set("sessionId", sessionID)
	if agentID != "" {
		params.Set("agentId", agentID)
	}
	var out models.ProgressSummary
	if err := c.do(http.MethodGet, "/api/progress?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) award(sessionID, agentID string, amount int, reason string) (*models.ProgressSummary, error) {
	body := map[string]interface{}{
		"sessionId": sessionID,
		"agentId":   agentID,
		"amount":    amount,
		"reason":    reason,
	}
	var out models.ProgressSummary
	if err := c.do(http.MethodPost, "/api/progress/award", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) status() (*statusResponse, error) {
	var out statusResponse
	if err := c.do(http.MethodGet, "/api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type statusConfig struct {
	EmbeddingProvider   string `json:"embedding_provider"`
	EmbeddingModel      string `json:"embedding_model"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`
	CompletionProvider  string `json:"completion_provider"`
	IndexType           string `json:"index_type"`
	IndexDir            string `json:"index_dir"`
	DatabasePath        string `json:"database_path"`
	DefaultAgent        string `json:"default_agent"`
}

type statusResponse struct {
	Version        string         `json:"version"`
	Progress       int64          `json:"progress"`
	Events         int64          `json:"events"`
	LoadedCorpora  []string       `json:"loaded_corpora"`
	Agents         []string       `json:"agents"`
	DiskUsageBytes *int64         `json:"disk_usage_bytes,omitempty"`
	DiskUsage      *storage.Usage `json:"disk_usage,omitempty"`
	Config         *statusConfig  `json:"config,omitempty"`
}

func writeStatus(w io.Writer, status *statusResponse, format cli.OutputFormat) error {
	if format == cli.OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	fmt.Fprintf(w, "version:            %s\n", status.Version)
	fmt.Fprintf(w, "progress_records:   %d   # learner/agent pairs\n", status.Progress)
	fmt.Fprintf(w, "events:             %d   # logged interactions\n", status.Events)
	fmt.Fprintf(w, "agents:             %s\n", strings.Join(status.Agents, ", "))
	fmt.Fprintf(w, "loaded_corpora:     %s\n", strings.Join(status.LoadedCorpora, ", "))
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database + indices on disk\n", *status.DiskUsageBytes)
	}
	if u := status.DiskUsage; u != nil {
		fmt.Fprintf(w, "  database_bytes:   %d\n", u.DatabaseBytes)
		fmt.Fprintf(w, "  index_bytes:      %d\n", u.IndexBytes)
	}
	if c := status.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "embedding:          %s/%s", c.EmbeddingProvider, c.EmbeddingModel)
		if c.EmbeddingDimensions > 0 {
			fmt.Fprintf(w, " (%d dims)", c.EmbeddingDimensions)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "completion:         %s\n", c.CompletionProvider)
		fmt.Fprintf(w, "index_type:         %s\n", c.IndexType)
		if c.IndexDir != "" {
			fmt.Fprintf(w, "index_dir:          %s\n", c.IndexDir)
		}
		if c.DatabasePath != "" {
			fmt.Fprintf(w, "database_path:      %s\n", c.DatabasePath)
		}
		fmt.Fprintf(w, "default_agent:      %s\n", c.DefaultAgent)
	}
	return nil
}
