package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a GraphQL-over-HTTP client for the phonebook API
type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
}

// ClientConfig holds configuration for the phonebook client
type ClientConfig struct {
	BaseURL  string        // Base URL of the service (e.g., "http://localhost:4000")
	Timeout  time.Duration // HTTP request timeout (default: 30 seconds)
	Username string        // Caller identity sent as X-Username
}

// NewClient creates a new phonebook client
func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		username: config.Username,
	}
}

// GraphQLError is one entry of a GraphQL response's errors list.
type GraphQLError struct {
	Message    string                 `json:"message"`
	Path       []interface{}          `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Code returns extensions.code, or "" when absent.
func (e GraphQLError) Code() string {
	code, _ := e.Extensions["code"].(string)
	return code
}

// GraphQLResponse is the decoded body of a GraphQL response.
type GraphQLResponse struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// Err joins the response errors into one error, or returns nil.
func (r *GraphQLResponse) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return fmt.Errorf("graphql errors: %s", strings.Join(msgs, "; "))
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Do posts a GraphQL document to the /graphql endpoint. GraphQL-level errors
// are returned in the response, not as err.
func (c *Client) Do(ctx context.Context, req GraphQLRequest) (*GraphQLResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.username != "" {
		httpReq.Header.Set(HeaderUsername, c.username)
	}

	body, err := c.send(httpReq)
	if err != nil {
		return nil, err
	}

	var response GraphQLResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &response, nil
}

// Query runs query with variables and decodes the data into out when out is
// not nil.
func (c *Client) Query(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	resp, err := c.Do(ctx, GraphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}

// HealthCheck performs a health check against the server
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.send(req)
	if err != nil {
		return nil, err
	}

	var response HealthResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &response, nil
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned error: %d %s - %s", resp.StatusCode, resp.Status, strings.TrimSpace(string(body)))
	}

	return body, nil
}

// SetUsername updates the caller identity for subsequent requests
func (c *Client) SetUsername(username string) {
	c.username = username
}

// GetUsername returns the current caller identity
func (c *Client) GetUsername() string {
	return c.username
}
