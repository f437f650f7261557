package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// resolveRequest mirrors the unhide API request model.
type resolveRequest struct {
	URL      string `json:"url"`
	MaxSteps int    `json:"max_steps,omitempty"`
	Preview  bool   `json:"preview,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type historyEntry struct {
	Type       string       `json:"type"`
	URL        string       `json:"url"`
	StatusCode int          `json:"status_code"`
	Kind       string       `json:"kind"`
	TargetURL  string       `json:"target_url"`
	Error      *errorDetail `json:"error"`
}

// resolveResponse mirrors the unhide API response model.
type resolveResponse struct {
	Success   bool           `json:"success"`
	URL       string         `json:"url"`
	EndURL    string         `json:"end_url"`
	Status    string         `json:"status"`
	StepCount int            `json:"step_count"`
	History   []historyEntry `json:"history"`
	Preview   *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		SiteName    string `json:"site_name"`
	} `json:"preview"`
	Error *errorDetail `json:"error"`
}

type batchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

type batchStatusResponse struct {
	ID      string             `json:"id"`
	Status  string             `json:"status"`
	Found   int                `json:"found"`
	Total   int                `json:"total"`
	Results []*resolveResponse `json:"results"`
}

func main() {
	apiURL := os.Getenv("UNHIDE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("UNHIDE_API_KEY")

	s := server.NewMCPServer(
		"unhide",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	resolveTool := mcp.NewTool("resolve_url",
		mcp.WithDescription("Follow a short link or redirector (HTTP redirects, Refresh headers, JS/meta redirects, vk.cc, vk.com/away, ok.ru) to its final destination and report every hop."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The link to resolve"),
		),
		mcp.WithNumber("max_steps",
			mcp.Description("Maximum number of requests to issue (default: 5)"),
		),
		mcp.WithBoolean("preview",
			mcp.Description("Also return the destination page's title and description"),
		),
	)
	s.AddTool(resolveTool, handleResolveURL(apiURL, apiKey))

	batchTool := mcp.NewTool("batch_resolve",
		mcp.WithDescription("Resolve many links in parallel and list where each one ends up."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("Links to resolve"),
		),
		mcp.WithNumber("max_steps",
			mcp.Description("Maximum number of requests per link (default: 5)"),
		),
	)
	s.AddTool(batchTool, handleBatchResolve(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiDo sends a request to the unhide API and returns the response body.
func apiDo(ctx context.Context, client *http.Client, method, url, apiKey string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollBatch polls the batch endpoint until the job leaves "processing".
func pollBatch(ctx context.Context, client *http.Client, apiURL, apiKey, id string) (*batchStatusResponse, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/batch/"+id, apiKey, nil)
			if err != nil {
				return nil, err
			}
			var st batchStatusResponse
			if err := json.Unmarshal(body, &st); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if st.Status != "processing" {
				return &st, nil
			}
		}
	}
}

func formatResolution(sb *strings.Builder, r *resolveResponse) {
	switch r.Status {
	case "found":
		fmt.Fprintf(sb, "%s → %s (%d steps)\n", r.URL, r.EndURL, r.StepCount)
	default:
		fmt.Fprintf(sb, "%s: %s after %d steps", r.URL, r.Status, r.StepCount)
		if r.Error != nil {
			fmt.Fprintf(sb, " (%s)", r.Error.Message)
		}
		sb.WriteString("\n")
	}
}

func handleResolveURL(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := resolveRequest{
			URL:      url,
			MaxSteps: request.GetInt("max_steps", 0),
			Preview:  request.GetBool("preview", false),
		}
		body, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/resolve", apiKey, payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp resolveResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if resp.Status == "" && resp.Error != nil {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)), nil
		}

		var sb strings.Builder
		formatResolution(&sb, &resp)
		sb.WriteString("\nHops:\n")
		for i, h := range resp.History {
			fmt.Fprintf(&sb, "%d. [%s] %s", i+1, h.Type, h.URL)
			if h.StatusCode != 0 {
				fmt.Fprintf(&sb, " %d", h.StatusCode)
			}
			if h.Kind != "" && h.Kind != "none" {
				fmt.Fprintf(&sb, " via %s → %s", h.Kind, h.TargetURL)
			}
			if h.Error != nil {
				fmt.Fprintf(&sb, " error %s: %s", h.Error.Code, h.Error.Message)
			}
			sb.WriteString("\n")
		}
		if p := resp.Preview; p != nil {
			fmt.Fprintf(&sb, "\nTitle: %s\nSite: %s\n%s\n", p.Title, p.SiteName, p.Description)
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleBatchResolve(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}

		payload := map[string]any{
			"urls":    urls,
			"options": map[string]any{"max_steps": request.GetInt("max_steps", 0)},
		}
		body, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/batch/resolve", apiKey, payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
		}

		var created batchResponse
		if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
			return mcp.NewToolResultError("batch job creation failed: " + string(body)), nil
		}

		st, err := pollBatch(ctx, client, apiURL, apiKey, created.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling batch job failed: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Batch %s: %s (%d/%d found)\n\n", st.ID, st.Status, st.Found, st.Total)
		for _, r := range st.Results {
			if r == nil {
				continue
			}
			formatResolution(&sb, r)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
