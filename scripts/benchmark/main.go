package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL  = flag.String("api-url", "http://localhost:8080", "unhide API base URL")
	apiKey  = flag.String("api-key", "", "API key for authenticated requests")
	runs    = flag.Int("runs", 3, "Number of runs per URL for averaging")
	output  = flag.String("output", "benchmark-results.json", "JSON output file path")
	preview = flag.Bool("preview", false, "Request destination previews")
)

// Links covering the redirect conventions the resolver knows.
var testURLs = []struct {
	Label string
	URL   string
}{
	{"Direct", "https://example.com"},
	{"HTTP 301", "http://go.dev/doc"},
	{"vk.cc", "https://vk.cc/5Lbw1k"},
	{"vk away", "https://vk.com/away.php?to=https%3A%2F%2Fexample.com"},
	{"ok.ru dk", "https://ok.ru/dk?cmd=logExternal&st.cmd=logExternal&st_link=https%3A%2F%2Fexample.com"},
}

// --- Request / Response types (mirrors models package) ---

type resolveRequest struct {
	URL     string `json:"url"`
	Preview bool   `json:"preview,omitempty"`
}

type resolveResponse struct {
	Success   bool         `json:"success"`
	EndURL    string       `json:"end_url"`
	Status    string       `json:"status"`
	StepCount int          `json:"step_count"`
	Timing    timingInfo   `json:"timing"`
	Error     *errorDetail `json:"error,omitempty"`
}

type timingInfo struct {
	TotalMs   int64 `json:"total_ms"`
	FetchMs   int64 `json:"fetch_ms"`
	PreviewMs int64 `json:"preview_ms"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Benchmark result types ---

type runResult struct {
	Run       int    `json:"run"`
	TotalMs   int64  `json:"total_ms"`
	FetchMs   int64  `json:"fetch_ms"`
	PreviewMs int64  `json:"preview_ms"`
	RoundTrip int64  `json:"round_trip_ms"`
	Steps     int    `json:"steps"`
	EndURL    string `json:"end_url"`
	Status    string `json:"status"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

type urlAverages struct {
	TotalMs   float64 `json:"total_ms"`
	FetchMs   float64 `json:"fetch_ms"`
	RoundTrip float64 `json:"round_trip_ms"`
	Steps     float64 `json:"steps"`
}

type urlResult struct {
	URL      string       `json:"url"`
	Label    string       `json:"label"`
	Runs     []runResult  `json:"runs"`
	Averages *urlAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== unhide benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/URL:  %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}

	client := &http.Client{Timeout: 90 * time.Second}
	for _, t := range testURLs {
		fmt.Printf("Benchmarking [%s] %s ...\n", t.Label, t.URL)
		ur := urlResult{URL: t.URL, Label: t.Label}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkURL(client, t.URL, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d steps → %s\n", rr.TotalMs, rr.Steps, rr.EndURL)
			} else {
				fmt.Printf("%s: %s\n", strings.ToUpper(rr.Status), rr.Error)
			}
			ur.Runs = append(ur.Runs, rr)
		}

		ur.Averages = computeAverages(ur.Runs)
		report.Results = append(report.Results, ur)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkURL(client *http.Client, url string, run int) runResult {
	rr := runResult{Run: run, Status: "failed"}

	bodyBytes, err := json.Marshal(resolveRequest{URL: url, Preview: *preview})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/resolve", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var rs resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&rs); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}
	rr.RoundTrip = time.Since(start).Milliseconds()

	rr.Success = rs.Success
	rr.Status = rs.Status
	rr.EndURL = rs.EndURL
	rr.Steps = rs.StepCount
	rr.TotalMs = rs.Timing.TotalMs
	rr.FetchMs = rs.Timing.FetchMs
	rr.PreviewMs = rs.Timing.PreviewMs
	if rs.Error != nil {
		rr.Error = rs.Error.Message
	}
	return rr
}

func computeAverages(runs []runResult) *urlAverages {
	var successCount int
	var avg urlAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.TotalMs += float64(r.TotalMs)
		avg.FetchMs += float64(r.FetchMs)
		avg.RoundTrip += float64(r.RoundTrip)
		avg.Steps += float64(r.Steps)
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.TotalMs /= n
	avg.FetchMs /= n
	avg.RoundTrip /= n
	avg.Steps /= n
	return &avg
}

func printTable(results []urlResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tAvg Latency\tAvg Fetch\tAvg Steps\tEnd URL\n")
	fmt.Fprintf(w, "───\t───────────\t─────────\t─────────\t───────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\n", truncateURL(r.URL, 40))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%dms\t%.1f\t%s\n",
			truncateURL(r.URL, 40),
			int64(r.Averages.TotalMs),
			int64(r.Averages.FetchMs),
			r.Averages.Steps,
			truncateURL(lastEndURL(r.Runs), 40),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func lastEndURL(runs []runResult) string {
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].Success {
			return runs[i].EndURL
		}
	}
	return ""
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
