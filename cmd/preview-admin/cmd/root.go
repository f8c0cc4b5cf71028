// Package cmd contains all CLI commands for preview-admin.
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	controlURL string
	output     string
)

// Client wraps HTTP client for control API calls
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new control API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Request makes an HTTP request to the control API
func (c *Client) Request(method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	url := c.baseURL + path
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// printJSON formats and prints JSON output
func printJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var formatted bytes.Buffer
	if err := json.Indent(&formatted, data, "", "  "); err != nil {
		// If it's not valid JSON, just print as-is
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(formatted.String())
	return nil
}

// printTable prints data in a simple table format
func printTable(headers []string, rows [][]string) {
	// Calculate column widths
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	// Print header
	for i, h := range headers {
		fmt.Printf("%-*s  ", widths[i], h)
	}
	fmt.Println()

	// Print separator
	for i := range headers {
		fmt.Printf("%s  ", strings.Repeat("-", widths[i]))
	}
	fmt.Println()

	// Print rows
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Printf("%-*s  ", widths[i], cell)
			}
		}
		fmt.Println()
	}
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "preview-admin",
	Short: "CLI tool for driving the preview server",
	Long: `preview-admin is a command-line tool for driving a running preview
server through its control API.

It provides commands for:
  - Server: start, restart, and stop the preview listener
  - Sites: register and unregister project directories
  - Messages: broadcast or unicast sync messages, list clients
  - Sync: send debug protocol commands to every connected preview

Examples:
  # Register a project and print its preview URL
  preview-admin site add ./my-game
  preview-admin site list

  # Jump every preview to line 12 of a scene
  preview-admin sync jump game/scene/start.txt 12 "say:hello;"

  # Send a raw frame to one client
  preview-admin unicast 127.0.0.1:53122 '{"event":"message","data":{"command":4}}'

Environment Variables:
  PREVIEW_ADMIN_URL  Base URL of the control API (default: http://127.0.0.1:8898)`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&controlURL, "url", "u", getEnvOrDefault("PREVIEW_ADMIN_URL", "http://127.0.0.1:8898"), "Control API base URL")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table, json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
