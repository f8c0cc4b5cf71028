package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ServerStatus mirrors the server part of /control/status
type ServerStatus struct {
	State   string `json:"state"`
	Address string `json:"address"`
	URL     string `json:"url"`
	Sites   int    `json:"sites"`
	Clients int    `json:"clients"`
}

// StatusResponse represents the /control/status response
type StatusResponse struct {
	Status     string       `json:"status"`
	Service    string       `json:"service"`
	APIVersion int          `json:"api_version"`
	Server     ServerStatus `json:"server"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show preview server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(controlURL)
		data, err := client.Request("GET", "/control/status", nil)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(data)
		}

		var resp StatusResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		url := resp.Server.URL
		if url == "" {
			url = "-"
		}
		printTable(
			[]string{"STATE", "URL", "SITES", "CLIENTS", "API"},
			[][]string{{
				resp.Server.State,
				url,
				fmt.Sprint(resp.Server.Sites),
				fmt.Sprint(resp.Server.Clients),
				fmt.Sprint(resp.APIVersion),
			}},
		)
		return nil
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start or stop the preview listener",
	Long: `Commands for the preview listener. Registered sites and connected
clients are kept across restarts.`,
}

var (
	serverStartHost string
	serverStartPort int
)

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start or restart the preview listener",
	Long: `Start the preview listener, stopping any running one first. When the
requested port is taken an OS-assigned port is used instead; the bound URL is
printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reqBody := map[string]interface{}{}
		if serverStartHost != "" {
			reqBody["host"] = serverStartHost
		}
		if cmd.Flags().Changed("port") {
			reqBody["port"] = serverStartPort
		}

		client := NewClient(controlURL)
		data, err := client.Request("POST", "/control/server/start", reqBody)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(data)
		}

		var resp struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		fmt.Printf("Preview server listening on %s\n", resp.URL)
		return nil
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the preview listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(controlURL)
		if _, err := client.Request("POST", "/control/server/stop", nil); err != nil {
			return err
		}
		fmt.Println("Preview server stopped.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serverCmd)
	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverStopCmd)

	serverStartCmd.Flags().StringVar(&serverStartHost, "host", "", "Host to bind (default: configured host)")
	serverStartCmd.Flags().IntVar(&serverStartPort, "port", 0, "Port to bind (default: configured port)")
}
