package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

// Site represents a registered site
type Site struct {
	ID   string `json:"id"`
	Root string `json:"root"`
	URL  string `json:"url,omitempty"`
}

// SiteListResponse represents the list sites response
type SiteListResponse struct {
	Sites []Site `json:"sites"`
}

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage registered sites",
	Long:  `Commands for registering project directories with the preview server.`,
}

var siteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sites",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(controlURL)
		data, err := client.Request("GET", "/control/sites", nil)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(data)
		}

		var resp SiteListResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		if len(resp.Sites) == 0 {
			fmt.Println("No sites registered.")
			return nil
		}

		headers := []string{"ID", "ROOT", "URL"}
		rows := make([][]string, len(resp.Sites))
		for i, s := range resp.Sites {
			url := s.URL
			if url == "" {
				url = "-"
			}
			rows[i] = []string{s.ID, s.Root, url}
		}
		printTable(headers, rows)
		return nil
	},
}

var siteAddCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Register a project directory",
	Long: `Register a project directory. Registering the same directory again
returns the same id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}

		client := NewClient(controlURL)
		data, err := client.Request("POST", "/control/sites", map[string]string{"path": path})
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(data)
		}

		var resp struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		fmt.Printf("Site registered: %s\n", resp.ID)
		return nil
	},
}

var siteRemoveByID bool

var siteRemoveCmd = &cobra.Command{
	Use:   "remove [path|id]",
	Short: "Unregister a project directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(controlURL)

		if siteRemoveByID {
			if _, err := client.Request("DELETE", "/control/sites/"+args[0], nil); err != nil {
				return err
			}
		} else {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("invalid path: %w", err)
			}
			if _, err := client.Request("DELETE", "/control/sites", map[string]string{"path": path}); err != nil {
				return err
			}
		}

		fmt.Println("Site removed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(siteCmd)
	siteCmd.AddCommand(siteListCmd)
	siteCmd.AddCommand(siteAddCmd)
	siteCmd.AddCommand(siteRemoveCmd)

	siteRemoveCmd.Flags().BoolVar(&siteRemoveByID, "id", false, "Treat the argument as a site id")
}
