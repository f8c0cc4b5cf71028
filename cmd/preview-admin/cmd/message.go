package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ClientInfo represents a connected client
type ClientInfo struct {
	ID          string `json:"id"`
	Address     string `json:"address"`
	ConnectedAt string `json:"connected_at"`
	Pending     int    `json:"pending"`
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast [message]",
	Short: "Send a message to every connected client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(controlURL)
		data, err := client.Request("POST", "/control/broadcast", map[string]string{"message": args[0]})
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(data)
		}

		var resp struct {
			Clients int `json:"clients"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		fmt.Printf("Broadcast to %d client(s).\n", resp.Clients)
		return nil
	},
}

var unicastCmd = &cobra.Command{
	Use:   "unicast [address] [message]",
	Short: "Send a message to one client",
	Long:  `Send a message to the client connected from address (ip:port).`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(controlURL)
		_, err := client.Request("POST", "/control/unicast", map[string]string{
			"address": args[0],
			"message": args[1],
		})
		if err != nil {
			return err
		}
		fmt.Println("Message queued.")
		return nil
	},
}

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List connected clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(controlURL)
		data, err := client.Request("GET", "/control/clients", nil)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(data)
		}

		var resp struct {
			Clients []ClientInfo `json:"clients"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		if len(resp.Clients) == 0 {
			fmt.Println("No clients connected.")
			return nil
		}

		headers := []string{"ADDRESS", "SESSION", "CONNECTED", "PENDING"}
		rows := make([][]string, len(resp.Clients))
		for i, c := range resp.Clients {
			rows[i] = []string{c.Address, c.ID, c.ConnectedAt, fmt.Sprint(c.Pending)}
		}
		printTable(headers, rows)
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect [address]",
	Short: "Drop a connected client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(controlURL)
		if _, err := client.Request("DELETE", "/control/clients", map[string]string{"address": args[0]}); err != nil {
			return err
		}
		fmt.Println("Client disconnected.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(unicastCmd)
	rootCmd.AddCommand(clientsCmd)
	clientsCmd.AddCommand(disconnectCmd)
}
