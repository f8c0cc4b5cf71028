package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Send debug commands to connected previews",
}

var syncJumpForce bool

var syncJumpCmd = &cobra.Command{
	Use:   "jump [scene-path] [line] [line-text]",
	Short: "Jump previews to a scene line",
	Long: `Jump every connected preview to a line of a scene. The scene name is
taken from the part of scene-path below its "scene" directory. Without
--force nothing is sent while live preview is disabled.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid line number %q", args[1])
		}
		text := ""
		if len(args) == 3 {
			text = args[2]
		}

		client := NewClient(controlURL)
		data, err := client.Request("POST", "/control/sync/jump", map[string]interface{}{
			"scene_path": args[0],
			"line":       line,
			"line_text":  text,
			"force":      syncJumpForce,
		})
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(data)
		}

		var resp struct {
			Sent bool `json:"sent"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		if resp.Sent {
			fmt.Println("Jump sent.")
		} else {
			fmt.Println("Nothing sent: live preview is off or the line is not a jump target.")
		}
		return nil
	},
}

var syncCommandCmd = &cobra.Command{
	Use:   "command [script]",
	Short: "Execute a script command in every preview",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(controlURL)
		_, err := client.Request("POST", "/control/sync/command", map[string]string{"command": strings.Join(args, " ")})
		if err != nil {
			return err
		}
		fmt.Println("Command sent.")
		return nil
	},
}

var syncTempSceneCmd = &cobra.Command{
	Use:   "temp-scene [script]",
	Short: "Run a throwaway scene in every preview",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(controlURL)
		_, err := client.Request("POST", "/control/sync/temp-scene", map[string]string{"command": strings.Join(args, " ")})
		if err != nil {
			return err
		}
		fmt.Println("Temp scene sent.")
		return nil
	},
}

var syncRefetchCmd = &cobra.Command{
	Use:   "refetch",
	Short: "Reload template styles in every preview",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(controlURL)
		if _, err := client.Request("POST", "/control/sync/refetch-templates", nil); err != nil {
			return err
		}
		fmt.Println("Refetch sent.")
		return nil
	},
}

var syncFontCmd = &cobra.Command{
	Use:       "font-optimization [on|off]",
	Short:     "Toggle font optimization in every preview",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[0] {
		case "on", "true":
			enabled = true
		case "off", "false":
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}

		client := NewClient(controlURL)
		if _, err := client.Request("POST", "/control/sync/font-optimization", map[string]bool{"enabled": enabled}); err != nil {
			return err
		}
		fmt.Println("Font optimization updated.")
		return nil
	},
}

var syncShowCmd = &cobra.Command{
	Use:   "show [component...]",
	Short: "Show engine UI components",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setVisibility(args, true)
	},
}

var syncHideCmd = &cobra.Command{
	Use:   "hide [component...]",
	Short: "Hide engine UI components",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setVisibility(args, false)
	},
}

func setVisibility(components []string, visible bool) error {
	body := make([]map[string]interface{}, len(components))
	for i, c := range components {
		body[i] = map[string]interface{}{"component": c, "visibility": visible}
	}

	client := NewClient(controlURL)
	if _, err := client.Request("POST", "/control/sync/visibility", body); err != nil {
		return err
	}
	fmt.Println("Visibility updated.")
	return nil
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncJumpCmd)
	syncCmd.AddCommand(syncCommandCmd)
	syncCmd.AddCommand(syncTempSceneCmd)
	syncCmd.AddCommand(syncRefetchCmd)
	syncCmd.AddCommand(syncFontCmd)
	syncCmd.AddCommand(syncShowCmd)
	syncCmd.AddCommand(syncHideCmd)

	syncJumpCmd.Flags().BoolVar(&syncJumpForce, "force", false, "Send even when live preview is disabled")
}
