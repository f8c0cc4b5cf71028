// Package api provides the HTTP control API for the preview server.
package api

import "github.com/A-kirami/webgal-craft/internal/service"

// APIVersion represents the current control API version supported by this
// server. Clients such as preview-admin read it from /control/status.
const (
	// APIVersion1 is the original API version.
	APIVersion1 = 1

	// CurrentAPIVersion is the highest API version supported by this server.
	CurrentAPIVersion = APIVersion1
)

// APICapabilities describes the features available at each API version.
var APICapabilities = map[int][]string{
	APIVersion1: {
		"sites",
		"broadcast",
		"unicast",
		"events",
		"debug-protocol",
		"metrics",
	},
}

// StatusResponse is the response from the /control/status endpoint.
type StatusResponse struct {
	Status       string         `json:"status"`
	Service      string         `json:"service"`
	APIVersion   int            `json:"api_version"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Server       service.Status `json:"server"`
}
