package api

import (
	"github.com/gin-gonic/gin"

	"github.com/A-kirami/webgal-craft/internal/preview"
)

// JumpRequest moves previews to a line of a scene.
type JumpRequest struct {
	ScenePath string `json:"scene_path" binding:"required"`
	Line      int    `json:"line"`
	LineText  string `json:"line_text"`
	Force     bool   `json:"force"`
}

// CommandRequest carries a script command or a temporary scene.
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// FontOptimizationRequest toggles font optimization.
type FontOptimizationRequest struct {
	Enabled bool `json:"enabled"`
}

// SyncJump mirrors the editor cursor into previews
func (h *Handlers) SyncJump(c *gin.Context) {
	var req JumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	sent, err := h.preview.Commander().SyncScene(req.ScenePath, req.Line, req.LineText, req.Force)
	if err != nil {
		h.writeError(c, err, "Failed to sync scene")
		return
	}

	c.JSON(200, gin.H{"sent": sent})
}

// SyncCommand executes a single script command
func (h *Handlers) SyncCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if err := h.preview.Commander().ExecuteCommand(req.Command); err != nil {
		h.writeError(c, err, "Failed to execute command")
		return
	}
	c.Status(202)
}

// SyncTempScene runs a temporary scene
func (h *Handlers) SyncTempScene(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if err := h.preview.Commander().RunTempScene(req.Command); err != nil {
		h.writeError(c, err, "Failed to run temp scene")
		return
	}
	c.Status(202)
}

// SyncVisibility sets component visibility
func (h *Handlers) SyncVisibility(c *gin.Context) {
	var req []preview.ComponentVisibility
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if err := h.preview.Commander().SetComponentVisibility(req); err != nil {
		h.writeError(c, err, "Failed to set visibility")
		return
	}
	c.Status(202)
}

// SyncFontOptimization toggles font optimization
func (h *Handlers) SyncFontOptimization(c *gin.Context) {
	var req FontOptimizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if err := h.preview.Commander().SetFontOptimization(req.Enabled); err != nil {
		h.writeError(c, err, "Failed to set font optimization")
		return
	}
	c.Status(202)
}

// SyncRefetchTemplates makes previews reload template styles
func (h *Handlers) SyncRefetchTemplates(c *gin.Context) {
	if err := h.preview.Commander().RefetchTemplates(); err != nil {
		h.writeError(c, err, "Failed to refetch templates")
		return
	}
	c.Status(202)
}

// GetSyncSettings returns the live preview settings
func (h *Handlers) GetSyncSettings(c *gin.Context) {
	c.JSON(200, h.preview.Commander().Settings())
}

// UpdateSyncSettings replaces the live preview settings
func (h *Handlers) UpdateSyncSettings(c *gin.Context) {
	var req preview.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	h.preview.Commander().SetSettings(req)
	c.JSON(200, req)
}
