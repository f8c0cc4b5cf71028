package preview

import "errors"

var ErrUnknownComponent = errors.New("unknown component")

// Component names an engine UI component whose visibility can be set.
type Component string

const (
	ComponentStarter            Component = "showStarter"
	ComponentTitle              Component = "showTitle"
	ComponentMenuPanel          Component = "showMenuPanel"
	ComponentTextBox            Component = "showTextBox"
	ComponentControls           Component = "showControls"
	ComponentControlsVisibility Component = "controlsVisibility"
	ComponentBacklog            Component = "showBacklog"
	ComponentExtra              Component = "showExtra"
	ComponentGlobalDialog       Component = "showGlobalDialog"
	ComponentPanicOverlay       Component = "showPanicOverlay"
	ComponentEnterGame          Component = "isEnterGame"
	ComponentLogo               Component = "isShowLogo"
)

// Components lists every settable component.
var Components = []Component{
	ComponentStarter,
	ComponentTitle,
	ComponentMenuPanel,
	ComponentTextBox,
	ComponentControls,
	ComponentControlsVisibility,
	ComponentBacklog,
	ComponentExtra,
	ComponentGlobalDialog,
	ComponentPanicOverlay,
	ComponentEnterGame,
	ComponentLogo,
}

// Valid reports whether c is a known component.
func (c Component) Valid() bool {
	for _, known := range Components {
		if c == known {
			return true
		}
	}
	return false
}

// ComponentVisibility sets one component's visibility.
type ComponentVisibility struct {
	Component  Component `json:"component"`
	Visibility bool      `json:"visibility"`
}
