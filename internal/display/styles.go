package display

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
)

// Color palette
var (
	ColorSuccess = lipgloss.Color("#00D787") // Green
	ColorError   = lipgloss.Color("#FF5F87") // Pink
	ColorWarning = lipgloss.Color("#FFAF00") // Yellow
	ColorInfo    = lipgloss.Color("#5FAFFF") // Blue
	ColorMuted   = lipgloss.Color("#888888")
	ColorAccent  = lipgloss.Color("#AF87FF") // Purple
)

// Text styles
var (
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	StyleInfo    = lipgloss.NewStyle().Foreground(ColorInfo)
	StyleMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
	StyleAccent  = lipgloss.NewStyle().Foreground(ColorAccent)
	StyleBold    = lipgloss.NewStyle().Bold(true)
	StyleTitle   = lipgloss.NewStyle().Foreground(ColorInfo).Bold(true)
)

// StyleStageIcon marks stage headers.
var StyleStageIcon = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true).SetString("◆")

// Agent colors, one per persona.
var agentColors = map[string]lipgloss.Color{
	"xiao_mei":  "#FF87D7",
	"xiao_qing": "#5FD7AF",
	"xiao_yin":  "#D7AF5F",
}

// AgentStyle returns the label style for a persona.
func AgentStyle(name string) lipgloss.Style {
	c, ok := agentColors[name]
	if !ok {
		c = ColorAccent
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(f.Fd())
}

// GetTerminalWidth returns the current terminal width, or 80.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(os.Stdout.Fd())
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// BoxStyle creates a box style with the given border color and responsive width.
func BoxStyle(borderColor lipgloss.Color) lipgloss.Style {
	width := GetTerminalWidth() - 2
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(borderColor).
		Padding(0, 1).
		Width(width)
}

// HeaderBox returns a header box style with responsive width.
func HeaderBox() lipgloss.Style { return BoxStyle(ColorInfo) }

// ArtifactBox frames an artifact under review.
func ArtifactBox() lipgloss.Style { return BoxStyle(ColorAccent) }

// SuccessBox returns a success box style with responsive width.
func SuccessBox() lipgloss.Style { return BoxStyle(ColorSuccess) }

// ErrorBox returns an error box style with responsive width.
func ErrorBox() lipgloss.Style { return BoxStyle(ColorError) }

// WarningBox returns a warning box style with responsive width.
func WarningBox() lipgloss.Style { return BoxStyle(ColorWarning) }

// SpinnerFrames are the braille frames of the progress spinner.
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
