package ui

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	Primary   = lipgloss.Color("#E0245E") // brand
	Secondary = lipgloss.Color("#00D4AA")

	Success = lipgloss.Color("#00D26A")
	Warning = lipgloss.Color("#FFB800")
	Danger  = lipgloss.Color("#FF3838")
	Muted   = lipgloss.Color("#6B7280")
	Bright  = lipgloss.Color("#FAFAFA")
)

var (
	BannerStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	VersionStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SectionStyle = lipgloss.NewStyle().
			Foreground(Bright).
			Bold(true).
			MarginTop(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Width(16)

	ValueStyle = lipgloss.NewStyle().
			Foreground(Bright)

	StatValueStyle = lipgloss.NewStyle().
			Foreground(Bright).
			Bold(true)

	BracketStyle = lipgloss.NewStyle().
			Foreground(Muted)

	VulnStyle = lipgloss.NewStyle().
			Foreground(Danger).
			Bold(true)

	CandidateStyle = lipgloss.NewStyle().
			Foreground(Warning)

	CleanStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	URLStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Underline(true)

	SuccessStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Danger).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning).Bold(true)
	InfoStyle    = lipgloss.NewStyle().Foreground(Secondary)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Muted).
			Padding(0, 2)
)
