// Package tui provides a terminal user interface for singformat
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/james-see/singformat/pkg/converter"
	"github.com/james-see/singformat/pkg/model"
)

// Stage-light color scheme
var (
	// Primary colors - magenta and soft white
	stageMagenta = lipgloss.Color("#FF4FD8")
	stageCyan    = lipgloss.Color("#4FE3FF")
	softWhite    = lipgloss.Color("#E6E6E6")
	darkGray     = lipgloss.Color("#2B2B2B")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(stageMagenta).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(softWhite).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(stageMagenta).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(stageCyan).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(stageMagenta).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB000"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(stageMagenta).
			Padding(1, 2)
)

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateFilePicker
	StateConverting
	StateResult
)

// MenuItem represents a menu option
type MenuItem struct {
	Title       string
	Description string
	ToFormat    string
}

// Model represents the TUI model
type Model struct {
	conv         *converter.Converter
	menuItems    []MenuItem
	state        State
	menuIndex    int
	pitch        bool
	filePicker   filepicker.Model
	spinner      spinner.Model
	selectedFile string
	conversion   MenuItem
	result       Result
	err          error
	width        int
	height       int
}

// Result describes a finished conversion.
type Result struct {
	InputFormat   string
	OutputFile    string
	Size          int
	Tracks        int
	Notes         int
	Warnings      []string
	Notifications []string
}

// conversionDoneMsg signals conversion completion
type conversionDoneMsg struct {
	result Result
	err    error
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick)
}

// New creates a new TUI model
func New(conv *converter.Converter) Model {
	var items []MenuItem
	var inputs []string
	for _, f := range conv.Formats() {
		if f.CanParse {
			inputs = append(inputs, f.Extensions...)
		}
		if !f.CanGenerate {
			continue
		}
		title := f.DisplayName
		if title == "" {
			title = f.Name
		}
		items = append(items, MenuItem{
			Title:       "→ " + title,
			Description: fmt.Sprintf("Convert a project to %s (%s)", title, strings.Join(f.Extensions, ", ")),
			ToFormat:    f.Name,
		})
	}
	items = append(items, MenuItem{Title: "Exit", Description: "Exit the application"})

	// Initialize file picker
	fp := filepicker.New()
	fp.AllowedTypes = inputs
	fp.CurrentDirectory, _ = os.Getwd()

	// Initialize spinner
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(stageMagenta)

	return Model{
		conv:       conv,
		menuItems:  items,
		state:      StateMenu,
		pitch:      true,
		filePicker: fp,
		spinner:    s,
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle file picker state first - it needs to receive all messages
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateMenu
				return m, nil
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.selectedFile = path
			m.state = StateConverting
			return m, tea.Batch(m.spinner.Tick, m.performConversion())
		}

		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StateResult:
			return m.updateResult(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case conversionDoneMsg:
		m.state = StateResult
		m.result = msg.result
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(m.menuItems)-1 {
			m.menuIndex++
		}
	case "p":
		m.pitch = !m.pitch
	case "enter":
		if m.menuIndex == len(m.menuItems)-1 {
			return m, tea.Quit
		}
		m.conversion = m.menuItems[m.menuIndex]
		m.state = StateFilePicker
		return m, m.filePicker.Init()
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.state = StateMenu
		m.err = nil
		m.selectedFile = ""
		m.result = Result{}
		return m, nil
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) performConversion() tea.Cmd {
	conv, path, to, pitch := m.conv, m.selectedFile, m.conversion.ToFormat, m.pitch
	return func() tea.Msg {
		res, err := ConvertFile(context.Background(), conv, path, to, pitch)
		return conversionDoneMsg{result: res, err: err}
	}
}

// ConvertFile converts the project at path and writes the output next to it.
// An output that would replace its input gets a "-converted" suffix.
func ConvertFile(ctx context.Context, conv *converter.Converter, path, to string, pitch bool) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, &model.CannotReadFileError{Name: path, Err: err}
	}
	format, err := conv.DetectFormat(path, data)
	if err != nil {
		return Result{}, err
	}

	files := []model.File{{Name: filepath.Base(path), Data: data}}
	project, err := conv.Parse(ctx, format.Name, files, model.ImportParams{SimpleImport: !pitch})
	if err != nil {
		return Result{}, err
	}
	converted, err := conv.ConvertLyrics(*project, to, model.LyricsUnknown)
	if err != nil {
		return Result{}, err
	}
	var features []model.Feature
	if pitch {
		features = append(features, model.ConvertPitch{})
	}
	out, err := conv.Generate(ctx, &converted, to, features)
	if err != nil {
		return Result{}, err
	}

	outputFile := filepath.Join(filepath.Dir(path), out.FileName)
	if outputFile == path {
		ext := filepath.Ext(outputFile)
		outputFile = strings.TrimSuffix(outputFile, ext) + "-converted" + ext
	}
	if err := os.WriteFile(outputFile, out.Data, 0644); err != nil {
		return Result{}, err
	}

	res := Result{
		InputFormat: format.Name,
		OutputFile:  outputFile,
		Size:        len(out.Data),
		Tracks:      len(project.Tracks),
		Notes:       project.NoteCount(),
	}
	for _, w := range project.ImportWarnings {
		res.Warnings = append(res.Warnings, model.DescribeWarning(w))
	}
	for _, n := range out.Notifications {
		res.Notifications = append(res.Notifications, model.DescribeNotification(n))
	}
	return res, nil
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateMenu:
		s.WriteString(m.viewMenu())
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateConverting:
		s.WriteString(m.viewConverting())
	case StateResult:
		s.WriteString(m.viewResult())
	}

	// Footer help
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • p: toggle pitch • q: quit"))

	return s.String()
}

func (m Model) viewMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT TARGET FORMAT "))
	s.WriteString("\n\n")

	for i, item := range m.menuItems {
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("▸ %s", item.Title)))
			s.WriteString("\n")
			s.WriteString(lipgloss.NewStyle().Foreground(stageCyan).PaddingLeft(4).Render(item.Description))
		} else {
			s.WriteString(menuStyle.Render(fmt.Sprintf("  %s", item.Title)))
		}
		s.WriteString("\n")
	}

	pitch := "off"
	if m.pitch {
		pitch = "on"
	}
	s.WriteString(statusStyle.Render("Pitch conversion: " + pitch))

	return boxStyle.Render(s.String())
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf(" SELECT PROJECT FOR %s ", strings.ToUpper(m.conversion.ToFormat))))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to menu"))

	return s.String()
}

func (m Model) viewConverting() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" CONVERTING "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s Converting %s...\n", m.spinner.View(), filepath.Base(m.selectedFile)))
	s.WriteString(statusStyle.Render(fmt.Sprintf("  → %s", m.conversion.ToFormat)))

	return boxStyle.Render(s.String())
}

func (m Model) viewResult() string {
	var s strings.Builder

	if m.err != nil {
		s.WriteString(titleStyle.Render(" ERROR "))
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Conversion failed: %s", m.err.Error())))
	} else {
		r := m.result
		s.WriteString(titleStyle.Render(" SUCCESS "))
		s.WriteString("\n\n")
		s.WriteString(successStyle.Render("✓ Conversion complete!"))
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("Input:  %s (%s)\n", filepath.Base(m.selectedFile), r.InputFormat))
		s.WriteString(fmt.Sprintf("Output: %s (%s)\n", filepath.Base(r.OutputFile), humanize.Bytes(uint64(r.Size))))
		s.WriteString(fmt.Sprintf("Tracks: %d, notes: %s", r.Tracks, humanize.Comma(int64(r.Notes))))
		for _, w := range r.Warnings {
			s.WriteString("\n")
			s.WriteString(warnStyle.Render("! " + w))
		}
		for _, n := range r.Notifications {
			s.WriteString("\n")
			s.WriteString(warnStyle.Render("i " + n))
		}
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
   ____  _             __                            _
  / ___|(_)_ __   __ _ / _| ___  _ __ _ __ ___   __ _| |_
  \___ \| | '_ \ / _' | |_ / _ \| '__| '_ ' _ \ / _' | __|
   ___) | | | | | (_| |  _| (_) | |  | | | | | | (_| | |_
  |____/|_|_| |_|\__, |_|  \___/|_|  |_| |_| |_|\__,_|\__|
                 |___/
`
	return lipgloss.NewStyle().Foreground(stageMagenta).Render(logo)
}

// Run starts the TUI application
func Run(conv *converter.Converter) error {
	p := tea.NewProgram(New(conv), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
