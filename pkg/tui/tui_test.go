package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/james-see/singformat/pkg/converter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleUst = "[#SETTING]\r\nTempo=120\r\nProjectName=demo\r\n" +
	"[#0000]\r\nLength=480\r\nLyric=ka\r\nNoteNum=60\r\n" +
	"[#0001]\r\nLength=480\r\nLyric=ki\r\nNoteNum=62\r\n"

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMenuItems(t *testing.T) {
	m := New(converter.Default())
	last := m.menuItems[len(m.menuItems)-1]
	assert.Equal(t, "Exit", last.Title)

	targets := make(map[string]bool)
	for _, item := range m.menuItems {
		targets[item.ToFormat] = true
	}
	assert.True(t, targets["musicxml"])
	assert.False(t, targets["ppsf"], "import-only formats are not targets")
	assert.Contains(t, m.filePicker.AllowedTypes, ".ppsf")
}

func TestMenuNavigation(t *testing.T) {
	var model tea.Model = New(converter.Default())

	model, _ = model.Update(key("up"))
	assert.Equal(t, 0, model.(Model).menuIndex)

	model, _ = model.Update(key("down"))
	model, _ = model.Update(key("j"))
	assert.Equal(t, 2, model.(Model).menuIndex)

	model, _ = model.Update(key("p"))
	assert.False(t, model.(Model).pitch)
	assert.Contains(t, model.View(), "Pitch conversion: off")

	model, _ = model.Update(key("enter"))
	m := model.(Model)
	assert.Equal(t, StateFilePicker, m.state)
	assert.Equal(t, m.menuItems[2], m.conversion)

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, StateMenu, model.(Model).state)
}

func TestResultView(t *testing.T) {
	m := New(converter.Default())
	m.selectedFile = "/tmp/demo.ust"
	updated, _ := m.Update(conversionDoneMsg{result: Result{
		InputFormat:   "ust",
		OutputFile:    "/tmp/demo.svp",
		Size:          2048,
		Tracks:        1,
		Notes:         1200,
		Notifications: []string{"pitch exported"},
	}})
	view := updated.View()
	assert.Contains(t, view, "demo.svp")
	assert.Contains(t, view, "2.0 kB")
	assert.Contains(t, view, "1,200")
	assert.Contains(t, view, "pitch exported")

	back, _ := updated.Update(key("enter"))
	assert.Equal(t, StateMenu, back.(Model).state)
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.ust")
	require.NoError(t, os.WriteFile(path, []byte(sampleUst), 0644))

	conv := converter.Default()
	res, err := ConvertFile(context.Background(), conv, path, "ustx", true)
	require.NoError(t, err)
	assert.Equal(t, "ust", res.InputFormat)
	assert.Equal(t, filepath.Join(dir, "demo.ustx"), res.OutputFile)
	assert.Equal(t, 2, res.Notes)

	data, err := os.ReadFile(res.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, len(data), res.Size)
	assert.True(t, strings.Contains(string(data), "ustx_version"))

	_, err = ConvertFile(context.Background(), conv, filepath.Join(dir, "missing.ust"), "ustx", true)
	assert.Error(t, err)
}
