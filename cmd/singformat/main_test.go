package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/james-see/singformat/pkg/converter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleUst = "[#SETTING]\r\nTempo=120\r\nProjectName=demo\r\n" +
	"[#0000]\r\nLength=480\r\nLyric=ka\r\nNoteNum=60\r\n" +
	"[#0001]\r\nLength=480\r\nLyric=ki\r\nNoteNum=62\r\n"

func TestTargetFormat(t *testing.T) {
	conv := converter.Default()
	tests := []struct {
		to       string
		output   string
		expected string
		wantErr  bool
	}{
		{"svp", "", "svp", false},
		{"", "out/song.svp", "svp", false},
		{"", "song.MID", "mid", false},
		{"", "song.ustx", "ustx", false},
		{"", "song.xml", "musicxml", false},
		{"", "song", "", true},
		{"", "song.ppsf", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			got, err := targetFormat(conv, tt.to, tt.output)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestConvertAndUnpack(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.ust")
	b := filepath.Join(dir, "b.ust")
	require.NoError(t, os.WriteFile(a, []byte(sampleUst), 0644))
	require.NoError(t, os.WriteFile(b, []byte(sampleUst), 0644))

	out := filepath.Join(dir, "demo.ustx")
	rootCmd.SetArgs([]string{"convert", a, b, "-o", out, "--lyrics", "kana-cv"})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "か")

	outputFile, toFormat, lyricsStyle = "", "", ""
	rootCmd.SetArgs([]string{"convert", out, "-t", "ust"})
	require.NoError(t, rootCmd.Execute())

	archive := filepath.Join(dir, "demo.zip")
	require.FileExists(t, archive)

	target := filepath.Join(dir, "unpacked")
	rootCmd.SetArgs([]string{"unpack", archive, "-d", target})
	require.NoError(t, rootCmd.Execute())

	entries, err := os.ReadDir(target)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
