// Package main is the entry point for singformat CLI
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/james-see/singformat/pkg/api"
	"github.com/james-see/singformat/pkg/config"
	"github.com/james-see/singformat/pkg/converter"
	"github.com/james-see/singformat/pkg/converter/lyrics"
	"github.com/james-see/singformat/pkg/logger"
	"github.com/james-see/singformat/pkg/model"
	"github.com/james-see/singformat/pkg/tui"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	outputFile  string
	fromFormat  string
	toFormat    string
	lyricsStyle string
	rulesFile   string
	mappingFile string
	toPinyin    bool
	noPitch     bool
	maxTracks   int
	workers     int
	debug       bool
	jsonOutput  bool
	unpackDir   string
	serverPort  string
)

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "singformat",
	Short: "Convert between vocal synthesizer project formats",
	Long: `singformat converts singing voice synthesizer projects between
VOCALOID, UTAU, OpenUtau, CeVIO, Synthesizer V, Piapro Studio,
Standard MIDI, MusicXML and UtaFormatix data.

Examples:
  singformat convert song.vsqx -o song.svp
  singformat convert a.ust b.ust -t ustx --lyrics kana-cv
  singformat convert song.svp -t ust --max-tracks 1
  singformat info song.ustx
  singformat formats
  singformat tui
  singformat serve --port 8080`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetDebug(debug)
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert <input>...",
	Short: "Auto-detect and convert between formats",
	Long: `Automatically detects the input format and converts to the target format.
The target is taken from --to, or from the extension of --output.
Several inputs are only accepted by formats with one file per track (UTAU).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

var infoCmd = &cobra.Command{
	Use:   "info <input>...",
	Short: "Show tracks, tempos and warnings of a project",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInfo,
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported formats",
	Args:  cobra.NoArgs,
	RunE:  runFormats,
}

var unpackCmd = &cobra.Command{
	Use:   "unpack <archive.zip>",
	Short: "Extract a multi-file export in track order",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnpack,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Print debug logs")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "Parallel encoders for multi-file output (default: CPU count)")
	rootCmd.PersistentFlags().StringVarP(&fromFormat, "from", "f", "", "Input format (detected when empty)")

	// convert command
	convertCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path")
	convertCmd.Flags().StringVarP(&toFormat, "to", "t", "", "Target format")
	convertCmd.Flags().StringVarP(&lyricsStyle, "lyrics", "l", "", "Target lyric style (romaji-cv, romaji-vcv, kana-cv, kana-vcv)")
	convertCmd.Flags().StringVar(&rulesFile, "rules", "", "YAML lyric and phoneme replacement rules")
	convertCmd.Flags().StringVar(&mappingFile, "mapping", "", "Phoneme mapping dictionary (from=to lines)")
	convertCmd.Flags().BoolVar(&toPinyin, "pinyin", false, "Replace Chinese lyrics with pinyin")
	convertCmd.Flags().BoolVar(&noPitch, "no-pitch", false, "Skip pitch curve conversion")
	convertCmd.Flags().IntVar(&maxTracks, "max-tracks", 0, "Split the output every N tracks")

	// info command
	infoCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the summary as JSON")

	// unpack command
	unpackCmd.Flags().StringVarP(&unpackDir, "dir", "d", ".", "Destination directory")

	// serve command
	serveCmd.Flags().StringVarP(&serverPort, "port", "p", "", "Server port (default: $PORT or 8080)")

	// Add commands
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(unpackCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

func newConverter() *converter.Converter {
	conv := converter.Default()
	conv.SetWorkers(workers)
	return conv
}

func readInputs(paths []string) ([]model.File, error) {
	files := make([]model.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, &model.CannotReadFileError{Name: p, Err: err}
		}
		files = append(files, model.File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

func loadProject(ctx context.Context, conv *converter.Converter, paths []string, simple bool) (*model.Project, error) {
	files, err := readInputs(paths)
	if err != nil {
		return nil, err
	}
	from := fromFormat
	if from == "" {
		f, err := conv.DetectFormat(files[0].Name, files[0].Data)
		if err != nil {
			return nil, err
		}
		from = f.Name
	}
	return conv.Parse(ctx, from, files, model.ImportParams{SimpleImport: simple})
}

// targetFormat resolves the export format from --to or the output extension.
// A format named like the extension wins over other formats sharing it.
func targetFormat(conv *converter.Converter, to, output string) (string, error) {
	if to != "" {
		return to, nil
	}
	ext := strings.ToLower(filepath.Ext(output))
	if ext == "" {
		return "", fmt.Errorf("no target format: pass --to or an --output with an extension")
	}
	var match string
	for _, f := range conv.Formats() {
		if !f.CanGenerate {
			continue
		}
		if f.Name == strings.TrimPrefix(ext, ".") {
			return f.Name, nil
		}
		for _, e := range f.Extensions {
			if e == ext && match == "" {
				match = f.Name
			}
		}
	}
	if match == "" {
		return "", fmt.Errorf("no format writes %s files", ext)
	}
	return match, nil
}

// applyLyricRules runs the optional lyric rewriting steps in order:
// replacement rules, phoneme mapping, then pinyin.
func applyLyricRules(p model.Project) (model.Project, error) {
	if rulesFile != "" {
		data, err := os.ReadFile(rulesFile)
		if err != nil {
			return p, &model.CannotReadFileError{Name: rulesFile, Err: err}
		}
		lyricRules, phonemeRules, err := lyrics.ParseRules(data)
		if err != nil {
			return p, fmt.Errorf("failed to load rules: %w", err)
		}
		p = lyrics.ReplaceLyrics(p, lyricRules)
		p = lyrics.ReplacePhonemes(p, phonemeRules)
	}
	if mappingFile != "" {
		data, err := os.ReadFile(mappingFile)
		if err != nil {
			return p, &model.CannotReadFileError{Name: mappingFile, Err: err}
		}
		rules, err := lyrics.ParseMappingRules(string(data))
		if err != nil {
			return p, fmt.Errorf("failed to load mapping: %w", err)
		}
		p = rules.Apply(p)
	}
	if toPinyin {
		p = lyrics.ToPinyin(p)
	}
	return p, nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	started := time.Now()
	ctx := cmd.Context()
	conv := newConverter()

	to, err := targetFormat(conv, toFormat, outputFile)
	if err != nil {
		return err
	}
	style := model.LyricsUnknown
	if lyricsStyle != "" {
		var ok bool
		if style, ok = model.ParseLyricsType(lyricsStyle); !ok {
			return fmt.Errorf("unknown lyric style %q", lyricsStyle)
		}
	}

	project, err := loadProject(ctx, conv, args, noPitch)
	if err != nil {
		return err
	}
	for _, w := range project.ImportWarnings {
		logger.Warn("import warning", logger.Fields{"warning": model.DescribeWarning(w)})
	}

	converted, err := applyLyricRules(*project)
	if err != nil {
		return err
	}
	converted, err = conv.ConvertLyrics(converted, to, style)
	if err != nil {
		return err
	}

	var features []model.Feature
	if !noPitch {
		features = append(features, model.ConvertPitch{})
	}
	if maxTracks > 0 {
		features = append(features, model.SplitProject{MaxTrackCount: maxTracks})
	}
	res, err := conv.Generate(ctx, &converted, to, features)
	if err != nil {
		return err
	}

	output := outputFile
	if output == "" || (res.IsMulti() && !strings.EqualFold(filepath.Ext(output), ".zip")) {
		dir := filepath.Dir(args[0])
		if output != "" {
			dir = filepath.Dir(output)
		}
		output = filepath.Join(dir, res.FileName)
	}
	if err := os.WriteFile(output, res.Data, 0644); err != nil {
		return err
	}

	fmt.Printf("Converted %s (%s) -> %s (%s, %s)\n", strings.Join(args, ", "), project.Format, output, to, humanize.Bytes(uint64(len(res.Data))))
	for _, o := range res.Outputs {
		fmt.Printf("  %s (%s)\n", o.FileName, humanize.Bytes(uint64(len(o.Data))))
	}
	for _, n := range res.Notifications {
		fmt.Printf("Note: %s\n", model.DescribeNotification(n))
	}
	fmt.Printf("Done in %s\n", durafmt.Parse(time.Since(started)).LimitFirstN(2).Format(shortUnits))
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	conv := newConverter()
	project, err := loadProject(cmd.Context(), conv, args, false)
	if err != nil {
		return err
	}
	s := converter.Summarize(*project)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Printf("Name:      %s\n", s.Name)
	fmt.Printf("Format:    %s\n", s.Format)
	fmt.Printf("Files:     %s\n", strings.Join(s.InputFiles, ", "))
	fmt.Printf("Lyrics:    %s\n", s.LyricsType)
	fmt.Printf("Duration:  %s (%s ticks)\n", durafmt.Parse(s.Duration).LimitFirstN(2).Format(shortUnits), humanize.Comma(s.LastTick))
	if s.MeasurePrefix > 0 {
		fmt.Printf("Pre-roll:  %d measures\n", s.MeasurePrefix)
	}
	fmt.Println("Tempos:")
	for _, t := range s.Tempos {
		fmt.Printf("  tick %-8d %.2f BPM\n", t.TickPosition, t.BPM)
	}
	fmt.Println("Time signatures:")
	for _, ts := range s.TimeSignatures {
		fmt.Printf("  measure %-5d %d/%d\n", ts.MeasurePosition, ts.Numerator, ts.Denominator)
	}
	fmt.Println("Tracks:")
	for i, t := range s.Tracks {
		pitch := ""
		if t.HasPitch {
			pitch = ", pitch"
		}
		fmt.Printf("  %d. %s (%s notes%s)\n", i+1, t.Name, humanize.Comma(int64(t.Notes)), pitch)
	}
	for _, w := range s.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	return nil
}

func runFormats(cmd *cobra.Command, args []string) error {
	fmt.Printf("%-14s %-24s %-22s %-6s %-6s\n", "NAME", "APPLICATION", "EXTENSIONS", "READ", "WRITE")
	for _, f := range newConverter().Formats() {
		exts := strings.Join(f.Extensions, " ")
		if f.MultipleFile {
			exts += " (multi)"
		}
		fmt.Printf("%-14s %-24s %-22s %-6s %-6s\n", f.Name, f.DisplayName, exts, yesNo(f.CanParse), yesNo(f.CanGenerate))
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func runUnpack(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return &model.CannotReadFileError{Name: args[0], Err: err}
	}
	files, err := converter.UnpackArchive(data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(unpackDir, 0755); err != nil {
		return err
	}
	for _, f := range files {
		path := filepath.Join(unpackDir, filepath.Base(f.Name))
		if err := os.WriteFile(path, f.Data, 0644); err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n", path, humanize.Bytes(uint64(len(f.Data))))
	}
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	return tui.Run(newConverter())
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if serverPort != "" {
		cfg.Port = serverPort
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	fmt.Printf("Starting API server on port %s...\n", cfg.Port)
	return api.StartServer(cfg)
}
