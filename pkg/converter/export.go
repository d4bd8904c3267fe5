package converter

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/james-see/singformat/pkg/converter/lyrics"
	"github.com/james-see/singformat/pkg/logger"
	"github.com/james-see/singformat/pkg/model"
	"github.com/kennygrant/sanitize"
	"github.com/remeh/sizedwaitgroup"
)

const archiveExt = ".zip"

// Generate encodes p with the named format. A single payload is returned as
// is. Per-track payloads, and the chunks produced by SplitProject, are encoded
// in parallel and packaged into one zip archive whose entries follow track
// order.
func (c *Converter) Generate(ctx context.Context, p *model.Project, format string, features []model.Feature) (*model.ExportResult, error) {
	codec, err := c.Lookup(format)
	if err != nil {
		return nil, err
	}
	if p == nil || len(p.Tracks) == 0 {
		return nil, model.ErrEmptyProject
	}

	f := codec.Format()
	size := model.SplitLimit(features)
	if f.MultipleFile {
		size = 1
	}
	if size <= 0 || size >= len(p.Tracks) {
		res, err := codec.Generate(ctx, p, features)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", format, err)
		}
		if !res.IsMulti() {
			return res, nil
		}
		return packageResults(p.Name, [][]model.Track{p.Tracks}, []*model.ExportResult{res})
	}

	chunks := chunkTracks(p.Tracks, size)
	results := make([]*model.ExportResult, len(chunks))
	errs := make([]error, len(chunks))

	wg := sizedwaitgroup.New(c.workers)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			break
		}
		wg.Add()
		go func(i int, chunk []model.Track) {
			defer wg.Done()
			part := p.Clone()
			part.Tracks = chunk
			results[i], errs[i] = codec.Generate(ctx, &part, features)
		}(i, chunk)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s part %d: %w", format, i+1, err)
		}
	}
	logger.Debug("project encoded", logger.Fields{"format": format, "parts": len(chunks), "tracks": len(p.Tracks)})
	return packageResults(p.Name, chunks, results)
}

// chunkTracks splits tracks into consecutive groups of at most size.
func chunkTracks(tracks []model.Track, size int) [][]model.Track {
	var out [][]model.Track
	for start := 0; start < len(tracks); start += size {
		end := min(start+size, len(tracks))
		out = append(out, tracks[start:end])
	}
	return out
}

// packageResults numbers every payload in chunk order and zips them.
func packageResults(project string, chunks [][]model.Track, results []*model.ExportResult) (*model.ExportResult, error) {
	out := &model.ExportResult{FileName: safeName(project) + archiveExt}
	seen := make(map[model.ExportNotification]bool)
	index := 1
	for i, res := range results {
		if res.IsMulti() {
			for _, o := range res.Outputs {
				ext := path.Ext(o.FileName)
				label := strings.TrimSuffix(o.FileName, ext)
				out.Outputs = append(out.Outputs, model.Output{Data: o.Data, FileName: entryName(project, index, label, ext)})
				index++
			}
		} else {
			label := project
			if len(chunks[i]) > 0 {
				label = trackLabel(chunks[i][0])
			}
			out.Outputs = append(out.Outputs, model.Output{Data: res.Data, FileName: entryName(project, index, label, path.Ext(res.FileName))})
			index++
		}
		for _, n := range res.Notifications {
			if !seen[n] {
				seen[n] = true
				out.Notifications = append(out.Notifications, n)
			}
		}
	}
	if len(out.Outputs) == 1 {
		out.Data, out.FileName = out.Outputs[0].Data, out.Outputs[0].FileName
		out.Outputs = nil
		return out, nil
	}

	data, err := writeArchive(out.Outputs)
	if err != nil {
		return nil, err
	}
	out.Data = data
	return out, nil
}

// entryName builds "{project}_{index}_{label}{ext}". Kana is romanized and
// the parts are sanitized so they never contain the separator.
func entryName(project string, index int, label, ext string) string {
	return fmt.Sprintf("%s_%d_%s%s", safeName(project), index, safeName(label), ext)
}

func trackLabel(t model.Track) string {
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("Track %d", t.ID+1)
}

func safeName(s string) string {
	s = sanitize.BaseName(lyrics.Romanize(strings.TrimSpace(s)))
	s = strings.Trim(strings.ReplaceAll(s, "_", "-"), "-.")
	if s == "" {
		return "untitled"
	}
	return s
}

func writeArchive(outputs []model.Output) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, o := range outputs {
		w, err := zw.Create(o.FileName)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", o.FileName, err)
		}
		if _, err := w.Write(o.Data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", o.FileName, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}
	return buf.Bytes(), nil
}

// UnpackArchive reads the entries of an exported archive, ordered by their
// numeric index. Entries without an index keep their order after the rest.
func UnpackArchive(data []byte) ([]model.File, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, model.UnparsableError("zip archive", err)
	}
	type entry struct {
		file  model.File
		index int
	}
	var entries []entry
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		raw, err := readEntry(zf)
		if err != nil {
			return nil, &model.CannotReadFileError{Name: zf.Name, Err: err}
		}
		entries = append(entries, entry{file: model.File{Name: zf.Name, Data: raw}, index: entryIndex(zf.Name)})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].index, entries[j].index
		switch {
		case a < 0:
			return false
		case b < 0:
			return true
		}
		return a < b
	})
	files := make([]model.File, len(entries))
	for i, e := range entries {
		files[i] = e.file
	}
	return files, nil
}

func readEntry(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// entryIndex returns the index of a "{project}_{index}_{label}" entry or -1.
func entryIndex(name string) int {
	parts := strings.SplitN(path.Base(name), "_", 3)
	if len(parts) < 3 {
		return -1
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return -1
	}
	return n
}
