package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/james-see/singformat/pkg/config"
	"github.com/james-see/singformat/pkg/converter"
	"github.com/james-see/singformat/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleUst = "[#SETTING]\r\nTempo=120\r\nProjectName=demo\r\n" +
	"[#0000]\r\nLength=480\r\nLyric=ka\r\nNoteNum=60\r\n" +
	"[#0001]\r\nLength=480\r\nLyric=ki\r\nNoteNum=62\r\n" +
	"[#TRACKEND]\r\n"

type upload struct {
	name string
	data string
}

func newTestServer() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Port: "0", MaxUploadMB: 1, Workers: 2}
	return NewServer(cfg, converter.Default()).Router()
}

func multipartRequest(t *testing.T, target string, files ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := w.CreateFormFile("file", f.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.data))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	r := newTestServer()
	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "healthy")
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	}
}

func TestListFormats(t *testing.T) {
	rec := serve(newTestServer(), httptest.NewRequest(http.MethodGet, "/api/v1/formats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Formats []formatInfo `json:"formats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	byName := make(map[string]formatInfo)
	for _, f := range body.Formats {
		byName[f.Name] = f
	}
	assert.True(t, byName["ust"].Multiple)
	assert.False(t, byName["musicxml"].Import)
	assert.False(t, byName["ppsf"].Export)
	assert.Equal(t, "kana-cv", byName["vsqx"].Suggested)
}

func TestConvert(t *testing.T) {
	r := newTestServer()

	rec := serve(r, multipartRequest(t, "/api/v1/convert?to=mid", upload{"demo.ust", sampleUst}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "audio/midi", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "demo.mid")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("MThd")))

	rec = serve(r, multipartRequest(t, "/api/v1/convert?to=ust&pitch=false",
		upload{"a.ust", sampleUst}, upload{"b.ust", sampleUst}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	files, err := converter.UnpackArchive(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.True(t, strings.HasPrefix(files[0].Name, "demo_1_"), files[0].Name)
}

func TestConvertQuotesFileName(t *testing.T) {
	r := newTestServer()
	spaced := strings.Replace(sampleUst, "ProjectName=demo", "ProjectName=my demo", 1)
	rec := serve(r, multipartRequest(t, "/api/v1/convert?to=mid", upload{"demo.ust", spaced}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `attachment; filename="my demo.mid"`, rec.Header().Get("Content-Disposition"))

	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, "my demo.mid", params["filename"])

	rec = serve(r, multipartRequest(t, "/api/v1/convert?to=mid", upload{"demo.ust", sampleUst}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "attachment; filename=demo.mid", rec.Header().Get("Content-Disposition"))
}

func TestConvertRejects(t *testing.T) {
	r := newTestServer()
	tests := []struct {
		name   string
		target string
		files  []upload
		status int
	}{
		{"missing target", "/api/v1/convert", []upload{{"a.ust", sampleUst}}, http.StatusBadRequest},
		{"import only target", "/api/v1/convert?to=ppsf", []upload{{"a.ust", sampleUst}}, http.StatusBadRequest},
		{"bad lyric style", "/api/v1/convert?to=mid&lyrics=hiragana", []upload{{"a.ust", sampleUst}}, http.StatusBadRequest},
		{"bad split", "/api/v1/convert?to=mid&maxTracks=x", []upload{{"a.ust", sampleUst}}, http.StatusBadRequest},
		{"no file", "/api/v1/convert?to=mid", nil, http.StatusBadRequest},
		{"unknown input", "/api/v1/convert?to=mid", []upload{{"a.txt", "hello"}}, http.StatusUnsupportedMediaType},
		{"broken input", "/api/v1/convert?to=mid&from=svp", []upload{{"a.svp", "{"}}, http.StatusUnprocessableEntity},
		{"too many files", "/api/v1/convert?to=mid&from=svp", []upload{{"a.svp", "{}"}, {"b.svp", "{}"}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(r, multipartRequest(t, tt.target, tt.files...))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestInspect(t *testing.T) {
	rec := serve(newTestServer(), multipartRequest(t, "/api/v1/inspect", upload{"demo.ust", sampleUst}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary converter.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "demo", summary.Name)
	assert.Equal(t, "ust", summary.Format)
	assert.Equal(t, "romaji-cv", summary.LyricsType)
	require.Len(t, summary.Tracks, 1)
	assert.Equal(t, 2, summary.Tracks[0].Notes)
	assert.Equal(t, int64(960), summary.LastTick)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&model.UnsupportedFileFormatError{Format: "vsqx", Reason: model.UnsupportedLegacy}, http.StatusUnsupportedMediaType},
		{fmt.Errorf("wrapped: %w", model.ErrCannotExport), http.StatusUnsupportedMediaType},
		{model.MissingElementError("Tracks"), http.StatusUnprocessableEntity},
		{&model.NotesOverlappingError{Track: 0, NoteID: 1}, http.StatusUnprocessableEntity},
		{model.ErrEmptyProject, http.StatusUnprocessableEntity},
		{model.ErrTooManyFiles, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
