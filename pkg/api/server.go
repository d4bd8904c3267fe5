// Package api provides the REST API server for singformat
package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/james-see/singformat/pkg/config"
	"github.com/james-see/singformat/pkg/converter"
	"github.com/james-see/singformat/pkg/logger"
	"github.com/james-see/singformat/pkg/model"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title singformat API
// @version 1.0
// @description API for converting between vocal synthesizer project formats
// @host localhost:8080
// @BasePath /api/v1

const sentryFlushTimeout = 2 * time.Second

// Server serves conversions over HTTP.
type Server struct {
	cfg  *config.Config
	conv *converter.Converter
}

// NewServer creates a Server over conv.
func NewServer(cfg *config.Config, conv *converter.Converter) *Server {
	conv.SetWorkers(cfg.Workers)
	return &Server{cfg: cfg, conv: conv}
}

// StartServer starts the API server with the default format registry
func StartServer(cfg *config.Config) error {
	s := NewServer(cfg, converter.Default())
	return s.Router().Run(":" + cfg.Port)
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()

	r.Use(recoverWithSentry())
	r.Use(sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         sentryFlushTimeout,
	}))
	r.Use(requestTracking())
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/formats", s.listFormats)
		v1.POST("/convert", s.handleConvert)
		v1.POST("/inspect", s.handleInspect)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID, X-Export-Notifications")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestTracking tags every request with an id and logs its outcome.
func requestTracking() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		logger.LogRequest(c, time.Since(start), c.Writer.Status(), nil)
	}
}

func recoverWithSentry() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				if hub := sentrygin.GetHubFromContext(c); hub != nil {
					hub.WithScope(func(scope *sentry.Scope) {
						scope.SetRequest(c.Request)
						scope.SetTag("request_id", c.GetString("request_id"))
						hub.RecoverWithContext(c.Request.Context(), err)
					})
				}
				logger.Error("Panic recovered", fmt.Errorf("%v", err), logger.WithContext(c))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "Internal server error",
					"request_id": c.GetString("request_id"),
				})
			}
		}()
		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "singformat",
	})
}

// formatInfo is the JSON view of a registered format.
type formatInfo struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Extensions  []string `json:"extensions"`
	Multiple    bool     `json:"multipleFile"`
	Import      bool     `json:"import"`
	Export      bool     `json:"export"`
	Lyrics      []string `json:"lyrics"`
	Suggested   string   `json:"suggestedLyrics,omitempty"`
}

func describeFormat(f converter.Format) formatInfo {
	info := formatInfo{
		Name:        f.Name,
		DisplayName: f.DisplayName,
		Extensions:  f.Extensions,
		Multiple:    f.MultipleFile,
		Import:      f.CanParse,
		Export:      f.CanGenerate,
	}
	for _, t := range f.PossibleLyricsTypes {
		info.Lyrics = append(info.Lyrics, t.String())
	}
	if f.SuggestedLyricsType != model.LyricsUnknown {
		info.Suggested = f.SuggestedLyricsType.String()
	}
	return info
}

// listFormats godoc
// @Summary List supported formats
// @Description Returns every registered format with its import and export support
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]formatInfo
// @Router /formats [get]
func (s *Server) listFormats(c *gin.Context) {
	formats := s.conv.Formats()
	out := make([]formatInfo, len(formats))
	for i, f := range formats {
		out[i] = describeFormat(f)
	}
	c.JSON(http.StatusOK, gin.H{"formats": out})
}

// handleConvert godoc
// @Summary Convert a project
// @Description Upload one or more project files and receive the converted project. Several outputs are zipped.
// @Tags convert
// @Accept multipart/form-data
// @Produce application/octet-stream
// @Param file formData file true "Project file(s) to convert"
// @Param to query string true "Target format name"
// @Param from query string false "Source format name (detected when empty)"
// @Param pitch query bool false "Convert pitch curves (default: true)"
// @Param maxTracks query int false "Split the output every N tracks"
// @Param lyrics query string false "Target lyric style: romaji-cv, romaji-vcv, kana-cv, kana-vcv"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Failure 415 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /convert [post]
func (s *Server) handleConvert(c *gin.Context) {
	to := c.Query("to")
	if to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing target format"})
		return
	}
	target, err := s.conv.Lookup(to)
	if err != nil || !target.Format().CanGenerate {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Cannot export to %q", to)})
		return
	}

	features, err := s.features(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	style := model.LyricsUnknown
	if name := c.Query("lyrics"); name != "" {
		var ok bool
		if style, ok = model.ParseLyricsType(name); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown lyric style %q", name)})
			return
		}
	}

	project, ok := s.decode(c, !model.HasConvertPitch(features))
	if !ok {
		return
	}
	converted, err := s.conv.ConvertLyrics(*project, to, style)
	if err != nil {
		s.fail(c, err, to)
		return
	}
	res, err := s.conv.Generate(c.Request.Context(), &converted, to, features)
	if err != nil {
		s.fail(c, err, to)
		return
	}

	notes := make([]string, len(res.Notifications))
	for i, n := range res.Notifications {
		notes[i] = model.DescribeNotification(n)
	}
	if len(notes) > 0 {
		c.Header("X-Export-Notifications", strings.Join(notes, "; "))
	}
	c.Header("X-Import-Warnings", strconv.Itoa(len(project.ImportWarnings)))

	contentType := "application/octet-stream"
	switch {
	case res.IsMulti():
		contentType = "application/zip"
	case to == "mid":
		contentType = "audio/midi"
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.FileName}))
	c.Data(http.StatusOK, contentType, res.Data)
}

// handleInspect godoc
// @Summary Inspect a project
// @Description Upload one or more project files and receive a summary of the decoded project
// @Tags info
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Project file(s) to inspect"
// @Param from query string false "Source format name (detected when empty)"
// @Success 200 {object} converter.Summary
// @Failure 400 {object} map[string]string
// @Failure 415 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /inspect [post]
func (s *Server) handleInspect(c *gin.Context) {
	project, ok := s.decode(c, false)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, converter.Summarize(*project))
}

func (s *Server) features(c *gin.Context) ([]model.Feature, error) {
	var features []model.Feature
	pitch, err := strconv.ParseBool(c.DefaultQuery("pitch", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid pitch flag: %w", err)
	}
	if pitch {
		features = append(features, model.ConvertPitch{})
	}
	maxTracks := s.cfg.MaxTracksPerFile
	if v := c.Query("maxTracks"); v != "" {
		if maxTracks, err = strconv.Atoi(v); err != nil || maxTracks < 0 {
			return nil, fmt.Errorf("invalid maxTracks %q", v)
		}
	}
	if maxTracks > 0 {
		features = append(features, model.SplitProject{MaxTrackCount: maxTracks})
	}
	return features, nil
}

// decode reads the uploaded files and parses them. It writes the error
// response itself and reports whether the caller should continue.
func (s *Server) decode(c *gin.Context, simple bool) (*model.Project, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes())
	form, err := c.MultipartForm()
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("Upload exceeds %d MB", s.cfg.MaxUploadMB)})
		return nil, false
	}
	if err != nil || len(form.File["file"]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return nil, false
	}

	files := make([]model.File, 0, len(form.File["file"]))
	for _, header := range form.File["file"] {
		data, err := readUpload(header)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
			return nil, false
		}
		files = append(files, model.File{Name: header.Filename, Data: data})
	}

	from := c.Query("from")
	if from == "" {
		f, err := s.conv.DetectFormat(files[0].Name, files[0].Data)
		if err != nil {
			s.fail(c, err, "")
			return nil, false
		}
		from = f.Name
	}

	project, err := s.conv.Parse(c.Request.Context(), from, files, model.ImportParams{SimpleImport: simple})
	if err != nil {
		s.fail(c, err, from)
		return nil, false
	}
	return project, true
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	return io.ReadAll(file)
}

// fail writes the error response matching the error kind.
func (s *Server) fail(c *gin.Context, err error, format string) {
	status := statusFor(err)
	fields := logger.WithContext(c)
	fields["format"] = format
	if status >= http.StatusInternalServerError {
		logger.Error("Conversion failed", err, fields)
	} else {
		fields["error"] = err.Error()
		logger.Warn("Conversion rejected", fields)
	}
	c.JSON(status, gin.H{
		"error":      err.Error(),
		"request_id": c.GetString("request_id"),
	})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var (
		unsupported *model.UnsupportedFileFormatError
		illegal     *model.IllegalFileError
		position    *model.IllegalNotePositionError
		overlap     *model.NotesOverlappingError
		tooLarge    *model.ValueTooLargeError
	)
	switch {
	case errors.As(err, &unsupported),
		errors.Is(err, model.ErrCannotParse),
		errors.Is(err, model.ErrCannotExport):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &illegal),
		errors.As(err, &position),
		errors.As(err, &overlap),
		errors.As(err, &tooLarge),
		errors.Is(err, model.ErrEmptyProject),
		errors.Is(err, model.ErrNoInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrTooManyFiles):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
