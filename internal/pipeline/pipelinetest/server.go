// Package pipelinetest provides an in-process fake of the analysis pipeline
// for tests.
package pipelinetest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const naiveLayout = "2006-01-02T15:04:05.000000"

// Video is a job record held by the fake server.
type Video struct {
	ID                int
	OriginalFilename  string
	ProcessedFilename string
	Status            string
	CreatedAt         time.Time
	ProcessingTime    *int
}

// Upload records one multipart submission received by the server.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	RequestID   string
	UserAgent   string
}

type failure struct {
	status int
	detail string
}

// Server is a scripted pipeline backed by gin and httptest.
type Server struct {
	*httptest.Server

	token string

	mu        sync.Mutex
	nextID    int
	videos    map[int]*Video
	scripts   map[int][]string
	getCalls  map[int]int
	uploads   []Upload
	artifacts map[string][]byte
	failures  map[string][]failure
	now       func() time.Time
}

// Option configures the fake server.
type Option func(*Server)

// WithToken requires requests to carry the bearer token.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithClock overrides the timestamp source for new records.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer starts a fake pipeline and closes it when the test ends.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		nextID:    1,
		videos:    make(map[int]*Video),
		scripts:   make(map[int][]string),
		getCalls:  make(map[int]int),
		artifacts: make(map[string][]byte),
		failures:  make(map[string][]failure),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(s.failNext)
	api := router.Group("/", s.auth)
	api.POST("/videos", s.createVideo)
	api.GET("/videos", s.listVideos)
	api.GET("/videos/:id", s.getVideo)
	router.GET("/processed/:name", s.getArtifact)

	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Close)
	return s
}

// AddVideo seeds a record and returns its id.
func (s *Server) AddVideo(filename, status string, createdAt time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	video := &Video{ID: id, OriginalFilename: filename, Status: status, CreatedAt: createdAt}
	if status == "completed" {
		video.ProcessedFilename = "processed_" + filename
		elapsed := 42
		video.ProcessingTime = &elapsed
	}
	s.videos[id] = video
	return id
}

// Script sets the statuses returned by successive GET /videos/{id} calls.
// The last status sticks once the script is exhausted.
func (s *Server) Script(id int, statuses ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[id] = append([]string(nil), statuses...)
}

// SetArtifact publishes bytes under /processed/{name}.
func (s *Server) SetArtifact(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[name] = slices.Clone(data)
}

// FailNext makes the next request matching "METHOD /path-prefix" fail with
// the given status and detail.
func (s *Server) FailNext(route string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], failure{status: status, detail: detail})
}

// Uploads returns the submissions received so far.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.uploads)
}

// GetCalls reports how many times a record was fetched.
func (s *Server) GetCalls(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls[id]
}

// Video returns a copy of a stored record.
func (s *Server) Video(id int) (Video, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return Video{}, false
	}
	return *video, true
}

func (s *Server) auth(c *gin.Context) {
	if s.token == "" {
		c.Next()
		return
	}
	if c.GetHeader("Authorization") != "Bearer "+s.token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid authentication credentials"})
		return
	}
	c.Next()
}

func (s *Server) failNext(c *gin.Context) {
	s.mu.Lock()
	var matched *failure
	for route, queue := range s.failures {
		method, prefix, _ := strings.Cut(route, " ")
		if len(queue) == 0 || method != c.Request.Method || !strings.HasPrefix(c.Request.URL.Path, prefix) {
			continue
		}
		head := queue[0]
		matched = &head
		s.failures[route] = queue[1:]
		break
	}
	s.mu.Unlock()
	if matched != nil {
		c.AbortWithStatusJSON(matched.status, gin.H{"detail": matched.detail})
		return
	}
	c.Next()
}

func (s *Server) createVideo(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"loc": []string{"body", "file"}, "msg": "field required"}}})
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "File must be a video"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	size, err := io.Copy(io.Discard, file)
	file.Close()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	video := &Video{
		ID:                id,
		OriginalFilename:  header.Filename,
		ProcessedFilename: uuid.NewString() + "_processed" + path.Ext(header.Filename),
		Status:            "processing",
		CreatedAt:         s.now().UTC(),
	}
	s.videos[id] = video
	s.uploads = append(s.uploads, Upload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        size,
		RequestID:   c.GetHeader("X-Request-ID"),
		UserAgent:   c.GetHeader("User-Agent"),
	})
	body := render(video)
	s.mu.Unlock()

	c.JSON(http.StatusOK, body)
}

func (s *Server) listVideos(c *gin.Context) {
	s.mu.Lock()
	videos := make([]*Video, 0, len(s.videos))
	for _, video := range s.videos {
		videos = append(videos, video)
	}
	slices.SortFunc(videos, func(a, b *Video) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return b.ID - a.ID
	})
	out := make([]gin.H, 0, len(videos))
	for _, video := range videos {
		out = append(out, render(video))
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (s *Server) getVideo(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"loc": []string{"path", "id"}, "msg": "value is not a valid integer"}}})
		return
	}
	s.mu.Lock()
	video, ok := s.videos[id]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"detail": "Video not found"})
		return
	}
	s.getCalls[id]++
	if script := s.scripts[id]; len(script) > 0 {
		video.Status = script[0]
		if len(script) > 1 {
			s.scripts[id] = script[1:]
		}
		if video.Status == "completed" && video.ProcessingTime == nil {
			elapsed := 42
			video.ProcessingTime = &elapsed
		}
	}
	body := render(video)
	s.mu.Unlock()
	c.JSON(http.StatusOK, body)
}

func (s *Server) getArtifact(c *gin.Context) {
	s.mu.Lock()
	data, ok := s.artifacts[c.Param("name")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}
	c.Data(http.StatusOK, "video/mp4", data)
}

// render mirrors the pipeline's response model: processed_filename and
// processing_time are only populated once the job has completed.
func render(video *Video) gin.H {
	body := gin.H{
		"id":                 video.ID,
		"original_filename":  video.OriginalFilename,
		"processed_filename": nil,
		"status":             video.Status,
		"created_at":         video.CreatedAt.UTC().Format(naiveLayout),
		"processing_time":    nil,
	}
	if video.Status == "completed" {
		body["processed_filename"] = video.ProcessedFilename
		if video.ProcessingTime != nil {
			body["processing_time"] = *video.ProcessingTime
		}
	}
	return body
}

// ArtifactRef returns the processed filename the server assigned to id.
func (s *Server) ArtifactRef(id int) string {
	video, ok := s.Video(id)
	if !ok {
		return ""
	}
	return video.ProcessedFilename
}

// JobID formats a server id the way clients see it.
func JobID(id int) string {
	return fmt.Sprint(id)
}
