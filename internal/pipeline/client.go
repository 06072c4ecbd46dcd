package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"courtside/internal/config"
	"courtside/internal/jobs"
	"courtside/internal/logging"
	"courtside/internal/services"
)

const (
	videosPath            = "/videos"
	defaultRequestTimeout = 2 * time.Minute
	maxErrorBody          = 64 << 10
)

// Config describes how to reach the analysis pipeline.
type Config struct {
	BaseURL        string
	Token          string
	ArtifactPath   string
	UserAgent      string
	RequestTimeout time.Duration
}

// Client talks to the analysis pipeline HTTP API.
type Client struct {
	base           *url.URL
	http           *http.Client
	token          string
	artifactPath   string
	userAgent      string
	requestTimeout time.Duration
	logger         *slog.Logger
	newRequestID   func() string
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRequestIDs overrides how X-Request-ID values are generated when the
// context carries none.
func WithRequestIDs(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newRequestID = fn
		}
	}
}

// NewClient validates cfg and constructs a client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline client", "base url is required", nil)
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline client", "parse base url", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline client", fmt.Sprintf("base url %q must be absolute", raw), nil)
	}
	base.RawQuery = ""
	base.Fragment = ""

	artifactPath := strings.TrimSpace(cfg.ArtifactPath)
	if artifactPath == "" {
		artifactPath = "/processed"
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = "Courtside/dev"
	}

	c := &Client{
		base: base,
		// Uploads and downloads are bounded by their contexts, not a client timeout.
		http:           &http.Client{},
		token:          strings.TrimSpace(cfg.Token),
		artifactPath:   "/" + strings.Trim(artifactPath, "/"),
		userAgent:      userAgent,
		requestTimeout: timeout,
		logger:         logging.NewNop(),
		newRequestID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "pipeline")
	return c, nil
}

// NewFromConfig builds a client from application config.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline client", "config is required", nil)
	}
	return NewClient(Config{
		BaseURL:        cfg.API.BaseURL,
		Token:          cfg.API.Token,
		ArtifactPath:   cfg.API.ArtifactPath,
		UserAgent:      cfg.API.UserAgent,
		RequestTimeout: cfg.RequestTimeout(),
	}, opts...)
}

// UploadRequest describes one media file to submit.
type UploadRequest struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	// OnProgress, when set, receives bytes handed to the transport so far.
	OnProgress func(sent, total int64)
}

// CreateVideo uploads a media file and returns the job the pipeline created.
// The body is streamed; it is never buffered in memory.
func (c *Client) CreateVideo(ctx context.Context, req UploadRequest) (jobs.Job, error) {
	const op = "upload video"
	if req.Body == nil {
		return jobs.Job{}, fmt.Errorf("%s: nil body", op)
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(form, req))
	}()

	httpReq, err := c.newRequest(ctx, http.MethodPost, videosPath, pr)
	if err != nil {
		pr.Close()
		return jobs.Job{}, err
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	logger := logging.WithContext(ctx, c.logger)
	logger.Debug("uploading video",
		logging.String("filename", req.Filename),
		logging.String("content_type", req.ContentType),
		logging.Int64("size_bytes", req.Size),
	)

	var record videoRecord
	if err := c.do(httpReq, op, &record); err != nil {
		pr.CloseWithError(err)
		return jobs.Job{}, err
	}
	job, err := record.toJob()
	if err != nil {
		return jobs.Job{}, fmt.Errorf("%s: %w", op, err)
	}
	if job.SourceName == "" {
		job.SourceName = req.Filename
	}
	return job, nil
}

func writeUploadForm(form *multipart.Writer, req UploadRequest) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(req.Filename)))
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	body := req.Body
	if req.OnProgress != nil {
		body = &progressReader{r: req.Body, total: req.Size, fn: req.OnProgress}
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return form.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}
	return n, err
}

// ListJobs returns every job visible to the credential, newest first as
// ordered by the pipeline.
func (c *Client) ListJobs(ctx context.Context) ([]jobs.Job, error) {
	const op = "list videos"
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, videosPath, nil)
	if err != nil {
		return nil, err
	}
	var records []videoRecord
	if err := c.do(req, op, &records); err != nil {
		return nil, err
	}
	out := make([]jobs.Job, 0, len(records))
	for _, record := range records {
		job, err := record.toJob()
		if err != nil {
			c.logger.Warn("skipping malformed job record",
				logging.String(logging.FieldJobID, string(record.ID)),
				logging.Error(err),
				logging.String(logging.FieldEventType, "record_decode_failed"),
			)
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

// FetchJob returns the full record for one job.
func (c *Client) FetchJob(ctx context.Context, id string) (jobs.Job, error) {
	const op = "get video"
	id = strings.TrimSpace(id)
	if id == "" {
		return jobs.Job{}, fmt.Errorf("%s: empty id", op)
	}
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, videosPath+"/"+url.PathEscape(id), nil)
	if err != nil {
		return jobs.Job{}, err
	}
	var record videoRecord
	if err := c.do(req, op, &record); err != nil {
		return jobs.Job{}, err
	}
	job, err := record.toJob()
	if err != nil {
		return jobs.Job{}, fmt.Errorf("%s %s: %w", op, id, err)
	}
	return job, nil
}

// ArtifactURL resolves an artifact reference to an absolute URL. Absolute
// references are returned unchanged.
func (c *Client) ArtifactURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if parsed, err := url.Parse(ref); err == nil && parsed.IsAbs() {
		return ref
	}
	resolved := *c.base
	resolved.Path = path.Join(c.base.Path, c.artifactPath, ref)
	return resolved.String()
}

// DownloadArtifact streams the artifact into w and returns the bytes written.
func (c *Client) DownloadArtifact(ctx context.Context, ref string, w io.Writer) (int64, error) {
	const op = "download artifact"
	target := c.ArtifactURL(ref)
	if target == "" {
		return 0, fmt.Errorf("%s: empty artifact reference", op)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	c.decorate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, transportError(op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return 0, responseError(op, resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, transportError(op, err)
	}
	return n, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	target := c.base.JoinPath(endpoint)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, endpoint, err)
	}
	c.decorate(req)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) decorate(req *http.Request) {
	requestID, ok := services.RequestIDFromContext(req.Context())
	if !ok {
		requestID = c.newRequestID()
	}
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(req *http.Request, op string, out any) error {
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("pipeline response",
		logging.String("op", op),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldCorrelationID, req.Header.Get("X-Request-ID")),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return responseError(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &services.RemoteError{Kind: services.ErrServerRejected, Op: op, StatusCode: resp.StatusCode, Detail: "malformed response body", Err: err}
	}
	return nil
}

func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &services.RemoteError{Kind: services.ErrTransport, Op: op, Err: err}
}
