package escribo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/escribo/escribo-web/cache"
	apihttp "github.com/escribo/escribo-web/http"
	"github.com/escribo/escribo-web/logger"
)

const (
	// MaxBatchSize is the largest QR batch the API accepts in one request.
	MaxBatchSize = 1000

	garmentsPath = "/api/v1/garments/"
	profilesPath = "/api/v1/profiles/"
	generatePath = "/api/v1/admin/qr/generate"
	exportPath   = "/api/v1/admin/qr/export-zip"

	batchFilePrefix = "escribo_batch_"
)

// Client is the typed front of the Escribo API.
type Client struct {
	api      apihttp.Client
	loader   *cache.Loader
	validate *validator.Validate
	logger   logger.Logger
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithClock replaces time.Now for batch file naming.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient creates a Client issuing requests through api. Lookups are cached
// through loader; a nil loader disables caching.
func NewClient(api apihttp.Client, loader *cache.Loader, log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if loader == nil {
		loader = cache.NewLoader(cache.NewMemoryCache(), 0, log)
	}
	c := &Client{
		api:      api,
		loader:   loader,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetGarment returns the garment behind a QR slug.
// Returns ErrNotFound when the API answers 404.
func (c *Client) GetGarment(ctx context.Context, slug string) (*Garment, error) {
	if slug == "" {
		return nil, ErrNotFound
	}
	g, err := cache.Load(ctx, c.loader, "garment:"+slug, func(ctx context.Context) (*Garment, error) {
		var g *Garment
		if err := c.getJSON(ctx, garmentsPath+url.PathEscape(slug), &g); err != nil {
			return nil, fmt.Errorf("fetch garment %q: %w", slug, err)
		}
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrNotFound
	}
	return g, nil
}

// GetProfile returns a public user profile.
// Returns ErrNotFound when the API answers 404.
func (c *Client) GetProfile(ctx context.Context, id string) (*Profile, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	p, err := cache.Load(ctx, c.loader, "profile:"+id, func(ctx context.Context) (*Profile, error) {
		var p *Profile
		if err := c.getJSON(ctx, profilesPath+url.PathEscape(id), &p); err != nil {
			return nil, fmt.Errorf("fetch profile %q: %w", id, err)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// getJSON decodes a resolved response into out. A 404 leaves out nil so the
// absence is cached like any other answer.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.api.Get(ctx, path, nil)
	if err != nil {
		return err
	}
	if resp.NotFound() {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GenerateBatch creates count garment records and exports their QR codes as
// a ZIP archive. The workflow stops at the first failing step.
//
// Generation is not idempotent, so it is attempted once; the export is
// retried according to the client policy.
func (c *Client) GenerateBatch(ctx context.Context, token string, count int) (*Batch, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	genReq := generateRequest{Count: count}
	if err := c.validate.Struct(genReq); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fmt.Errorf("%w: %d is outside 1-%d", ErrInvalidCount, count, MaxBatchSize)
		}
		return nil, err
	}

	headers := map[string]string{
		"Authorization": apihttp.BearerToken(token),
		"Content-Type":  "application/json",
	}

	var generated generateResponse
	if err := c.postJSON(ctx, generatePath, headers, genReq, &generated, apihttp.WithRetries(0)); err != nil {
		return nil, &BatchError{Step: StepGenerate, Err: err}
	}
	c.logger.Info().
		Int("requested", count).
		Int("generated", len(generated.Garments)).
		Msg("QR batch generated")

	body, err := json.Marshal(exportRequest{Garments: generated.Garments})
	if err != nil {
		return nil, &BatchError{Step: StepExport, Err: err}
	}
	resp, err := c.api.Post(ctx, exportPath, &apihttp.Request{Headers: headers, Body: body})
	if err != nil {
		return nil, &BatchError{Step: StepExport, Err: err}
	}
	if resp.NotFound() {
		return nil, &BatchError{Step: StepExport, Err: fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)}
	}

	contentType := resp.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = "application/zip"
	}
	batch := &Batch{
		Filename:    batchFilePrefix + c.now().UTC().Format(time.DateOnly) + ".zip",
		ContentType: contentType,
		Archive:     resp.Body,
		Garments:    generated.Garments,
	}
	c.logger.Info().
		Str("filename", batch.Filename).
		Int("bytes", len(batch.Archive)).
		Msg("QR batch exported")
	return batch, nil
}

func (c *Client) postJSON(ctx context.Context, path string, headers map[string]string, in, out any, opts ...apihttp.FetchOption) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.api.Do(ctx, nethttp.MethodPost, path, &apihttp.Request{Headers: headers, Body: body}, opts...)
	if err != nil {
		return err
	}
	if resp.NotFound() {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
