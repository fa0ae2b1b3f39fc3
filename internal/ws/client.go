// Package ws implements the remote web-service provider layer: each call is
// identified by a function name, a parameter bag and preset options that
// control response caching.
package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/msaario/campusync/internal/conf"
	"github.com/msaario/campusync/internal/errors"
	"github.com/msaario/campusync/internal/httpclient"
	"github.com/msaario/campusync/internal/logging"
	"github.com/msaario/campusync/internal/observability/metrics"
)

// restEndpoint is the REST server path on the LMS site.
const restEndpoint = "/webservice/rest/server.php"

// staleTTL bounds how long an expired response stays around as the emergency
// fallback for transport failures. Entries older than this are purged so the
// cache does not grow without limit in a long-running daemon.
const staleTTL = 24 * time.Hour

// Package-level logger specific to the ws service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "ws.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "ws", serviceLevelVar)
	if err != nil {
		// Fallback: disabled handler, keeps call sites nil-safe
		log.Printf("Failed to initialize ws file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "ws")
		closeLogger = func() error { return nil }
	}
}

// Params is the flattened parameter bag of one web-service call.
type Params map[string]string

// Preset carries the per-call caching options.
type Preset struct {
	// CacheKey enables response caching under this key. Empty disables
	// caching for the call.
	CacheKey string
	// TTL overrides the client default freshness for this entry.
	TTL time.Duration
	// ServeStaleOnError serves an expired cached response when the live call
	// fails with a transport error (emergency caching).
	ServeStaleOnError bool
	// SkipCache forces a live call even when a fresh entry exists. The
	// response still refreshes the cache.
	SkipCache bool
}

// Client performs remote web-service calls against one LMS site.
type Client struct {
	siteURL    string
	token      string
	userAgent  string
	http       *httpclient.Client
	cache      *gocache.Cache
	defaultTTL time.Duration
	metrics    *metrics.WSMetrics
	debug      bool
}

// NewClient creates a web-service client for the configured site.
// The metrics argument may be nil.
func NewClient(settings *conf.Settings, m *metrics.WSMetrics) (*Client, error) {
	if settings.Site.URL == "" {
		return nil, errors.Newf("site.url is required for web-service calls").
			Category(errors.CategoryConfiguration).
			Component("ws").
			Build()
	}
	if settings.Site.Token == "" {
		return nil, errors.Newf("site.token is required for web-service calls").
			Category(errors.CategoryConfiguration).
			Component("ws").
			Build()
	}

	userAgent := settings.WS.UserAgent
	if userAgent == "" {
		userAgent = settings.Main.Name
	}

	ttl := settings.WS.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c := &Client{
		siteURL:   strings.TrimRight(settings.Site.URL, "/"),
		token:     settings.Site.Token,
		userAgent: userAgent,
		http: httpclient.New(&httpclient.Config{
			DefaultTimeout: settings.WS.Timeout,
			UserAgent:      userAgent,
		}),
		// Stale entries outlive the fresh TTL (emergency fallback) but are
		// still dropped after staleTTL or by invalidation.
		cache:      gocache.New(ttl, 2*ttl),
		defaultTTL: ttl,
		metrics:    m,
		debug:      settings.Debug,
	}

	logger.Info("ws client initialized",
		"site", c.siteURL,
		"cache_ttl", ttl,
		"timeout", settings.WS.Timeout)

	return c, nil
}

// HTTP exposes the underlying pooled client, used by tests to install a mock
// transport.
func (c *Client) HTTP() *httpclient.Client {
	return c.http
}

// Close releases the client's resources.
func (c *Client) Close() {
	c.http.Close()
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing ws logger: %v", err)
		}
	}
}

// Call invokes a web-service function and decodes the JSON response into
// result. A nil preset disables caching for the call.
//
// Error classification follows the client-wide taxonomy: transport errors
// mean the server never produced a usable response (callers degrade to
// offline); web-service errors mean the server functionally rejected the
// call (callers surface them, no automatic retry).
func (c *Client) Call(ctx context.Context, fn string, params Params, preset *Preset, result any) error {
	if preset == nil {
		preset = &Preset{}
	}

	if preset.CacheKey != "" && !preset.SkipCache {
		if raw, found := c.cache.Get(freshKey(preset.CacheKey)); found {
			c.metrics.RecordCacheOperation("hit")
			logger.Debug("ws cache hit", "function", fn, "cache_key", preset.CacheKey)
			return decodeCached(raw, result)
		}
		c.metrics.RecordCacheOperation("miss")
	}

	body, err := c.doCall(ctx, fn, params)
	if err != nil {
		c.metrics.RecordCallError(fn, categoryOf(err))
		if preset.ServeStaleOnError && errors.IsTransport(err) {
			if raw, found := c.cache.Get(staleKey(preset.CacheKey)); found {
				c.metrics.RecordStaleServed()
				logger.Warn("serving stale cached response after transport failure",
					"function", fn, "cache_key", preset.CacheKey)
				return decodeCached(raw, result)
			}
		}
		return err
	}

	if preset.CacheKey != "" {
		ttl := preset.TTL
		if ttl <= 0 {
			ttl = c.defaultTTL
		}
		c.cache.Set(freshKey(preset.CacheKey), body, ttl)
		c.cache.Set(staleKey(preset.CacheKey), body, staleTTL)
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return errors.Newf("failed to parse response of %s: %w", fn, err).
				Category(errors.CategoryParsing).
				Component("ws").
				Context("function", fn).
				Context("response_size", len(body)).
				Build()
		}
	}
	return nil
}

// doCall performs the HTTP exchange and separates transport failures from
// web-service rejections.
func (c *Client) doCall(ctx context.Context, fn string, params Params) ([]byte, error) {
	start := time.Now()

	form := url.Values{}
	form.Set("wstoken", c.token)
	form.Set("wsfunction", fn)
	form.Set("moodlewsrestformat", "json")
	for k, v := range params {
		form.Set(k, v)
	}

	endpoint := c.siteURL + restEndpoint

	if c.debug {
		logger.Debug("ws call", "function", fn, "params", len(params))
	}

	resp, err := c.http.PostForm(ctx, endpoint, form.Encode())
	if err != nil {
		logger.Error("ws call failed", "function", fn, "error", err)
		return nil, errors.Newf("calling %s: %w", fn, err).
			Category(errors.CategoryTransport).
			Component("ws").
			Context("function", fn).
			Timing("ws-call", time.Since(start)).
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Newf("reading response of %s: %w", fn, err).
			Category(errors.CategoryTransport).
			Component("ws").
			Context("function", fn).
			Build()
	}

	// The REST server answers 200 even for functional errors; any other
	// status means the request never reached it properly.
	if resp.StatusCode != 200 {
		logger.Error("ws endpoint returned unexpected status",
			"function", fn, "status_code", resp.StatusCode)
		return nil, errors.Newf("%s returned status %d", fn, resp.StatusCode).
			Category(errors.CategoryTransport).
			Component("ws").
			Context("function", fn).
			Context("status_code", resp.StatusCode).
			Build()
	}

	if wsErr := probeWSError(body); wsErr != nil {
		logger.Warn("ws functional error",
			"function", fn, "errorcode", wsErr.ErrorCode, "exception", wsErr.Exception)
		return nil, errors.Newf("%s rejected: %s", fn, wsErr.Message).
			Category(errors.CategoryWebService).
			Component("ws").
			Context("function", fn).
			Context("errorcode", wsErr.ErrorCode).
			Context("exception", wsErr.Exception).
			Build()
	}

	c.metrics.RecordCall(fn, time.Since(start))
	if c.debug {
		logger.Debug("ws call completed",
			"function", fn,
			"duration_ms", time.Since(start).Milliseconds(),
			"response_size", len(body))
	}

	return body, nil
}

// Invalidate drops the cached response (fresh and stale) for a cache key.
func (c *Client) Invalidate(cacheKey string) {
	c.cache.Delete(freshKey(cacheKey))
	c.cache.Delete(staleKey(cacheKey))
	c.metrics.RecordCacheOperation("invalidate")
}

// InvalidatePrefix drops every cached response whose key starts with prefix.
func (c *Client) InvalidatePrefix(prefix string) {
	var doomed []string
	for key := range c.cache.Items() {
		trimmed := strings.TrimPrefix(strings.TrimPrefix(key, "fresh:"), "stale:")
		if strings.HasPrefix(trimmed, prefix) {
			doomed = append(doomed, key)
		}
	}
	// Deterministic order keeps debug logs readable.
	sort.Strings(doomed)
	for _, key := range doomed {
		c.cache.Delete(key)
	}
	if len(doomed) > 0 {
		c.metrics.RecordCacheOperation("invalidate")
		logger.Debug("cache prefix invalidated", "prefix", prefix, "entries", len(doomed))
	}
}

func freshKey(cacheKey string) string { return "fresh:" + cacheKey }
func staleKey(cacheKey string) string { return "stale:" + cacheKey }

func decodeCached(raw any, result any) error {
	if result == nil {
		return nil
	}
	body, ok := raw.([]byte)
	if !ok {
		return errors.Newf("unexpected cache entry type %T", raw).
			Category(errors.CategoryGeneric).
			Component("ws").
			Build()
	}
	if err := json.Unmarshal(body, result); err != nil {
		return errors.Newf("failed to parse cached response: %w", err).
			Category(errors.CategoryParsing).
			Component("ws").
			Build()
	}
	return nil
}

func categoryOf(err error) string {
	var enhanced *errors.EnhancedError
	if errors.As(err, &enhanced) {
		return enhanced.GetCategory()
	}
	return string(errors.CategoryGeneric)
}
