package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/screenlink/screenlink/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// Default rate limit configurations.
var (
	// RegisterRateLimit applies to device registration (10 req/min per IP).
	RegisterRateLimit = RateLimitConfig{
		RequestLimit: 10,
		WindowLength: time.Minute,
	}

	// PollRateLimit applies to device status polling (120 req/min per IP).
	// Players poll every few seconds and fleets often share an IP.
	PollRateLimit = RateLimitConfig{
		RequestLimit: 120,
		WindowLength: time.Minute,
	}

	// IngestRateLimit applies to telemetry uploads (60 req/min per device).
	IngestRateLimit = RateLimitConfig{
		RequestLimit: 60,
		WindowLength: time.Minute,
	}

	// IngestIPRateLimit caps telemetry uploads per IP (1200 req/min).
	// A venue's whole fleet usually uploads from one NAT address.
	IngestIPRateLimit = RateLimitConfig{
		RequestLimit: 1200,
		WindowLength: time.Minute,
	}

	// PairRateLimit applies to pairing attempts (20 req/min per actor).
	// Keeps pairing codes from being enumerated.
	PairRateLimit = RateLimitConfig{
		RequestLimit: 20,
		WindowLength: time.Minute,
	}

	// StreamRateLimit applies to opening realtime streams (10 req/min per actor).
	StreamRateLimit = RateLimitConfig{
		RequestLimit: 10,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP creates a rate limiter middleware using client IP address.
// Uses X-Forwarded-For header if present (extracted by chi's RealIP middleware).
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(rateLimitExceededHandler),
	)
}

// RateLimitByActor creates a rate limiter middleware using the authenticated actor ID.
// Falls back to IP-based rate limiting for unauthenticated requests.
func RateLimitByActor(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByActorOrIP),
		httprate.WithLimitHandler(rateLimitExceededHandler),
	)
}

// RateLimitByDevice creates a rate limiter middleware keyed by the deviceId
// field of a JSON request body. Requests without one fall back to the client IP.
func RateLimitByDevice(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByDeviceOrIP),
		httprate.WithLimitHandler(rateLimitExceededHandler),
	)
}

// maxKeyBodyBytes bounds how much of the body is buffered to find the key.
const maxKeyBodyBytes = 1 << 20

// keyByDeviceOrIP reads the deviceId from the body and restores the body for
// the next handler.
func keyByDeviceOrIP(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return httprate.KeyByRealIP(r)
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxKeyBodyBytes))
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(buf), r.Body), Closer: r.Body}
	if err != nil {
		return httprate.KeyByRealIP(r)
	}

	var body struct {
		DeviceID string `json:"deviceId"`
	}
	if json.Unmarshal(buf, &body) != nil || strings.TrimSpace(body.DeviceID) == "" {
		return httprate.KeyByRealIP(r)
	}
	return "device:" + strings.TrimSpace(body.DeviceID), nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// keyByActorOrIP returns the actor ID if authenticated, otherwise the client IP.
func keyByActorOrIP(r *http.Request) (string, error) {
	if actorID := GetActorID(r.Context()); actorID != "" {
		return "actor:" + actorID, nil
	}
	return httprate.KeyByRealIP(r)
}

// rateLimitExceededHandler writes an RFC7807 Problem response when rate limit is exceeded.
func rateLimitExceededHandler(w http.ResponseWriter, r *http.Request) {
	traceID := GetRequestID(r.Context())

	problem := models.NewTooManyRequests(traceID, "Rate limit exceeded. Please try again later.")
	problem.Instance = r.URL.Path

	// httprate does not expose the reset time; every window is one minute.
	w.Header().Set("Retry-After", strconv.Itoa(60))

	problem.Write(w)
}
