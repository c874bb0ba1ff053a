// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// defaultRequestsPerSecond bounds how fast one target can be hit during a
// retry burst, independent of the retry backoff delay itself.
const defaultRequestsPerSecond = 5

// httpTransportConfig is the decoded shape of ExportTarget.TransportConfig
// for a TargetHTTP target.
type httpTransportConfig struct {
	Endpoint string            `json:"endpoint"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers"`
	Auth     *httpAuthConfig   `json:"auth"`
}

type httpAuthConfig struct {
	Type  string `json:"type"` // x-api-key | bearer
	Value string `json:"value"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

// HTTPHandler posts JSON payloads to a configured endpoint with
// ${SECRET:key}/ENC: resolved headers and bounded exponential-backoff
// retries. Stateless: its *http.Client is cached in ClientCacheManager,
// keyed by endpoint.
type HTTPHandler struct {
	cache   *ClientCacheManager
	secrets SecretResolver
}

func NewHTTPHandler(cache *ClientCacheManager, secrets SecretResolver) *HTTPHandler {
	return &HTTPHandler{cache: cache, secrets: secrets}
}

func (h *HTTPHandler) Initialize([]byte) error { return nil }

func (h *HTTPHandler) client(cfg httpTransportConfig) (*http.Client, error) {
	key := "http:" + cfg.endpoint()
	v, err := h.cache.GetOrCreate(key, func() (interface{}, error) {
		return &http.Client{Timeout: 15 * time.Second}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*http.Client), nil
}

// limiter returns the per-endpoint rate.Limiter pacing retry bursts,
// creating one on first use.
func (h *HTTPHandler) limiter(cfg httpTransportConfig) (*rate.Limiter, error) {
	key := "http-rate:" + cfg.endpoint()
	v, err := h.cache.GetOrCreate(key, func() (interface{}, error) {
		return rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*rate.Limiter), nil
}

func (c httpTransportConfig) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return c.URL
}

func (h *HTTPHandler) SendAlarm(ctx context.Context, alarm schema.Alarm, target schema.ExportTarget) schema.TargetSendResult {
	payload, err := json.Marshal(alarm)
	if err != nil {
		return h.errorResult(target, fmt.Sprintf("marshaling alarm: %v", err))
	}
	return h.send(ctx, payload, target)
}

func (h *HTTPHandler) SendValueBatch(ctx context.Context, values []schema.TimestampedValue, target schema.ExportTarget) []schema.TargetSendResult {
	payload, err := json.Marshal(values)
	if err != nil {
		return []schema.TargetSendResult{h.errorResult(target, fmt.Sprintf("marshaling batch: %v", err))}
	}
	return []schema.TargetSendResult{h.send(ctx, payload, target)}
}

// SendPayload delivers an already-rendered payload (typically the
// output of the C8 transformer) without re-marshaling it.
func (h *HTTPHandler) SendPayload(ctx context.Context, payload []byte, target schema.ExportTarget) schema.TargetSendResult {
	return h.send(ctx, payload, target)
}

func (h *HTTPHandler) send(ctx context.Context, payload []byte, target schema.ExportTarget) schema.TargetSendResult {
	var cfg httpTransportConfig
	if err := json.Unmarshal(target.TransportConfig, &cfg); err != nil {
		return h.errorResult(target, fmt.Sprintf("decoding transport config: %v", err))
	}

	client, err := h.client(cfg)
	if err != nil {
		return h.errorResult(target, err.Error())
	}
	limiter, err := h.limiter(cfg)
	if err != nil {
		return h.errorResult(target, err.Error())
	}

	var retry schema.RetryPolicyConfig
	_ = json.Unmarshal(target.RetryPolicy, &retry)
	var retryKeys map[string]json.RawMessage
	_ = json.Unmarshal(target.RetryPolicy, &retryKeys)
	maxRetries := retry.MaxRetries
	if _, set := retryKeys["max_retries"]; !set || maxRetries < 0 {
		maxRetries = 3
	}
	delay := retry.InitialDelayMs
	if delay <= 0 {
		delay = 500
	}
	multiplier := retry.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	maxDelay := time.Duration(retry.MaxDelayMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}

	start := time.Now()
	var lastStatus int
	var lastBody string
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}
		attempts++
		status, body, retryAfter, err := h.attempt(ctx, client, payload, cfg)
		lastStatus, lastBody, lastErr = status, body, err

		if err == nil && status < 400 {
			return schema.TargetSendResult{
				TargetType: target.Kind, TargetName: target.Name, Success: true,
				StatusCode: status, SentPayload: schema.TruncateForLog(string(payload)),
				ResponseBody: schema.TruncateForLog(body), AttemptCount: attempts,
				LatencyMs: time.Since(start).Milliseconds(),
			}
		}
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			break // non-retryable
		}
		if attempt < maxRetries {
			backoff := time.Duration(float64(delay) * math.Pow(multiplier, float64(attempt))) * time.Millisecond
			if status == http.StatusTooManyRequests && retryAfter > 0 {
				backoff = retryAfter
			}
			if backoff > maxDelay {
				backoff = maxDelay
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
				break
			}
		}
	}

	msg := ""
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return schema.TargetSendResult{
		TargetType: target.Kind, TargetName: target.Name, Success: false,
		StatusCode: lastStatus, ErrorMessage: msg,
		SentPayload: schema.TruncateForLog(string(payload)), ResponseBody: schema.TruncateForLog(lastBody),
		AttemptCount: attempts, LatencyMs: time.Since(start).Milliseconds(),
	}
}

func (h *HTTPHandler) attempt(ctx context.Context, client *http.Client, payload []byte, cfg httpTransportConfig) (int, string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, expandEnvVars(cfg.endpoint()), bytes.NewReader(payload))
	if err != nil {
		return 0, "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	for k, v := range cfg.Headers {
		resolved, err := h.secrets.Resolve(v)
		if err != nil {
			resolved = v
		}
		req.Header.Set(k, expandEnvVars(resolved))
	}

	if cfg.Auth != nil {
		resolved, err := h.secrets.Resolve(cfg.Auth.Value)
		if err != nil {
			resolved = cfg.Auth.Value
		}
		switch cfg.Auth.Type {
		case "x-api-key":
			req.Header.Set("x-api-key", resolved)
		case "bearer":
			req.Header.Set("Authorization", "Bearer "+resolved)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", 0, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

// parseRetryAfter decodes an RFC 7231 Retry-After header, either a
// delta-seconds integer or an HTTP-date. Returns 0 if header is absent,
// malformed, or already in the past.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func (h *HTTPHandler) errorResult(target schema.ExportTarget, msg string) schema.TargetSendResult {
	return schema.TargetSendResult{TargetType: target.Kind, TargetName: target.Name, Success: false, ErrorMessage: msg}
}

func (h *HTTPHandler) TestConnection(ctx context.Context, target schema.ExportTarget) bool {
	var cfg httpTransportConfig
	if err := json.Unmarshal(target.TransportConfig, &cfg); err != nil {
		return false
	}
	client, err := h.client(cfg)
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, expandEnvVars(cfg.endpoint()), nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

func (h *HTTPHandler) ValidateConfig(target schema.ExportTarget) (bool, []string) {
	var cfg httpTransportConfig
	if err := json.Unmarshal(target.TransportConfig, &cfg); err != nil {
		return false, []string{fmt.Sprintf("invalid transport_config: %v", err)}
	}
	if cfg.endpoint() == "" {
		return false, []string{"endpoint/url is required"}
	}
	return true, nil
}

func (h *HTTPHandler) Cleanup() { h.cache.Clear() }

func (h *HTTPHandler) GetStatus() map[string]interface{} {
	return map[string]interface{}{"kind": schema.TargetHTTP}
}
