// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

type noopSecrets struct{}

func (noopSecrets) Resolve(s string) (string, error) { return s, nil }

func httpTarget(t *testing.T, url string, retry schema.RetryPolicyConfig) schema.ExportTarget {
	t.Helper()
	cfg, err := json.Marshal(httpTransportConfig{URL: url})
	if err != nil {
		t.Fatalf("marshal transport config: %v", err)
	}
	retryJSON, err := json.Marshal(retry)
	if err != nil {
		t.Fatalf("marshal retry policy: %v", err)
	}
	return schema.ExportTarget{Kind: schema.TargetHTTP, Name: "t1", TransportConfig: cfg, RetryPolicy: retryJSON}
}

func TestHTTPHandlerRetriesOn429AndHonorsRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHTTPHandler(NewClientCacheManager(8, 60), noopSecrets{})
	target := httpTarget(t, srv.URL, schema.RetryPolicyConfig{MaxRetries: 2, InitialDelayMs: 5, Multiplier: 2})

	result := h.SendAlarm(context.Background(), schema.Alarm{PointID: 1}, target)

	if !result.Success {
		t.Fatalf("SendAlarm did not succeed after a 429 retry: %+v", result)
	}
	if result.AttemptCount != 2 {
		t.Fatalf("AttemptCount = %d, want 2 (one 429 then a success)", result.AttemptCount)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("server received %d calls, want 2", calls)
	}
}

func TestHTTPHandlerCapsRetryAfterAtMaxDelay(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "3600")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHTTPHandler(NewClientCacheManager(8, 60), noopSecrets{})
	target := httpTarget(t, srv.URL, schema.RetryPolicyConfig{MaxRetries: 2, InitialDelayMs: 5, Multiplier: 2, MaxDelayMs: 20})

	start := time.Now()
	result := h.SendAlarm(context.Background(), schema.Alarm{PointID: 1}, target)
	elapsed := time.Since(start)

	if !result.Success {
		t.Fatalf("SendAlarm did not eventually succeed: %+v", result)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("a 3600s Retry-After was not capped by max_delay_ms: waited %v", elapsed)
	}
}

func TestHTTPHandlerNonRetryable4xxStopsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	h := NewHTTPHandler(NewClientCacheManager(8, 60), noopSecrets{})
	target := httpTarget(t, srv.URL, schema.RetryPolicyConfig{MaxRetries: 3, InitialDelayMs: 5, Multiplier: 2})

	result := h.SendAlarm(context.Background(), schema.Alarm{PointID: 1}, target)

	if result.Success {
		t.Fatal("SendAlarm reported success for a 400 response")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("server received %d calls for a non-retryable 400, want 1", calls)
	}
}
