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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// s3TransportConfig is the decoded shape of ExportTarget.TransportConfig
// for a TargetS3 target.
type s3TransportConfig struct {
	Bucket            string `json:"bucket"`
	Region            string `json:"region"`
	AccessKeyID       string `json:"access_key_id"`
	SecretAccessKey   string `json:"secret_access_key"`
	EndpointURL       string `json:"endpoint_url"` // MinIO / non-AWS override
	Folder            string `json:"folder"`
	ObjectKeyTemplate string `json:"object_key_template"`
}

// maxInFlightUploads bounds how many objects SendValueBatch puts in
// parallel, per §4.7.
const maxInFlightUploads = 5

// S3Handler writes alarm/value payloads as individual objects under a
// templated key. Stateless: its *s3.Client is cached in
// ClientCacheManager, keyed by bucket+region+endpoint.
type S3Handler struct {
	cache   *ClientCacheManager
	secrets SecretResolver
}

func NewS3Handler(cache *ClientCacheManager, secrets SecretResolver) *S3Handler {
	return &S3Handler{cache: cache, secrets: secrets}
}

func (h *S3Handler) Initialize([]byte) error { return nil }

func (h *S3Handler) client(ctx context.Context, cfg s3TransportConfig) (*s3.Client, error) {
	key := "s3:" + cfg.Bucket + ":" + cfg.Region + ":" + cfg.EndpointURL
	v, err := h.cache.GetOrCreate(key, func() (interface{}, error) {
		return h.buildClient(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	return v.(*s3.Client), nil
}

func (h *S3Handler) buildClient(ctx context.Context, cfg s3TransportConfig) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	accessKey, _ := h.secrets.Resolve(cfg.AccessKeyID)
	secretKey, _ := h.secrets.Resolve(cfg.SecretAccessKey)
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true // MinIO and most S3-compatible stores need path style
		}
	}), nil
}

func (h *S3Handler) SendAlarm(ctx context.Context, alarm schema.Alarm, target schema.ExportTarget) schema.TargetSendResult {
	payload, err := json.Marshal(alarm)
	if err != nil {
		return h.errorResult(target, fmt.Sprintf("marshaling alarm: %v", err))
	}
	key := objectKey(target, alarmKeyVars(alarm))
	return h.putObject(ctx, target, key, payload)
}

func (h *S3Handler) SendValueBatch(ctx context.Context, values []schema.TimestampedValue, target schema.ExportTarget) []schema.TargetSendResult {
	results := make([]schema.TargetSendResult, len(values))

	sem := make(chan struct{}, maxInFlightUploads)
	var wg sync.WaitGroup

	for i, v := range values {
		i, v := i, v
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			payload, err := json.Marshal(v)
			if err != nil {
				results[i] = h.errorResult(target, fmt.Sprintf("marshaling value: %v", err))
				return
			}
			key := objectKey(target, valueKeyVars(v))
			results[i] = h.putObject(ctx, target, key, payload)
		}()
	}
	wg.Wait()
	return results
}

// SendPayload delivers an already-rendered payload (typically the
// output of the C8 transformer), keyed by the current time with
// point_name fixed to "alarm", since no alarm/value is available to
// derive point_name/value variables from.
func (h *S3Handler) SendPayload(ctx context.Context, payload []byte, target schema.ExportTarget) schema.TargetSendResult {
	key := objectKey(target, genericKeyVars())
	return h.putObject(ctx, target, key, payload)
}

func genericKeyVars() map[string]string {
	now := time.Now().UTC()
	return map[string]string{
		"point_name": "alarm",
		"timestamp":  strconv.FormatInt(now.UnixMilli(), 10),
		"year":       fmt.Sprintf("%04d", now.Year()),
		"month":      fmt.Sprintf("%02d", now.Month()),
		"day":        fmt.Sprintf("%02d", now.Day()),
		"hour":       fmt.Sprintf("%02d", now.Hour()),
		"minute":     fmt.Sprintf("%02d", now.Minute()),
		"second":     fmt.Sprintf("%02d", now.Second()),
		"date":       now.Format("2006-01-02"),
	}
}

func (h *S3Handler) putObject(ctx context.Context, target schema.ExportTarget, key string, payload []byte) schema.TargetSendResult {
	var cfg s3TransportConfig
	if err := json.Unmarshal(target.TransportConfig, &cfg); err != nil {
		return h.errorResult(target, fmt.Sprintf("decoding transport config: %v", err))
	}

	client, err := h.client(ctx, cfg)
	if err != nil {
		return h.errorResult(target, err.Error())
	}

	start := time.Now()
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return schema.TargetSendResult{
			TargetType: target.Kind, TargetName: target.Name, Success: false,
			ErrorMessage: err.Error(), SentPayload: schema.TruncateForLog(string(payload)),
			AttemptCount: 1, LatencyMs: time.Since(start).Milliseconds(),
		}
	}

	return schema.TargetSendResult{
		TargetType: target.Kind, TargetName: target.Name, Success: true, StatusCode: 200,
		SentPayload: schema.TruncateForLog(string(payload)), ResponseBody: key,
		AttemptCount: 1, LatencyMs: time.Since(start).Milliseconds(),
	}
}

// objectKey expands {variable} placeholders in the target's
// object_key_template against vars, prepending folder if set. Unknown
// placeholders are left untouched.
func objectKey(target schema.ExportTarget, vars map[string]string) string {
	var cfg s3TransportConfig
	_ = json.Unmarshal(target.TransportConfig, &cfg)

	tmpl := cfg.ObjectKeyTemplate
	if tmpl == "" {
		tmpl = "{point_name}/{date}/{timestamp}.json"
	}

	key := tmpl
	for name, val := range vars {
		key = strings.ReplaceAll(key, "{"+name+"}", val)
	}

	if cfg.Folder != "" {
		key = strings.TrimSuffix(cfg.Folder, "/") + "/" + strings.TrimPrefix(key, "/")
	}
	return key
}

func alarmKeyVars(a schema.Alarm) map[string]string {
	now := time.UnixMilli(a.TimestampMs).UTC()
	return map[string]string{
		"building_id":  strconv.FormatInt(a.SiteID, 10),
		"point_name":   a.PointName,
		"value":        a.MeasuredValue.String(),
		"alarm_flag":   strconv.FormatBool(a.AlarmFlag),
		"status":       a.Status,
		"alarm_status": a.AlarmStatus(),
		"timestamp":    strconv.FormatInt(a.TimestampMs, 10),
		"year":         fmt.Sprintf("%04d", now.Year()),
		"month":        fmt.Sprintf("%02d", now.Month()),
		"day":          fmt.Sprintf("%02d", now.Day()),
		"hour":         fmt.Sprintf("%02d", now.Hour()),
		"minute":       fmt.Sprintf("%02d", now.Minute()),
		"second":       fmt.Sprintf("%02d", now.Second()),
		"date":         now.Format("2006-01-02"),
	}
}

func valueKeyVars(v schema.TimestampedValue) map[string]string {
	now := time.UnixMilli(v.TimestampMs).UTC()
	return map[string]string{
		"point_name": strconv.FormatInt(v.PointID, 10),
		"value":      v.Value.String(),
		"timestamp":  strconv.FormatInt(v.TimestampMs, 10),
		"year":       fmt.Sprintf("%04d", now.Year()),
		"month":      fmt.Sprintf("%02d", now.Month()),
		"day":        fmt.Sprintf("%02d", now.Day()),
		"hour":       fmt.Sprintf("%02d", now.Hour()),
		"minute":     fmt.Sprintf("%02d", now.Minute()),
		"second":     fmt.Sprintf("%02d", now.Second()),
		"date":       now.Format("2006-01-02"),
	}
}

func (h *S3Handler) errorResult(target schema.ExportTarget, msg string) schema.TargetSendResult {
	return schema.TargetSendResult{TargetType: target.Kind, TargetName: target.Name, Success: false, ErrorMessage: msg}
}

func (h *S3Handler) TestConnection(ctx context.Context, target schema.ExportTarget) bool {
	var cfg s3TransportConfig
	if err := json.Unmarshal(target.TransportConfig, &cfg); err != nil {
		return false
	}
	client, err := h.client(ctx, cfg)
	if err != nil {
		return false
	}
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)})
	return err == nil
}

func (h *S3Handler) ValidateConfig(target schema.ExportTarget) (bool, []string) {
	var cfg s3TransportConfig
	if err := json.Unmarshal(target.TransportConfig, &cfg); err != nil {
		return false, []string{fmt.Sprintf("invalid transport_config: %v", err)}
	}
	if cfg.Bucket == "" {
		return false, []string{"bucket is required"}
	}
	return true, nil
}

func (h *S3Handler) Cleanup() { h.cache.Clear() }

func (h *S3Handler) GetStatus() map[string]interface{} {
	return map[string]interface{}{"kind": schema.TargetS3}
}
