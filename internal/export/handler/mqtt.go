// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// mqttTransportConfig is the decoded shape of ExportTarget.TransportConfig
// for a TargetMQTT target.
type mqttTransportConfig struct {
	BrokerURL string `json:"broker_url"`
	ClientID  string `json:"client_id"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Topic     string `json:"topic"`
	QoS       byte   `json:"qos"`
	Retain    bool   `json:"retain"`
}

// mqttConn holds a Paho client alongside a mutex so connect, publish and
// disconnect never race on the same target.
type mqttConn struct {
	mu     sync.Mutex
	client mqtt.Client
}

// MQTTHandler publishes to a topic templated per target. Each target's
// connection is cached as an *mqttConn; a publish failure marks the
// client dead so the next call reconnects instead of retrying a broken
// session.
type MQTTHandler struct {
	cache   *ClientCacheManager
	secrets SecretResolver
}

func NewMQTTHandler(cache *ClientCacheManager, secrets SecretResolver) *MQTTHandler {
	return &MQTTHandler{cache: cache, secrets: secrets}
}

func (h *MQTTHandler) Initialize([]byte) error { return nil }

func (h *MQTTHandler) conn(cfg mqttTransportConfig) (*mqttConn, error) {
	key := "mqtt:" + cfg.BrokerURL + ":" + cfg.ClientID
	v, err := h.cache.GetOrCreate(key, func() (interface{}, error) {
		return &mqttConn{}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*mqttConn), nil
}

func (h *MQTTHandler) ensureConnected(c *mqttConn, cfg mqttTransportConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		return nil
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.BrokerURL)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	if cfg.Username != "" {
		password, _ := h.secrets.Resolve(cfg.Password)
		opts.SetUsername(cfg.Username)
		opts.SetPassword(password)
	}
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(false) // reconnect is driven explicitly on the next send, not in the background

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		if token.Error() != nil {
			return token.Error()
		}
		return fmt.Errorf("mqtt: connect to %s timed out", cfg.BrokerURL)
	}

	c.client = client
	return nil
}

func (h *MQTTHandler) publish(ctx context.Context, target schema.ExportTarget, topic string, payload []byte) schema.TargetSendResult {
	var cfg mqttTransportConfig
	if err := json.Unmarshal(target.TransportConfig, &cfg); err != nil {
		return h.errorResult(target, fmt.Sprintf("decoding transport config: %v", err))
	}
	if cfg.QoS == 0 && topic != "" {
		cfg.QoS = 1
	}

	c, err := h.conn(cfg)
	if err != nil {
		return h.errorResult(target, err.Error())
	}

	start := time.Now()
	if err := h.ensureConnected(c, cfg); err != nil {
		return h.errorResult(target, err.Error())
	}

	c.mu.Lock()
	token := c.client.Publish(topic, cfg.QoS, cfg.Retain, payload)
	ok := token.WaitTimeout(10 * time.Second)
	tokenErr := token.Error()
	if !ok || tokenErr != nil {
		c.client.Disconnect(0) // mark dead: force a fresh connect on the next call
		c.client = nil
	}
	c.mu.Unlock()

	if tokenErr != nil {
		return h.errorResult(target, tokenErr.Error())
	}
	if !ok {
		return h.errorResult(target, fmt.Sprintf("mqtt: publish to %s timed out", topic))
	}

	return schema.TargetSendResult{
		TargetType: target.Kind, TargetName: target.Name, Success: true, StatusCode: 0,
		SentPayload: schema.TruncateForLog(string(payload)), ResponseBody: topic,
		AttemptCount: 1, LatencyMs: time.Since(start).Milliseconds(),
	}
}

func (h *MQTTHandler) SendAlarm(ctx context.Context, alarm schema.Alarm, target schema.ExportTarget) schema.TargetSendResult {
	payload, err := json.Marshal(alarm)
	if err != nil {
		return h.errorResult(target, fmt.Sprintf("marshaling alarm: %v", err))
	}
	return h.publish(ctx, target, mqttTopic(target, strconv.FormatInt(alarm.PointID, 10)), payload)
}

func (h *MQTTHandler) SendValueBatch(ctx context.Context, values []schema.TimestampedValue, target schema.ExportTarget) []schema.TargetSendResult {
	results := make([]schema.TargetSendResult, len(values))
	for i, v := range values {
		payload, err := json.Marshal(v)
		if err != nil {
			results[i] = h.errorResult(target, fmt.Sprintf("marshaling value: %v", err))
			continue
		}
		results[i] = h.publish(ctx, target, mqttTopic(target, strconv.FormatInt(v.PointID, 10)), payload)
	}
	return results
}

// SendPayload delivers an already-rendered payload to the target's
// templated topic, using the fixed point name "alarm" since no concrete
// point is associated with a pre-rendered payload.
func (h *MQTTHandler) SendPayload(ctx context.Context, payload []byte, target schema.ExportTarget) schema.TargetSendResult {
	return h.publish(ctx, target, mqttTopic(target, "alarm"), payload)
}

// mqttTopic expands {point_name} in the target's topic template.
func mqttTopic(target schema.ExportTarget, pointName string) string {
	var cfg mqttTransportConfig
	_ = json.Unmarshal(target.TransportConfig, &cfg)
	topic := cfg.Topic
	if topic == "" {
		topic = "pulseone/{point_name}"
	}
	return strings.ReplaceAll(topic, "{point_name}", pointName)
}

func (h *MQTTHandler) errorResult(target schema.ExportTarget, msg string) schema.TargetSendResult {
	return schema.TargetSendResult{TargetType: target.Kind, TargetName: target.Name, Success: false, ErrorMessage: msg}
}

func (h *MQTTHandler) TestConnection(ctx context.Context, target schema.ExportTarget) bool {
	var cfg mqttTransportConfig
	if err := json.Unmarshal(target.TransportConfig, &cfg); err != nil {
		return false
	}
	c, err := h.conn(cfg)
	if err != nil {
		return false
	}
	return h.ensureConnected(c, cfg) == nil
}

func (h *MQTTHandler) ValidateConfig(target schema.ExportTarget) (bool, []string) {
	var cfg mqttTransportConfig
	if err := json.Unmarshal(target.TransportConfig, &cfg); err != nil {
		return false, []string{fmt.Sprintf("invalid transport_config: %v", err)}
	}
	if cfg.BrokerURL == "" {
		return false, []string{"broker_url is required"}
	}
	return true, nil
}

func (h *MQTTHandler) Cleanup() { h.cache.Clear() }

func (h *MQTTHandler) GetStatus() map[string]interface{} {
	return map[string]interface{}{"kind": schema.TargetMQTT}
}
