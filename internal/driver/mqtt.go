// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/smart-guard/pulseone-core/pkg/log"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// mqttConfig is the decoded shape of Device.ConfigJSON for an MQTT
// device — "device" here really means "broker connection plus the set of
// topics this logical device's points subscribe under".
type mqttConfig struct {
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	QoS      byte   `json:"qos"`
}

// MQTTDriver implements ProtocolDriver over Paho. Unlike Modbus, MQTT has
// no poll model: ReadSingle/ReadBatch return the last value received on
// each point's topic, and Subscribe is the primary ingress path.
type MQTTDriver struct {
	baseDriver
	endpoint string
	cfg      mqttConfig
	client   mqtt.Client

	mu      sync.RWMutex
	last    map[int64]ReadResult
	subs    map[SubscriptionHandle]subEntry
	subSeq  uint64
}

type subEntry struct {
	point PointDescriptor
	topic string
}

func NewMQTTDriver() *MQTTDriver {
	return &MQTTDriver{
		last: make(map[int64]ReadResult),
		subs: make(map[SubscriptionHandle]subEntry),
	}
}

func (d *MQTTDriver) Initialize(_ context.Context, endpoint string, configJSON []byte) error {
	d.endpoint = endpoint
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &d.cfg); err != nil {
			return d.setError(schema.DriverErrorFatal, "BAD_CONFIG", err.Error())
		}
	}
	if d.cfg.QoS == 0 {
		d.cfg.QoS = 1
	}
	if d.cfg.ClientID == "" {
		d.cfg.ClientID = fmt.Sprintf("pulseone-%s", endpoint)
	}
	return nil
}

func (d *MQTTDriver) Connect(_ context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(d.endpoint).
		SetClientID(d.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	if d.cfg.Username != "" {
		opts.SetUsername(d.cfg.Username)
		opts.SetPassword(d.cfg.Password)
	}
	opts.SetConnectionLostHandler(func(mqtt.Client, error) {
		d.mu.Lock()
		d.connected = false
		d.mu.Unlock()
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return d.setError(schema.DriverErrorTransient, "CONNECT_TIMEOUT", "mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return d.setError(schema.DriverErrorTransient, "CONNECT", err.Error())
	}

	d.client = client
	d.connected = true
	return nil
}

func (d *MQTTDriver) Disconnect() error {
	if d.client != nil {
		d.client.Disconnect(250)
		d.client = nil
	}
	d.connected = false
	return nil
}

// ReadSingle returns the last value delivered on point's topic; MQTT has
// no request/response read, so this is purely a cache lookup.
func (d *MQTTDriver) ReadSingle(_ context.Context, point PointDescriptor) (schema.Value, schema.Quality, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.last[point.PointID]
	if !ok {
		return schema.Value{}, schema.QualityUncertain, nil
	}
	return r.Value, r.Quality, nil
}

func (d *MQTTDriver) ReadBatch(_ context.Context, points []PointDescriptor) ([]ReadResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	results := make([]ReadResult, 0, len(points))
	for _, p := range points {
		if r, ok := d.last[p.PointID]; ok {
			results = append(results, r)
		} else {
			results = append(results, ReadResult{PointID: p.PointID, Quality: schema.QualityUncertain})
		}
	}
	return results, nil
}

// WriteSingle publishes value to point's configured topic.
func (d *MQTTDriver) WriteSingle(_ context.Context, point PointDescriptor, value schema.Value) error {
	if d.client == nil {
		return d.setError(schema.DriverErrorTransient, "NOT_CONNECTED", "mqtt client not connected")
	}
	topic := point.Params["topic"]
	if topic == "" {
		return d.setError(schema.DriverErrorFatal, "NO_TOPIC", "write point has no topic param")
	}
	token := d.client.Publish(topic, d.cfg.QoS, false, value.String())
	if !token.WaitTimeout(3 * time.Second) {
		return d.setError(schema.DriverErrorTransient, "PUBLISH_TIMEOUT", "publish timed out")
	}
	return token.Error()
}

// Subscribe subscribes to point's topic and forwards every message to cb,
// caching the decoded value for subsequent ReadSingle/ReadBatch calls.
func (d *MQTTDriver) Subscribe(point PointDescriptor, cb AsyncCallback) (SubscriptionHandle, error) {
	if d.client == nil {
		return "", d.setError(schema.DriverErrorTransient, "NOT_CONNECTED", "mqtt client not connected")
	}
	topic := point.Params["topic"]
	if topic == "" {
		return "", d.setError(schema.DriverErrorFatal, "NO_TOPIC", "subscribe point has no topic param")
	}

	token := d.client.Subscribe(topic, d.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		v := schema.NewStringValue(string(msg.Payload()))
		d.mu.Lock()
		d.last[point.PointID] = ReadResult{PointID: point.PointID, Value: v, Quality: schema.QualityGood}
		d.mu.Unlock()
		if cb != nil {
			cb(point, v, schema.QualityGood)
		}
	})
	if !token.WaitTimeout(5 * time.Second) {
		return "", d.setError(schema.DriverErrorTransient, "SUBSCRIBE_TIMEOUT", "subscribe timed out")
	}
	if err := token.Error(); err != nil {
		return "", d.setError(schema.DriverErrorTransient, "SUBSCRIBE", err.Error())
	}

	d.mu.Lock()
	d.subSeq++
	handle := SubscriptionHandle(fmt.Sprintf("mqtt-%d", d.subSeq))
	d.subs[handle] = subEntry{point: point, topic: topic}
	d.mu.Unlock()

	return handle, nil
}

func (d *MQTTDriver) Unsubscribe(handle SubscriptionHandle) error {
	d.mu.Lock()
	entry, ok := d.subs[handle]
	if ok {
		delete(d.subs, handle)
	}
	d.mu.Unlock()

	if !ok {
		return nil
	}
	if d.client == nil {
		return nil
	}
	token := d.client.Unsubscribe(entry.topic)
	token.WaitTimeout(3 * time.Second)
	if err := token.Error(); err != nil {
		log.Warnf("mqtt: unsubscribe %s: %v", entry.topic, err)
		return err
	}
	return nil
}

func (d *MQTTDriver) GetProtocolType() string { return schema.ProtocolMQTT }
