// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
)

// MQTT publishes messages to one topic
type MQTT struct {
	client mqtt.Client
	topic  string
}

// NewMQTT wraps a connected client
func NewMQTT(client mqtt.Client, topic string) *MQTT {
	return &MQTT{client: client, topic: topic}
}

// DialMQTT connects to broker and returns a publisher for topic
func DialMQTT(broker, clientID, topic string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		glog.Warningf("mqtt: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", broker, err)
	}
	glog.Infof("mqtt: connected to %s as %s", broker, clientID)
	return NewMQTT(client, topic), nil
}

// Publish sends m as a JSON payload at QoS 0
func (p *MQTT) Publish(m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, 0, false, body)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt: publish to %s timed out", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close disconnects from the broker
func (p *MQTT) Close() {
	p.client.Disconnect(250)
}
