// Package mqtt publishes polled values to an MQTT broker, one retained
// topic per item.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/zberg/go-vclient/internal/config"
	"github.com/zberg/go-vclient/pkg/vcontrold"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesce     = 250 // milliseconds

	statusOnline  = "online"
	statusOffline = "offline"
)

var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrNotConnected     = errors.New("mqtt: client not connected")
)

// client is the part of pahomqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// Publisher writes every item of a result to <prefix>/<item>. Failed items
// go to <prefix>/<item>/error, unretained. The broker holds "offline" on
// <prefix>/status as last will.
type Publisher struct {
	client client
	cfg    config.MQTTConfig
	logger *slog.Logger
}

// Connect dials the broker described by cfg. logger may be nil.
func Connect(cfg config.MQTTConfig, logger *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: no broker configured", ErrConnectionFailed)
	}

	opts := buildClientOptions(cfg)
	c := pahomqtt.NewClient(opts)

	token := c.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	p := newPublisher(c, cfg, logger)
	if err := p.publish(context.Background(), p.statusTopic(), statusOnline, true); err != nil {
		c.Disconnect(disconnectQuiesce)
		return nil, err
	}
	if logger != nil {
		logger.Info("connected to mqtt broker", "broker", cfg.Broker)
	}
	return p, nil
}

func newPublisher(c client, cfg config.MQTTConfig, logger *slog.Logger) *Publisher {
	return &Publisher{client: c, cfg: cfg, logger: logger}
}

func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetWill(topicJoin(cfg.TopicPrefix, "status"), statusOffline, byte(cfg.QoS), true)
	return opts
}

// Topic returns the topic an item's value is published to.
func (p *Publisher) Topic(item string) string {
	return topicJoin(p.cfg.TopicPrefix, item)
}

func (p *Publisher) statusTopic() string {
	return topicJoin(p.cfg.TopicPrefix, "status")
}

func topicJoin(prefix, name string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Write publishes every item of res.
func (p *Publisher) Write(ctx context.Context, res *vcontrold.Result) error {
	var errs []error
	for _, it := range res.Items() {
		var err error
		if it.Err != nil {
			err = p.publish(ctx, p.Topic(it.Name)+"/error", it.Err.Error(), false)
		} else {
			err = p.publish(ctx, p.Topic(it.Name), vcontrold.DisplayValue(it), p.cfg.Retain)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", it.Name, err))
		}
	}
	if p.logger != nil {
		p.logger.Debug("published result", "items", res.Len(), "errors", len(errs))
	}
	return errors.Join(errs...)
}

func (p *Publisher) publish(ctx context.Context, topic, payload string, retained bool) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := p.client.Publish(topic, byte(p.cfg.QoS), retained, payload)
	timer := time.NewTimer(defaultPublishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrPublishFailed, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close marks the client offline and disconnects.
func (p *Publisher) Close() error {
	if p.client.IsConnectionOpen() {
		if err := p.publish(context.Background(), p.statusTopic(), statusOffline, true); err != nil && p.logger != nil {
			p.logger.Warn("failed to publish offline status", "error", err)
		}
	}
	p.client.Disconnect(disconnectQuiesce)
	return nil
}
