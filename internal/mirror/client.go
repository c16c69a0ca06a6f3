package mirror

import (
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"modbus_console/internal/logger"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second
	disconnectQuiesce     = 250 // milliseconds

	statusOnline  = "online"
	statusOffline = "offline"
)

var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrNotConnected     = errors.New("mqtt not connected")
	ErrInvalidQoS       = errors.New("mqtt qos must be 0, 1 or 2")
)

// Options configures the broker connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
	QoS      byte
}

// Client publishes retained state messages to an MQTT broker.
type Client struct {
	client pahomqtt.Client
	opts   Options
	log    *logger.Logger
}

func buildClientOptions(o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(statusTopic(o.Prefix), statusOffline, 1, true)
	return opts
}

// Connect dials the broker and publishes the online marker.
func Connect(o Options, log *logger.Logger) (*Client, error) {
	if o.QoS > 2 {
		return nil, ErrInvalidQoS
	}
	log = logger.OrNop(log).Named("mirror")
	opts := buildClientOptions(o)
	c := &Client{opts: o, log: log}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		log.Infow("mirror_connected", "broker", o.Broker)
		c.client.Publish(statusTopic(o.Prefix), 1, true, statusOnline)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warnw("mirror_connection_lost", "err", err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

// Publish sends a retained message without waiting for the broker; delivery failures are logged.
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, c.opts.QoS, true, payload)
	go func() {
		if !token.WaitTimeout(defaultPublishTimeout) {
			c.log.Warnw("mirror_publish_timeout", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			c.log.Warnw("mirror_publish_failed", "topic", topic, "err", err)
		}
	}()
	return nil
}

// Close publishes the offline marker and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.client.IsConnectionOpen() {
		token := c.client.Publish(statusTopic(c.opts.Prefix), 1, true, statusOffline)
		token.WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(disconnectQuiesce)
	return nil
}
