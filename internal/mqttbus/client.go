// Package mqttbus owns the broker connection and the topic layout:
// commands arrive on {topic}, {topic}/play and {topic}/control, and
// outcomes go out on {topic}/response.
package mqttbus

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mhdawson/MqttDlnaPlay/internal/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	inboundDepth   = 64
)

// Handler receives every inbound command message.
type Handler func(ctx context.Context, topic string, payload []byte)

type inboundMessage struct {
	topic   string
	payload []byte
}

type Client struct {
	cfg     config.MQTT
	client  mqtt.Client
	handler Handler
	logger  *slog.Logger
	runCtx  context.Context
	inbound chan inboundMessage
}

// New configures the paho client but does not connect yet.
func New(runCtx context.Context, cfg config.MQTT, handler Handler, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		runCtx:  runCtx,
		inbound: make(chan inboundMessage, inboundDepth),
	}
	go c.dispatch()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt_connection_lost", slog.String("error", err.Error()))
	})

	if cfg.UsesTLS() {
		tlsConfig, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	c.client = mqtt.NewClient(opts)
	return c, nil
}

func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect to %s timed out", c.cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", c.cfg.BrokerURL, err)
	}
	return nil
}

func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

// onConnect runs on every (re)connect, so subscriptions survive broker
// restarts.
func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info("mqtt_connected", slog.String("broker", c.cfg.BrokerURL))
	for _, topic := range []string{
		c.cfg.Topic,
		c.cfg.Topic + "/play",
		c.cfg.Topic + "/control",
	} {
		token := client.Subscribe(topic, 0, c.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Error("mqtt_subscribe_failed",
				slog.String("topic", topic),
				slog.String("error", err.Error()))
		}
	}
}

// onMessage queues the command for the dispatcher. The queue keeps the
// broker's delivery order; the paho router only blocks when the queue
// is full.
func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.enqueue(msg.Topic(), msg.Payload())
}

func (c *Client) enqueue(topic string, payload []byte) {
	select {
	case c.inbound <- inboundMessage{topic: topic, payload: payload}:
	case <-c.runCtx.Done():
	}
}

// dispatch feeds queued commands to the handler one at a time, so
// messages reach the bridge in the order the broker delivered them.
func (c *Client) dispatch() {
	for {
		select {
		case <-c.runCtx.Done():
			return
		case msg := <-c.inbound:
			c.handler(c.runCtx, msg.topic, msg.payload)
		}
	}
}

// PublishResponse reports a command outcome on {topic}/response.
func (c *Client) PublishResponse(text string) {
	token := c.client.Publish(c.cfg.Topic+"/response", 0, false, text)
	if !token.WaitTimeout(publishTimeout) {
		c.logger.Warn("mqtt_publish_timeout", slog.String("text", text))
		return
	}
	if err := token.Error(); err != nil {
		c.logger.Error("mqtt_publish_failed",
			slog.String("text", text),
			slog.String("error", err.Error()))
	}
}

func buildTLSConfig(cfg config.TLS) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}

	caPEM, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
	}, nil
}
