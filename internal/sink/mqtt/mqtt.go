package mqtt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink"
)

const (
	defaultInflight = 256
	connectTimeout  = 10 * time.Second
	publishTimeout  = 30 * time.Second
)

type Config struct {
	Broker      string // tcp://host:1883
	TopicPrefix string
	ClientID    string
	QoS         byte
	// Inflight: сколько публикаций отправляется до ожидания подтверждений.
	Inflight int
	Codec    reading.Codec
}

// publisher: часть paho.Client, которую использует Publisher.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher публикует каждое показание в топик <prefix>/<device> с JSON-телом.
type Publisher struct {
	client   publisher
	prefix   string
	qos      byte
	inflight int
	codec    reading.Codec
}

func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker URL is empty")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt: invalid QoS %d", cfg.QoS)
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("datagen-%d", time.Now().UnixNano())
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(false)
	client := paho.NewClient(opts)

	token := client.Connect()
	if err := waitToken(ctx, token, connectTimeout); err != nil {
		return nil, fmt.Errorf("%w: mqtt: connect %s: %w", sink.ErrConnection, cfg.Broker, err)
	}
	log.Printf("mqtt: connected to %s as %s", cfg.Broker, clientID)
	return newWithClient(client, cfg), nil
}

func newWithClient(c publisher, cfg Config) *Publisher {
	inflight := cfg.Inflight
	if inflight <= 0 {
		inflight = defaultInflight
	}
	codec := cfg.Codec
	if codec == "" {
		codec = reading.CSV
	}
	return &Publisher{
		client:   c,
		prefix:   strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:      cfg.QoS,
		inflight: inflight,
		codec:    codec,
	}
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// Topic возвращает топик для устройства.
func (p *Publisher) Topic(deviceID string) string {
	if p.prefix == "" {
		return deviceID
	}
	return p.prefix + "/" + deviceID
}

func (p *Publisher) Load(ctx context.Context, r io.Reader) (int64, error) {
	dec := p.codec.NewDecoder(r)
	pending := make([]paho.Token, 0, p.inflight)
	var total int64

	drain := func() error {
		for _, tok := range pending {
			if err := waitToken(ctx, tok, publishTimeout); err != nil {
				return fmt.Errorf("mqtt: publish: %w", err)
			}
		}
		total += int64(len(pending))
		pending = pending[:0]
		return nil
	}

	for {
		rd, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}
		pending = append(pending, p.client.Publish(p.Topic(rd.DeviceID), p.qos, false, rd.JSON()))
		if len(pending) >= p.inflight {
			if err := drain(); err != nil {
				return total, err
			}
		}
	}
	if err := drain(); err != nil {
		return total, err
	}
	log.Printf("mqtt: published %d messages under %s", total, p.prefix)
	return total, nil
}

func waitToken(ctx context.Context, tok paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timeout after %s", timeout)
	}
}
