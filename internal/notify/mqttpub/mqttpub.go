// Package mqttpub bridges processed windows onto an MQTT topic so external
// dashboards can follow a capture session live.
package mqttpub

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fverao/powercapd/internal/capture"
	"github.com/fverao/powercapd/internal/errors"
	"github.com/fverao/powercapd/internal/logger"
)

const (
	ErrConnectFailed = errors.ErrorCode("mqtt_connect_failed")

	defaultTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // milliseconds, paho's own unit
)

type Config struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

// Publisher forwards every window as a JSON payload. Delivery runs on the
// capture worker, so publish results are awaited on a separate goroutine
// and failures are logged, never surfaced to the capture loop.
type Publisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	log    logger.Logger
}

func New(cfg Config, log logger.Logger) (*Publisher, error) {
	errFactory := errors.New()

	clientID := cfg.ClientID
	if clientID == "" {
		host, _ := os.Hostname()
		clientID = fmt.Sprintf("powercapd-%s-%d", host, os.Getpid())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(defaultTimeout).
		SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultTimeout) {
		return nil, errFactory.WithData(ErrConnectFailed, cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errFactory.Wrap(ErrConnectFailed, err)
	}

	log.Info().
		Str("broker", cfg.Broker).
		Str("topic", cfg.Topic).
		Msg("MQTT publisher connected")

	return &Publisher{
		client: client,
		topic:  cfg.Topic,
		qos:    cfg.QoS,
		log:    log,
	}, nil
}

func (p *Publisher) OnWindow(w capture.Window) {
	payload, err := json.Marshal(w)
	if err != nil {
		p.log.Warn().Err(err).Int("sequence", w.Sequence).Msg("Failed to encode window for MQTT")
		return
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)
	go func() {
		if token.WaitTimeout(defaultTimeout) && token.Error() != nil {
			p.log.Warn().
				Err(token.Error()).
				Int("sequence", w.Sequence).
				Msg("MQTT publish failed")
		}
	}()
}

func (p *Publisher) Close() {
	p.client.Disconnect(disconnectQuiesce)
	p.log.Debug().Msg("MQTT publisher disconnected")
}
