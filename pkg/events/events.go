// Package events publishes detection results to an MQTT broker.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/MrCodeEU/facedetect/pkg/config"
	"github.com/MrCodeEU/facedetect/pkg/logging"
	"github.com/MrCodeEU/facedetect/pkg/recognition"
)

const publishTimeout = 5 * time.Second

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// Rect is a face box in frame pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FaceEvent describes one face in an Event.
type FaceEvent struct {
	Label    string  `json:"label,omitempty"`
	Distance float64 `json:"distance,omitempty"`
	Rect     Rect    `json:"rect"`
}

// Event is the JSON document published for a frame with faces.
type Event struct {
	Session   string      `json:"session"`
	Frame     int         `json:"frame"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Faces     []FaceEvent `json:"faces"`
}

// NewEvent builds an event from detection results. Distances are only
// reported for faces matched to a known name.
func NewEvent(session string, frame int, ts time.Time, source string, faces []recognition.Face) Event {
	ev := Event{
		Session:   session,
		Frame:     frame,
		Timestamp: ts,
		Source:    source,
		Faces:     make([]FaceEvent, len(faces)),
	}
	for i, f := range faces {
		fe := FaceEvent{Label: f.Label, Rect: toRect(f.Rect)}
		if f.Label != "" && f.Label != recognition.UnknownLabel {
			fe.Distance = f.Distance
		}
		ev.Faces[i] = fe
	}
	return ev
}

func toRect(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Publisher sends detection events somewhere.
type Publisher interface {
	Publish(ev Event) error
	Close() error
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(Event) error { return nil }
func (Nop) Close() error { return nil }

// client is the subset of mqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes events as JSON to <topic>/<session>.
type MQTTPublisher struct {
	client client
	topic  string
	qos    byte
}

// NewMQTTPublisher connects to the configured broker. An empty client id
// is replaced by a random one.
func NewMQTTPublisher(cfg config.EventsConfig) (*MQTTPublisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "facedetect-" + uuid.New().String()
	}

	log := logging.Component("events").WithFields(logging.Fields{
		"broker":    cfg.Broker,
		"client_id": clientID,
	})

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	})

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}

	log.Info("Connected to MQTT broker")
	return newMQTTPublisher(c, cfg.Topic, cfg.QoS), nil
}

func newMQTTPublisher(c client, topic string, qos int) *MQTTPublisher {
	return &MQTTPublisher{client: c, topic: topic, qos: byte(qos)}
}

// Topic returns the topic events of a session are published to.
func (p *MQTTPublisher) Topic(session string) string {
	return p.topic + "/" + session
}

func (p *MQTTPublisher) Publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	token := p.client.Publish(p.Topic(ev.Session), p.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return ErrTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (p *MQTTPublisher) Close() error {
	if p.client == nil {
		return nil
	}
	p.client.Disconnect(250)
	p.client = nil
	return nil
}
