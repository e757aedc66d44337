package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Venus OS publishes tank levels as a fraction under per-device topics.
// Tank 3 is the low (source) reservoir, tank 4 the high (destination) one.
const (
	topicLowFmt  = "N/%s/tank/3/Level"
	topicHighFmt = "N/%s/tank/4/Level"
)

// levelPayload is the Venus OS message body: {"value": 0.42} for 42%.
type levelPayload struct {
	Value *float64 `json:"value"`
}

// Source subscribes to the Venus OS tank level topics and writes readings
// into a Feed. Reconnection is the paho client's job; Source only flips the
// Feed's connected flag from the connection callbacks and re-subscribes.
type Source struct {
	client paho.Client
	feed   *Feed

	topicLow  string
	topicHigh string
	now       func() time.Time
}

// NewSource creates a Source for the given broker and Victron device ID.
// It does not connect; call Start.
func NewSource(broker, deviceID string, feed *Feed) *Source {
	s := &Source{
		feed:      feed,
		topicLow:  fmt.Sprintf(topicLowFmt, deviceID),
		topicHigh: fmt.Sprintf(topicHighFmt, deviceID),
		now:       time.Now,
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("pump-controller").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost)

	s.client = paho.NewClient(opts)
	return s
}

// Start connects to the broker. Subscription happens in the OnConnect
// handler so it is re-established after every reconnect.
func (s *Source) Start() error {
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// Close disconnects from the broker and marks the feed disconnected.
func (s *Source) Close() error {
	s.client.Disconnect(1000) // 1 second timeout
	s.feed.SetConnected(false)
	return nil
}

func (s *Source) onConnect(c paho.Client) {
	log.Printf("telemetry: connected to broker")
	s.feed.SetConnected(true)

	if token := c.Subscribe(s.topicLow, 0, s.handleLow); token.Wait() && token.Error() != nil {
		log.Printf("telemetry: subscribe %s: %v", s.topicLow, token.Error())
	}
	if token := c.Subscribe(s.topicHigh, 0, s.handleHigh); token.Wait() && token.Error() != nil {
		log.Printf("telemetry: subscribe %s: %v", s.topicHigh, token.Error())
	}
}

func (s *Source) onConnectionLost(_ paho.Client, err error) {
	log.Printf("telemetry: connection lost: %v", err)
	s.feed.SetConnected(false)
}

func (s *Source) handleLow(_ paho.Client, msg paho.Message) {
	s.handleLevel(TankLow, msg.Payload())
}

func (s *Source) handleHigh(_ paho.Client, msg paho.Message) {
	s.handleLevel(TankHigh, msg.Payload())
}

// handleLevel decodes a Venus OS level payload and stores it. The broker
// sends the level as a fraction; the feed stores percentages.
func (s *Source) handleLevel(tank Tank, payload []byte) {
	var p levelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Printf("telemetry: bad payload for %s tank: %v", tank, err)
		return
	}
	if p.Value == nil {
		log.Printf("telemetry: payload for %s tank has no value", tank)
		return
	}

	s.feed.Update(Reading{
		Tank:       tank,
		Percentage: *p.Value * 100,
		ObservedAt: s.now(),
	})
}
