package events

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// MQTTSink republishes push events to an MQTT broker, one topic per event
// name under a configurable prefix (e.g. rfid/tag_detected).
type MQTTSink struct {
	log    *logrus.Entry
	client paho.Client
	prefix string
}

func NewMQTTSink(log *logrus.Entry, host string, port int, clientID, prefix string) (*MQTTSink, error) {
	if port == 0 {
		port = 1883
	}
	broker := fmt.Sprintf("tcp://%s:%d", host, port)

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.WithError(err).Warn("mqtt connection lost")
		}).
		SetOnConnectHandler(func(paho.Client) {
			log.WithField("broker", broker).Info("mqtt connected")
		})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	return &MQTTSink{log: log, client: client, prefix: prefix}, nil
}

func (s *MQTTSink) Publish(event string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.WithError(err).Error("marshal mqtt event")
		return
	}
	s.client.Publish(s.prefix+"/"+event, 0, false, body)
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
