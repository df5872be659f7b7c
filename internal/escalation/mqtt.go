package escalation

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/config"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// MQTTChannel publishes alerts to a broker topic consumed by ward
// displays and the dashboard service.
type MQTTChannel struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger
}

func NewMQTTChannel(cfg *config.Config, logger *zap.Logger) (*MQTTChannel, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Channels.MQTTBroker)
	opts.SetClientID(cfg.Channels.MQTTClientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTChannel{
		client: client,
		topic:  cfg.Channels.MQTTTopic,
		logger: logger,
	}, nil
}

func (c *MQTTChannel) Name() string { return "mqtt" }

func (c *MQTTChannel) Send(ctx context.Context, result models.ComplianceCheckResult, role, recipientID, recipientName string) error {
	payload, err := json.Marshal(map[string]any{
		"journey_id":     result.JourneyID,
		"trigger":        string(result.Trigger),
		"severity":       string(result.Severity),
		"recommendation": result.Recommendation,
		"recipient_role": role,
		"recipient_id":   recipientID,
		"recipient_name": recipientName,
		"checked_at":     result.CheckedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	token := c.client.Publish(c.topic, 1, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", c.topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (c *MQTTChannel) Close() {
	c.client.Disconnect(250)
}
