package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// webhookPayload is the JSON body posted per alert.
type webhookPayload struct {
	JourneyID      string                    `json:"journey_id"`
	Trigger        string                    `json:"trigger"`
	Severity       string                    `json:"severity"`
	Recommendation string                    `json:"recommendation"`
	RecipientRole  string                    `json:"recipient_role"`
	RecipientID    string                    `json:"recipient_id,omitempty"`
	RecipientName  string                    `json:"recipient_name,omitempty"`
	Snapshot       models.ComplianceSnapshot `json:"snapshot"`
}

// WebhookChannel posts alerts to a hospital notification gateway
// (paging/secure-messaging bridge).
type WebhookChannel struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewWebhookChannel(url string, logger *zap.Logger) *WebhookChannel {
	client := resty.New().
		SetBaseURL(url).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json")

	return &WebhookChannel{
		httpClient: client,
		logger:     logger,
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, result models.ComplianceCheckResult, role, recipientID, recipientName string) error {
	payload := webhookPayload{
		JourneyID:      result.JourneyID,
		Trigger:        string(result.Trigger),
		Severity:       string(result.Severity),
		Recommendation: result.Recommendation,
		RecipientRole:  role,
		RecipientID:    recipientID,
		RecipientName:  recipientName,
		Snapshot:       result.Snapshot,
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post("")
	if err != nil {
		return fmt.Errorf("failed to post alert webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("alert webhook returned HTTP %d", resp.StatusCode())
	}
	return nil
}
