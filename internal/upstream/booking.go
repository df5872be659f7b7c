package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/config"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// bookingResponse is the booking-system envelope for a schedule query.
type bookingResponse struct {
	Status     int                `json:"status"`
	Msg        string             `json:"msg"`
	Operations []bookingOperation `json:"operations"`
}

type bookingOperation struct {
	CaseID               string   `json:"case_id"`
	PatientID            string   `json:"patient_id"`
	ProcedureCodes       []string `json:"procedure_codes"`
	ProcedureDescription string   `json:"procedure_description"`
	ScheduledTime        string   `json:"scheduled_time"`
	Location             string   `json:"location"`
	Surgeon              string   `json:"surgeon"`
	Emergency            bool     `json:"emergency"`
}

// BookingClient queries the surgical booking system for scheduled
// operations in a time range. It feeds the schedule registry poller.
type BookingClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewBookingClient(cfg *config.Config, logger *zap.Logger) *BookingClient {
	client := resty.New().
		SetBaseURL(cfg.Schedule.BookingBaseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &BookingClient{
		httpClient: client,
		logger:     logger,
	}
}

// QueryOperations returns all operations scheduled between from and to.
func (c *BookingClient) QueryOperations(ctx context.Context, from, to time.Time) ([]models.ScheduledOperation, error) {
	var response bookingResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("from", from.Format(time.RFC3339)).
		SetQueryParam("to", to.Format(time.RFC3339)).
		SetResult(&response).
		Get("/api/v1/operations")

	if err != nil {
		return nil, fmt.Errorf("failed to query booking system: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("booking system returned HTTP %d", resp.StatusCode())
	}
	if response.Status != 0 {
		return nil, fmt.Errorf("booking system error: %s (status: %d)", response.Msg, response.Status)
	}

	operations := make([]models.ScheduledOperation, 0, len(response.Operations))
	for _, raw := range response.Operations {
		scheduled, err := time.Parse(time.RFC3339, raw.ScheduledTime)
		if err != nil {
			c.logger.Warn("Skipping booking entry with unparseable scheduled time",
				zap.String("case_id", raw.CaseID),
				zap.String("scheduled_time", raw.ScheduledTime),
			)
			continue
		}
		operations = append(operations, models.ScheduledOperation{
			CaseID:               raw.CaseID,
			PatientID:            raw.PatientID,
			ProcedureCodes:       raw.ProcedureCodes,
			ProcedureDescription: raw.ProcedureDescription,
			ScheduledTime:        scheduled,
			Location:             raw.Location,
			Surgeon:              raw.Surgeon,
			Emergency:            raw.Emergency,
		})
	}

	c.logger.Debug("Retrieved scheduled operations from booking system",
		zap.Int("count", len(operations)),
		zap.Time("from", from),
		zap.Time("to", to),
	)
	return operations, nil
}
