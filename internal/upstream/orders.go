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

// ordersResponse is the clinical-order envelope for a medication query.
type ordersResponse struct {
	Status int        `json:"status"`
	Msg    string     `json:"msg"`
	Orders []medOrder `json:"orders"`
}

type medOrder struct {
	Agent        string `json:"agent"`
	Category     string `json:"category"` // "prophylactic" or "therapeutic"
	Administered bool   `json:"administered"`
}

// OrdersClient queries the clinical-order system for a patient's
// recent antibiotic orders and administrations.
type OrdersClient struct {
	httpClient *resty.Client
	recency    time.Duration
	logger     *zap.Logger
}

func NewOrdersClient(cfg *config.Config, logger *zap.Logger) *OrdersClient {
	client := resty.New().
		SetBaseURL(cfg.Orders.BaseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &OrdersClient{
		httpClient: client,
		recency:    time.Duration(cfg.Orders.RecencyHours) * time.Hour,
		logger:     logger,
	}
}

// QueryProphylaxisStatus collapses the patient's recent antibiotic
// orders into the picture the compliance checker needs: does a
// prophylactic order exist, was it given, and is a therapeutic course
// already running.
func (c *OrdersClient) QueryProphylaxisStatus(ctx context.Context, patientID string) (models.ProphylaxisStatus, error) {
	since := time.Now().Add(-c.recency)

	var response ordersResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("patient_id", patientID).
		SetQueryParam("class", "antibiotic").
		SetQueryParam("since", since.Format(time.RFC3339)).
		SetResult(&response).
		Get("/api/v1/medication-orders")

	if err != nil {
		return models.ProphylaxisStatus{}, fmt.Errorf("failed to query order system: %w", err)
	}
	if resp.IsError() {
		return models.ProphylaxisStatus{}, fmt.Errorf("order system returned HTTP %d", resp.StatusCode())
	}
	if response.Status != 0 {
		return models.ProphylaxisStatus{}, fmt.Errorf("order system error: %s (status: %d)", response.Msg, response.Status)
	}

	var status models.ProphylaxisStatus
	for _, order := range response.Orders {
		switch order.Category {
		case "therapeutic":
			status.TherapeuticActive = true
		default:
			status.OrderExists = true
			status.OrderedAgents = append(status.OrderedAgents, order.Agent)
			if order.Administered {
				status.Administered = true
			}
		}
	}

	c.logger.Debug("Retrieved prophylaxis status from order system",
		zap.String("patient_id", patientID),
		zap.Bool("order_exists", status.OrderExists),
		zap.Bool("administered", status.Administered),
		zap.Bool("therapeutic_active", status.TherapeuticActive),
	)
	return status, nil
}
