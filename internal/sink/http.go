package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"updown-monitor/internal/domain"
)

const requestTimeout = 10 * time.Second

// HTTPHistorySink POSTs trade-history rows to an external endpoint as
// JSON. A non-2xx response is an error for the caller to log.
type HTTPHistorySink struct {
	endpoint string
	client   *http.Client
}

// NewHTTPHistorySink creates a sink targeting the given endpoint.
func NewHTTPHistorySink(endpoint string) *HTTPHistorySink {
	return &HTTPHistorySink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// Send posts one row.
func (s *HTTPHistorySink) Send(ctx context.Context, row *domain.TradeRow) error {
	payload := historyPayload{
		User:        row.UserPrefix,
		FullUser:    row.User,
		CycleID:     row.CycleID,
		Side:        row.Side.String(),
		Action:      row.Action.String(),
		Shares:      row.Shares,
		Cost:        row.Cost,
		AvgPrice:    row.AvgPrice,
		RealizedPnL: row.RealizedPnL,
		TxSignature: row.TxSignature,
		Timestamp:   row.Timestamp,
	}
	return postJSON(ctx, s.client, s.endpoint, payload)
}

// historyPayload is the external history API's wire shape.
type historyPayload struct {
	User        string `json:"user"`
	FullUser    string `json:"fullUser"`
	CycleID     int64  `json:"cycleId"`
	Side        string `json:"side"`
	Action      string `json:"action"`
	Shares      int64  `json:"shares"`
	Cost        int64  `json:"cost"`
	AvgPrice    int64  `json:"avgPrice"`
	RealizedPnL *int64 `json:"realizedPnl,omitempty"`
	TxSignature string `json:"txSignature"`
	Timestamp   int64  `json:"timestamp"`
}

// HTTPVolumeSink POSTs volume increments to an external endpoint.
type HTTPVolumeSink struct {
	endpoint string
	client   *http.Client
}

// NewHTTPVolumeSink creates a sink targeting the given endpoint.
func NewHTTPVolumeSink(endpoint string) *HTTPVolumeSink {
	return &HTTPVolumeSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// Send posts one increment.
func (s *HTTPVolumeSink) Send(ctx context.Context, inc *domain.VolumeIncrement) error {
	payload := volumePayload{
		Side:      inc.Side.String(),
		Amount:    inc.Amount,
		Shares:    inc.Shares,
		Timestamp: inc.Timestamp,
	}
	return postJSON(ctx, s.client, s.endpoint, payload)
}

// volumePayload is the external volume API's wire shape.
type volumePayload struct {
	Side      string `json:"side"`
	Amount    int64  `json:"amount"`
	Shares    int64  `json:"shares"`
	Timestamp int64  `json:"timestamp"`
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	return nil
}
