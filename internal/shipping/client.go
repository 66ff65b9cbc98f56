// Package shipping talks to the logistics carrier: it creates waybills for
// committed orders and pulls tracking scans back onto them.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dejobratic/storefront/pkg/circuitbreaker"
	"github.com/dejobratic/storefront/pkg/retry"
	"github.com/shopspring/decimal"
)

// ClientConfig configures the carrier HTTP client.
type ClientConfig struct {
	BaseURL        string
	Token          string
	PickupLocation string
	Timeout        time.Duration
	MaxAttempts    int
	Backoff        retry.BackoffStrategy
	Breaker        circuitbreaker.Config
}

// ShipmentRequest is what the carrier needs to create a waybill.
type ShipmentRequest struct {
	OrderNumber    string
	Name           string
	Phone          string
	Email          string
	Address        string
	City           string
	State          string
	PostalCode     string
	Country        string
	WeightGrams    int
	COD            bool
	CODAmountMinor int64
	TotalMinor     int64
	Description    string
	Quantity       int
}

// ShipmentResult is the carrier's answer to a shipment request.
type ShipmentResult struct {
	Waybill     string
	TrackingURL string
}

// Scan is one carrier tracking event.
type Scan struct {
	Status      string
	Location    string
	Description string
	At          time.Time
}

// TrackingResult is the carrier's view of a waybill.
type TrackingResult struct {
	Waybill  string
	Status   string
	Location string
	Scans    []Scan
}

type createShipmentBody struct {
	OrderID        string `json:"order_id"`
	PickupLocation string `json:"pickup_location"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Email          string `json:"email,omitempty"`
	Address        string `json:"address"`
	City           string `json:"city"`
	State          string `json:"state"`
	Pin            string `json:"pin"`
	Country        string `json:"country,omitempty"`
	WeightGrams    int    `json:"weight"`
	PaymentMode    string `json:"payment_mode"`
	CODAmount      string `json:"cod_amount"`
	TotalAmount    string `json:"total_amount"`
	ProductsDesc   string `json:"products_desc"`
	Quantity       int    `json:"quantity"`
}

type createShipmentResponse struct {
	Waybill     string `json:"waybill"`
	TrackingURL string `json:"tracking_url"`
	Error       string `json:"error"`
	Code        string `json:"code"`
}

type trackingResponse struct {
	Waybill  string `json:"waybill"`
	Status   string `json:"status"`
	Location string `json:"location"`
	Scans    []struct {
		Status      string    `json:"status"`
		Location    string    `json:"location"`
		Description string    `json:"instructions"`
		Time        time.Time `json:"time"`
	} `json:"scans"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Client calls the carrier REST API with retries behind a circuit breaker.
type Client struct {
	baseURL    string
	token      string
	pickup     string
	httpClient *http.Client
	retryCfg   retry.Config
	breaker    *circuitbreaker.CircuitBreaker
	logger     *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = &retry.ExponentialBackoff{
			InitialInterval: 300 * time.Millisecond,
			MaxInterval:     3 * time.Second,
			Multiplier:      1.5,
			JitterFactor:    0.2,
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		pickup:     cfg.PickupLocation,
		httpClient: &http.Client{Timeout: timeout},
		retryCfg: retry.Config{
			MaxAttempts: attempts,
			Backoff:     backoff,
			Logger:      logger,
			Retryable:   IsRetryable,
		},
		breaker: circuitbreaker.New(cfg.Breaker),
		logger:  logger,
	}
}

// CreateShipment requests a waybill for an order.
func (c *Client) CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentResult, error) {
	mode := "Prepaid"
	codAmount := int64(0)
	if req.COD {
		mode = "COD"
		codAmount = req.CODAmountMinor
	}
	body := createShipmentBody{
		OrderID:        req.OrderNumber,
		PickupLocation: c.pickup,
		Name:           req.Name,
		Phone:          req.Phone,
		Email:          req.Email,
		Address:        req.Address,
		City:           req.City,
		State:          req.State,
		Pin:            req.PostalCode,
		Country:        req.Country,
		WeightGrams:    req.WeightGrams,
		PaymentMode:    mode,
		CODAmount:      majorUnits(codAmount),
		TotalAmount:    majorUnits(req.TotalMinor),
		ProductsDesc:   req.Description,
		Quantity:       req.Quantity,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal shipment request: %w", err)
	}

	var resp createShipmentResponse
	err = c.call(ctx, "create_shipment", http.MethodPost, "/api/v1/shipments", payload, &resp)
	if err != nil {
		c.logger.ErrorContext(ctx, "carrier shipment request failed",
			"order_number", req.OrderNumber,
			"error", err,
		)
		return nil, err
	}
	if resp.Error != "" || resp.Waybill == "" {
		return nil, &CarrierError{
			Op:      "create_shipment",
			Code:    resp.Code,
			Message: firstNonEmpty(resp.Error, "no waybill in response"),
		}
	}
	return &ShipmentResult{Waybill: resp.Waybill, TrackingURL: resp.TrackingURL}, nil
}

// Track fetches the current status and scan history of a waybill.
func (c *Client) Track(ctx context.Context, waybill string) (*TrackingResult, error) {
	var resp trackingResponse
	path := "/api/v1/track/" + url.PathEscape(waybill)
	if err := c.call(ctx, "track", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &CarrierError{Op: "track", Code: resp.Code, Message: resp.Error}
	}

	result := &TrackingResult{
		Waybill:  firstNonEmpty(resp.Waybill, waybill),
		Status:   resp.Status,
		Location: resp.Location,
		Scans:    make([]Scan, 0, len(resp.Scans)),
	}
	for _, s := range resp.Scans {
		result.Scans = append(result.Scans, Scan{
			Status:      s.Status,
			Location:    s.Location,
			Description: s.Description,
			At:          s.Time,
		})
	}
	return result, nil
}

// BreakerState exposes the circuit breaker position for health reporting.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

func (c *Client) call(ctx context.Context, op, method, path string, payload []byte, out any) error {
	return retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		return c.breaker.Execute(func() error {
			return c.roundTrip(ctx, op, method, path, payload, out)
		}, IsRetryable)
	})
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build carrier request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return &CarrierError{Op: op, Message: "request timed out", Retryable: true}
		}
		return &CarrierError{Op: op, Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &CarrierError{Op: op, StatusCode: resp.StatusCode, Message: "read response: " + err.Error(), Retryable: true}
	}

	if resp.StatusCode >= 400 {
		var failure struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.Unmarshal(data, &failure)
		return &CarrierError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Code:       failure.Code,
			Message:    firstNonEmpty(failure.Error, http.StatusText(resp.StatusCode)),
			Retryable:  retryableStatus(resp.StatusCode) && failure.Code != CodePickupLocationNotReady,
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &CarrierError{Op: op, StatusCode: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return code >= 500
}

// majorUnits renders minor units as a two-decimal rupee amount.
func majorUnits(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
