// Package paymentgw is the client for the external payment gateway. Charges
// and refunds are synchronous calls bounded by a timeout; a timeout is
// treated exactly like a declined charge by the caller.
package paymentgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// ChargeResult is the gateway's answer to a charge attempt.
type ChargeResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
	Message       string `json:"message"`
}

// RefundResult is the gateway's answer to a refund attempt.
type RefundResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Client calls the payment gateway over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a payment gateway client from viper configuration.
func NewClient() *Client {
	timeoutSeconds := viper.GetInt("clients.payment.timeout_seconds")
	if timeoutSeconds == 0 {
		timeoutSeconds = 10
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
		baseURL: viper.GetString("clients.payment.base_url"),
	}
}

type chargeRequest struct {
	OrderID       uuid.UUID `json:"orderId"`
	AmountCents   int64     `json:"amountCents"`
	PaymentMethod string    `json:"paymentMethod"`
}

type refundRequest struct {
	TransactionID string `json:"transactionId"`
	AmountCents   int64  `json:"amountCents"`
}

// Charge asks the gateway to move money for an order.
func (c *Client) Charge(
	ctx context.Context,
	orderID uuid.UUID,
	amountCents int64,
	paymentMethod string,
) (*ChargeResult, error) {
	var result ChargeResult
	err := c.post(ctx, "/api/payment/charge", chargeRequest{
		OrderID:       orderID,
		AmountCents:   amountCents,
		PaymentMethod: paymentMethod,
	}, &result)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// Refund asks the gateway to return the charged amount for a transaction.
func (c *Client) Refund(
	ctx context.Context,
	transactionID string,
	amountCents int64,
) (*RefundResult, error) {
	var result RefundResult
	err := c.post(ctx, "/api/payment/refund", refundRequest{
		TransactionID: transactionID,
		AmountCents:   amountCents,
	}, &result)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+path,
		bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode payment gateway response: %w", err)
	}

	return nil
}
