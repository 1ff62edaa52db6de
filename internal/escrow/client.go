// Package escrow talks to the payment service that holds job payments on-chain.
package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/requestid"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	timeout  time.Duration
	validate *validator.Validate
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:     &http.Client{},
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   apiKey,
		timeout:  timeout,
		validate: validator.New(),
	}
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type purchaseDTO struct {
	ID                   string  `json:"id" validate:"required"`
	BlockchainIdentifier string  `json:"blockchainIdentifier" validate:"required"`
	OnChainState         *string `json:"onChainState"`
	NextAction           struct {
		RequestedAction string  `json:"requestedAction"`
		ErrorType       *string `json:"errorType"`
		ErrorNote       *string `json:"errorNote"`
	} `json:"NextAction"`
	CurrentTransaction *struct {
		TxHash *string `json:"txHash"`
		Status *string `json:"status"`
	} `json:"CurrentTransaction"`
	ResultSubmittedAt *time.Time `json:"resultSubmittedAt"`
}

// GetPurchaseByBlockchainID looks a purchase up by the identifier recorded on
// the job at start. Returns domain.ErrPurchaseNotFound while escrow creation is
// still pending.
func (c *Client) GetPurchaseByBlockchainID(ctx context.Context, blockchainID string) (*domain.PurchaseSnapshot, error) {
	q := url.Values{"blockchainIdentifier": {blockchainID}}
	return c.purchase(ctx, http.MethodGet, "/api/v1/purchase?"+q.Encode(), nil)
}

func (c *Client) GetPurchaseByID(ctx context.Context, purchaseID string) (*domain.PurchaseSnapshot, error) {
	return c.purchase(ctx, http.MethodGet, "/api/v1/purchase/"+url.PathEscape(purchaseID), nil)
}

// RequestRefund asks the escrow to flag the purchase for refund. The returned
// snapshot carries the in-flight next action.
func (c *Client) RequestRefund(ctx context.Context, blockchainID string) (*domain.PurchaseSnapshot, error) {
	body := map[string]string{"blockchainIdentifier": blockchainID}
	return c.purchase(ctx, http.MethodPost, "/api/v1/purchase/request-refund", body)
}

func (c *Client) purchase(ctx context.Context, method, path string, in any) (*domain.PurchaseSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("token", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: escrow: %v", domain.ErrCollaboratorUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, domain.ErrPurchaseNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: escrow returned %d", domain.ErrCollaboratorUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode escrow response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, domain.ErrPurchaseNotFound
	}

	var dto purchaseDTO
	if err := json.Unmarshal(env.Data, &dto); err != nil {
		return nil, fmt.Errorf("decode purchase: %w", err)
	}
	return c.toSnapshot(&dto)
}

func (c *Client) toSnapshot(dto *purchaseDTO) (*domain.PurchaseSnapshot, error) {
	if err := c.validate.Struct(dto); err != nil {
		return nil, fmt.Errorf("invalid purchase payload: %w", err)
	}

	snap := &domain.PurchaseSnapshot{
		ExternalID:           dto.ID,
		BlockchainIdentifier: dto.BlockchainIdentifier,
		NextActionErrorType:  dto.NextAction.ErrorType,
		NextActionErrorNote:  dto.NextAction.ErrorNote,
		ResultSubmittedAt:    dto.ResultSubmittedAt,
	}

	if dto.OnChainState != nil {
		st, err := domain.ParseOnChainStatus(*dto.OnChainState)
		if err != nil {
			return nil, fmt.Errorf("purchase %s: %w", dto.ID, err)
		}
		snap.OnChainStatus = &st
	}

	action, err := domain.ParseNextAction(dto.NextAction.RequestedAction)
	if err != nil {
		return nil, fmt.Errorf("purchase %s: %w", dto.ID, err)
	}
	snap.NextAction = action

	if tx := dto.CurrentTransaction; tx != nil {
		snap.TxHash = tx.TxHash
		snap.TxStatus = tx.Status
	}
	return snap, nil
}
