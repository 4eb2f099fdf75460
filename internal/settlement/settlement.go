// Package settlement invokes the external reward settlement collaborator
// once per finished match and publishes the result back to the room.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/EmoBanana/smtd-server/internal/models"
)

var (
	// ErrNotConfigured is returned when no settlement endpoint is set.
	ErrNotConfigured = errors.New("settlement endpoint not configured")
	// ErrSettlementRejected is returned when the collaborator answers but
	// reports an unsuccessful settlement.
	ErrSettlementRejected = errors.New("settlement rejected by collaborator")
)

// Settler is the external settlement contract. The call is an opaque async
// operation; the service only consumes the success/amount/reference result.
type Settler interface {
	Settle(ctx context.Context, winner string, amount uint64) (models.Receipt, error)
}

// HTTPSettler settles by POSTing a JSON request to a remote endpoint.
type HTTPSettler struct {
	url    string
	client *http.Client
}

// NewHTTPSettler builds a settler against the given endpoint. An empty URL
// yields a settler whose calls fail with ErrNotConfigured.
func NewHTTPSettler(url string, timeout time.Duration) *HTTPSettler {
	return &HTTPSettler{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type settleRequest struct {
	Winner string `json:"winner"`
	Amount uint64 `json:"amount"`
}

// Settle posts the winner and amount and decodes the receipt.
func (s *HTTPSettler) Settle(ctx context.Context, winner string, amount uint64) (models.Receipt, error) {
	if s.url == "" {
		return models.Receipt{}, ErrNotConfigured
	}

	body, err := json.Marshal(settleRequest{Winner: winner, Amount: amount})
	if err != nil {
		return models.Receipt{}, fmt.Errorf("failed to marshal settle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return models.Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return models.Receipt{}, fmt.Errorf("settlement call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Receipt{}, fmt.Errorf("settlement endpoint returned status %d", resp.StatusCode)
	}

	var receipt models.Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return models.Receipt{}, fmt.Errorf("failed to decode settlement receipt: %w", err)
	}
	return receipt, nil
}
