// File: internal/infra/providers/yookassa.go
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"telegram-subscription-bot/internal/domain/ports/adapter"
)

const yooKassaBaseURL = "https://api.yookassa.ru/v3"

// YooKassaProvider creates hosted-checkout payments. Settlement arrives via
// the payment.succeeded / payment.canceled webhook; FetchStatus lets the
// reconciler poll payments whose webhook never landed.
type YooKassaProvider struct {
	shopID    string
	secretKey string
	returnURL string
	baseURL   string
	client    *http.Client
	entropy   io.Reader
}

func NewYooKassaProvider(shopID, secretKey, returnURL string) *YooKassaProvider {
	return &YooKassaProvider{
		shopID:    shopID,
		secretKey: secretKey,
		returnURL: returnURL,
		baseURL:   yooKassaBaseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (p *YooKassaProvider) Kind() adapter.ProviderKind { return adapter.ProviderYooKassa }

func (p *YooKassaProvider) Configured() bool { return p.shopID != "" && p.secretKey != "" }

type yooKassaPaymentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Paid         bool   `json:"paid"`
	Confirmation struct {
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
}

func (p *YooKassaProvider) CreatePayment(ctx context.Context, pc adapter.CreateContext) (*adapter.Receipt, error) {
	requestData := map[string]interface{}{
		"amount": map[string]string{
			"value":    fmt.Sprintf("%d.%02d", pc.Amount/100, pc.Amount%100),
			"currency": pc.Currency,
		},
		"capture":     true,
		"description": pc.Description,
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": p.returnURL,
		},
		"metadata": map[string]interface{}{
			"payment_id": pc.PaymentID,
			"user_id":    pc.UserID,
		},
	}

	jsonData, err := json.Marshal(requestData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/payments", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(p.shopID, p.secretKey)
	req.Header.Set("Content-Type", "application/json")
	// The API deduplicates retried creations by this key.
	req.Header.Set("Idempotence-Key", ulid.MustNew(ulid.Timestamp(time.Now()), p.entropy).String())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yookassa error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response yooKassaPaymentResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}
	if response.ID == "" || response.Confirmation.ConfirmationURL == "" {
		return nil, fmt.Errorf("yookassa response missing payment id or confirmation url")
	}

	return &adapter.Receipt{
		ReferenceID: response.ID,
		ActionURL:   response.Confirmation.ConfirmationURL,
	}, nil
}

// FetchStatus implements the reconciler poll. "succeeded" and "canceled" are
// terminal; "pending" and "waiting_for_capture" are not.
func (p *YooKassaProvider) FetchStatus(ctx context.Context, referenceID string) (paid bool, done bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/payments/"+referenceID, nil)
	if err != nil {
		return false, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(p.shopID, p.secretKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return false, false, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, false, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, false, fmt.Errorf("yookassa error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response yooKassaPaymentResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return false, false, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	switch response.Status {
	case "succeeded":
		return true, true, nil
	case "canceled":
		return false, true, nil
	default:
		return false, false, nil
	}
}
