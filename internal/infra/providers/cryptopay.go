// File: internal/infra/providers/cryptopay.go
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"telegram-subscription-bot/internal/domain/ports/adapter"
)

// CryptoPayProvider creates crypto invoices. Settlement normally arrives via
// the invoice_paid webhook; FetchStatus covers invoices whose webhook was
// lost. Amounts are converted from fiat minor units at a fixed display rate
// configured per deployment.
type CryptoPayProvider struct {
	apiToken string
	baseURL  string
	assetUSD float64 // RUB per USDT, used to quote the invoice
	client   *http.Client
}

func NewCryptoPayProvider(apiToken, baseURL string, rubPerUSDT float64) *CryptoPayProvider {
	if rubPerUSDT <= 0 {
		rubPerUSDT = 100
	}
	return &CryptoPayProvider{
		apiToken: apiToken,
		baseURL:  baseURL,
		assetUSD: rubPerUSDT,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *CryptoPayProvider) Kind() adapter.ProviderKind { return adapter.ProviderCryptoPay }

func (p *CryptoPayProvider) Configured() bool { return p.apiToken != "" }

type cryptoPayInvoice struct {
	InvoiceID int64  `json:"invoice_id"`
	Status    string `json:"status"`
	PayURL    string `json:"pay_url"`
	BotPayURL string `json:"bot_invoice_url"`
}

type cryptoPayResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"error"`
}

func (p *CryptoPayProvider) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/"+method, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Crypto-Pay-API-Token", p.apiToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope cryptoPayResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}
	if !envelope.OK {
		return fmt.Errorf("cryptopay error: code %d, name: %s", envelope.Error.Code, envelope.Error.Name)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

func (p *CryptoPayProvider) CreatePayment(ctx context.Context, pc adapter.CreateContext) (*adapter.Receipt, error) {
	usdt := float64(pc.Amount) / 100 / p.assetUSD
	requestData := map[string]interface{}{
		"asset":       "USDT",
		"amount":      fmt.Sprintf("%.2f", usdt),
		"description": pc.Description,
		"payload":     strconv.FormatInt(pc.PaymentID, 10),
		"expires_in":  3600,
	}

	var inv cryptoPayInvoice
	if err := p.call(ctx, "createInvoice", requestData, &inv); err != nil {
		return nil, err
	}
	url := inv.BotPayURL
	if url == "" {
		url = inv.PayURL
	}
	return &adapter.Receipt{
		ReferenceID: strconv.FormatInt(inv.InvoiceID, 10),
		ActionURL:   url,
	}, nil
}

func (p *CryptoPayProvider) FetchStatus(ctx context.Context, referenceID string) (paid bool, done bool, err error) {
	var result struct {
		Items []cryptoPayInvoice `json:"items"`
	}
	if err := p.call(ctx, "getInvoices", map[string]string{"invoice_ids": referenceID}, &result); err != nil {
		return false, false, err
	}
	if len(result.Items) == 0 {
		return false, false, fmt.Errorf("cryptopay invoice %s not found", referenceID)
	}

	switch result.Items[0].Status {
	case "paid":
		return true, true, nil
	case "expired":
		return false, true, nil
	default: // "active"
		return false, false, nil
	}
}
