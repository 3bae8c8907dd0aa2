package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	applog "bilancio/internal/log"
)

// HTTPConfig configures the HTTP provider client.
type HTTPConfig struct {
	BaseURL  string
	ClientID string
	Secret   string
	Timeout  time.Duration
}

// HTTPClient talks JSON over HTTPS to the aggregation provider. Every call
// carries the client timeout; no call blocks indefinitely.
type HTTPClient struct {
	cfg    HTTPConfig
	client *http.Client
	log    *applog.Logger
}

// NewHTTPClient builds a provider client from config. The underlying
// http.Client is owned by this instance, never a process-wide singleton.
func NewHTTPClient(cfg HTTPConfig, logger *applog.Logger) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger.WithComponent(applog.ComponentProvider),
	}
}

type transactionsRequestBody struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Options     struct {
		Count      int      `json:"count"`
		Offset     int      `json:"offset"`
		AccountIDs []string `json:"account_ids,omitempty"`
	} `json:"options"`
}

type transactionsResponseBody struct {
	Transactions      []Transaction `json:"transactions"`
	TotalTransactions int           `json:"total_transactions"`
}

// ListTransactions fetches one page of transactions for a date range.
func (c *HTTPClient) ListTransactions(ctx context.Context, req TransactionsRequest) (*TransactionsPage, error) {
	count := req.Count
	if count <= 0 || count > MaxPageSize {
		count = MaxPageSize
	}

	body := transactionsRequestBody{
		ClientID:    c.cfg.ClientID,
		Secret:      c.cfg.Secret,
		AccessToken: req.AccessToken,
		StartDate:   req.StartDate.Format("2006-01-02"),
		EndDate:     req.EndDate.Format("2006-01-02"),
	}
	body.Options.Count = count
	body.Options.Offset = req.Offset
	body.Options.AccountIDs = req.AccountIDs

	var resp transactionsResponseBody
	if err := c.post(ctx, "/transactions/get", body, &resp); err != nil {
		return nil, err
	}

	return &TransactionsPage{
		Transactions:      resp.Transactions,
		TotalTransactions: resp.TotalTransactions,
	}, nil
}

type accountsRequestBody struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
}

type accountsResponseBody struct {
	Accounts []AccountMeta `json:"accounts"`
	Item     struct {
		InstitutionID string `json:"institution_id"`
	} `json:"item"`
}

// ListAccounts returns the accounts reachable with the access credential.
func (c *HTTPClient) ListAccounts(ctx context.Context, accessToken string) ([]AccountMeta, error) {
	body := accountsRequestBody{
		ClientID:    c.cfg.ClientID,
		Secret:      c.cfg.Secret,
		AccessToken: accessToken,
	}

	var resp accountsResponseBody
	if err := c.post(ctx, "/accounts/get", body, &resp); err != nil {
		return nil, err
	}

	accounts := resp.Accounts
	for i := range accounts {
		if accounts[i].InstitutionID == "" {
			accounts[i].InstitutionID = resp.Item.InstitutionID
		}
	}
	return accounts, nil
}

type exchangeRequestBody struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	PublicToken string `json:"public_token"`
}

type exchangeResponseBody struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

// ExchangePublicToken trades a link-flow public token for the long-lived
// access credential.
func (c *HTTPClient) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	body := exchangeRequestBody{
		ClientID:    c.cfg.ClientID,
		Secret:      c.cfg.Secret,
		PublicToken: publicToken,
	}

	var resp exchangeResponseBody
	if err := c.post(ctx, "/item/public_token/exchange", body, &resp); err != nil {
		return "", "", err
	}
	return resp.AccessToken, resp.ItemID, nil
}

type errorResponseBody struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (c *HTTPClient) post(ctx context.Context, path string, reqBody, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return c.mapError(ctx, path, resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode provider response %s: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) mapError(ctx context.Context, path string, status int, raw []byte) error {
	var errBody errorResponseBody
	_ = json.Unmarshal(raw, &errBody)

	c.log.WarnContext(ctx, "provider call failed",
		"path", path,
		"status", status,
		"error_code", errBody.ErrorCode)

	switch errBody.ErrorCode {
	case "INVALID_ACCESS_TOKEN", "ITEM_LOGIN_REQUIRED", "INVALID_API_KEYS":
		return fmt.Errorf("%w: %s", ErrInvalidCredential, errBody.ErrorMessage)
	}

	return &APIError{
		StatusCode: status,
		Code:       errBody.ErrorCode,
		Message:    errBody.ErrorMessage,
	}
}
