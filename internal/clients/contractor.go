package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deal-service/internal/security"
)

const mainBorrowerPath = "/contractor/main-borrower"

type ContractorConfig struct {
	BaseURL string
	Timeout time.Duration

	// ServiceToken is sent when the context carries no caller token,
	// e.g. for scheduler-originated calls.
	ServiceToken string
}

// StatusError is returned for non-2xx responses of the contractor service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("contractor service responded %d", e.Code)
	}
	return fmt.Sprintf("contractor service responded %d: %s", e.Code, e.Body)
}

type ContractorClient struct {
	baseURL      string
	serviceToken string
	http         *http.Client
}

func NewContractorClient(cfg ContractorConfig) *ContractorClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ContractorClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		serviceToken: cfg.ServiceToken,
		http:         &http.Client{Timeout: timeout},
	}
}

type mainBorrowerRequest struct {
	ContractorID string `json:"contractor_id"`
	HasMainDeals bool   `json:"has_main_deals"`
}

// UpdateMainBorrower sets the main borrower flag of a contractor. It returns
// the response status code, or 0 when no response was received.
func (c *ContractorClient) UpdateMainBorrower(ctx context.Context, contractorID string, hasMainDeals bool) (int, error) {
	body, err := json.Marshal(mainBorrowerRequest{ContractorID: contractorID, HasMainDeals: hasMainDeals})
	if err != nil {
		return 0, fmt.Errorf("encode main borrower request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+mainBorrowerPath, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build main borrower request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("update main borrower %s: %w", contractorID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func (c *ContractorClient) token(ctx context.Context) string {
	if t := security.Token(ctx); t != "" {
		return t
	}
	return c.serviceToken
}
