package custody

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client talks to the NFT registry's internal API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type approvalResult struct {
	Approved bool `json:"approved"`
}

func (c *Client) ConfirmApproval(ctx context.Context, tokenID uint64, owner string) (bool, error) {
	url := fmt.Sprintf("%s/internal/tokens/%d/approval?owner=%s", c.baseURL, tokenID, owner)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("nft registry unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("nft registry returned %d: %s", resp.StatusCode, string(body))
	}

	var result approvalResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, err
	}
	return result.Approved, nil
}

type transferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type transferResult struct {
	TransferRef string `json:"transfer_ref"`
}

func (c *Client) Transfer(ctx context.Context, tokenID uint64, from, to string) (string, error) {
	body, err := json.Marshal(transferRequest{From: from, To: to})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/internal/tokens/%d/transfer", c.baseURL, tokenID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("nft registry unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("nft registry returned %d: %s", resp.StatusCode, string(b))
	}

	var result transferResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.TransferRef, nil
}
