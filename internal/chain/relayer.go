package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RelayerClient envía las transacciones a un relayer HTTP que firma y paga
// el gas con la wallet del emisor.
type RelayerClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

func NewRelayerClient(baseURL, token string, logger *zap.Logger) *RelayerClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

func (c *RelayerClient) SubmitMint(ctx context.Context, recipient, metadataURI string) (MintResult, error) {
	var out MintResult
	err := c.post(ctx, "/mint", mintRequest{Recipient: recipient, MetadataURI: metadataURI}, &out)
	if err != nil {
		return MintResult{}, err
	}
	if out.TokenID == "" || out.TxHash == "" {
		return MintResult{}, ErrEmptyResponse
	}
	return out, nil
}

func (c *RelayerClient) SubmitNameRegistration(ctx context.Context, label, owner string) (string, error) {
	var out struct {
		TxHash string `json:"tx_hash"`
	}
	if err := c.post(ctx, "/names", nameRequest{Label: label, Owner: owner}, &out); err != nil {
		return "", err
	}
	if out.TxHash == "" {
		return "", ErrEmptyResponse
	}
	return out.TxHash, nil
}

func (c *RelayerClient) post(ctx context.Context, path string, body any, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		c.logger.Warn("chain relayer error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return fmt.Errorf("relayer http error: status=%d", resp.StatusCode)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

type mintRequest struct {
	Recipient   string `json:"recipient"`
	MetadataURI string `json:"metadata_uri"`
}

type nameRequest struct {
	Label string `json:"label"`
	Owner string `json:"owner"`
}
