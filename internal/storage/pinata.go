// Package storage contiene los backends donde se publica la metadata de las
// credenciales.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// UploadResult es la respuesta del almacenamiento direccionado por contenido.
type UploadResult struct {
	Hash      string    `json:"hash"`
	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// ContentStore sube documentos JSON y devuelve su hash de contenido.
type ContentStore interface {
	UploadJSON(ctx context.Context, name string, body []byte) (UploadResult, error)
}

var ErrInvalidJSON = errors.New("body is not valid json")

// PinataClient implementa ContentStore contra la API de pinning de Pinata.
type PinataClient struct {
	baseURL string
	jwt     string
	client  *http.Client
	logger  *zap.Logger
}

// NewPinataClient construye el cliente; el timeout real lo pone el contexto.
func NewPinataClient(baseURL, jwt string, logger *zap.Logger) *PinataClient {
	if baseURL == "" {
		baseURL = "https://api.pinata.cloud"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PinataClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		jwt:     jwt,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

func (c *PinataClient) UploadJSON(ctx context.Context, name string, body []byte) (UploadResult, error) {
	if !json.Valid(body) {
		return UploadResult{}, ErrInvalidJSON
	}
	reqBody := pinRequest{
		Content:  json.RawMessage(body),
		Metadata: pinMetadata{Name: name},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return UploadResult{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pinning/pinJSONToIPFS", bytes.NewReader(bodyBytes))
	if err != nil {
		return UploadResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.jwt)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return UploadResult{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("pinata upload rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return UploadResult{}, fmt.Errorf("pinata http error: status=%d", resp.StatusCode)
	}

	var pr pinResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return UploadResult{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if pr.IpfsHash == "" {
		return UploadResult{}, fmt.Errorf("pinata empty hash")
	}

	ts, err := time.Parse(time.RFC3339, pr.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	return UploadResult{Hash: pr.IpfsHash, Size: pr.PinSize, Timestamp: ts}, nil
}

type pinRequest struct {
	Content  json.RawMessage `json:"pinataContent"`
	Metadata pinMetadata     `json:"pinataMetadata"`
}

type pinMetadata struct {
	Name string `json:"name"`
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}
