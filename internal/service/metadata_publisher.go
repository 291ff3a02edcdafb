package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ethed-api/internal/domain"
	"ethed-api/internal/metrics"
	"ethed-api/internal/storage"
)

var ErrStorageUnavailable = errors.New("metadata storage unavailable")

// MetadataPublisher publica la metadata de una credencial y devuelve su URI.
type MetadataPublisher interface {
	Publish(ctx context.Context, meta domain.CredentialMetadata) (string, error)
}

// FallbackWriter guarda documentos cuando no hay almacenamiento durable.
type FallbackWriter interface {
	Write(ctx context.Context, body []byte) (string, error)
}

// PublisherConfig decide la estrategia una sola vez, al arrancar.
type PublisherConfig struct {
	Production bool
	Timeout    time.Duration
}

// NewMetadataPublisher elige la estrategia de publicación:
//   - producción con store: solo el store; un fallo es ErrStorageUnavailable.
//   - producción sin store: toda publicación falla.
//   - desarrollo: el store si existe y, si falla o falta, el archivo local.
func NewMetadataPublisher(logger *zap.Logger, store storage.ContentStore, fallback FallbackWriter, m *metrics.Metrics, cfg PublisherConfig) MetadataPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	var primary *contentPublisher
	if store != nil {
		primary = &contentPublisher{store: store, timeout: cfg.Timeout}
	}

	switch {
	case cfg.Production && primary == nil:
		logger.Error("content storage is not configured; credential issuance is disabled")
		return unavailablePublisher{}
	case cfg.Production:
		return primary
	case fallback == nil && primary == nil:
		return unavailablePublisher{}
	case fallback == nil:
		return primary
	default:
		return &degradingPublisher{
			logger:   logger,
			primary:  primary,
			fallback: fallback,
			metrics:  m,
			timeout:  cfg.Timeout,
		}
	}
}

// EncodeMetadata produce el JSON canónico que se publica.
func EncodeMetadata(meta domain.CredentialMetadata) ([]byte, error) {
	if meta.Attributes == nil {
		meta.Attributes = []domain.MetadataAttribute{}
	}
	return json.Marshal(meta)
}

type contentPublisher struct {
	store   storage.ContentStore
	timeout time.Duration
}

func (p *contentPublisher) Publish(ctx context.Context, meta domain.CredentialMetadata) (string, error) {
	body, err := EncodeMetadata(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	res, err := p.store.UploadJSON(ctx, pinName(meta), body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return "ipfs://" + res.Hash, nil
}

type degradingPublisher struct {
	logger   *zap.Logger
	primary  *contentPublisher
	fallback FallbackWriter
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func (p *degradingPublisher) Publish(ctx context.Context, meta domain.CredentialMetadata) (string, error) {
	if p.primary != nil {
		uri, err := p.primary.Publish(ctx, meta)
		if err == nil {
			return uri, nil
		}
		p.logger.Warn("content storage upload failed, writing local fallback", zap.Error(err))
	} else {
		p.logger.Warn("content storage not configured, writing local fallback")
	}

	body, err := EncodeMetadata(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	uri, err := p.fallback.Write(ctx, body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	p.metrics.IncrementFallback()
	return uri, nil
}

type unavailablePublisher struct{}

func (unavailablePublisher) Publish(context.Context, domain.CredentialMetadata) (string, error) {
	return "", ErrStorageUnavailable
}

func pinName(meta domain.CredentialMetadata) string {
	name := strings.ToLower(strings.TrimSpace(meta.Name))
	name = strings.Join(strings.Fields(name), "-")
	if name == "" {
		return "ethed-credential"
	}
	return "ethed-" + name
}
