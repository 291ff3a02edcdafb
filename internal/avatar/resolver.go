// Package avatar resuelve la imagen pública asociada a un subdominio.
package avatar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Resolver devuelve la URI del avatar o "" si el nombre no tiene uno.
type Resolver interface {
	ResolveAvatar(ctx context.Context, fullName string) (string, error)
}

// HTTPResolver consulta un servicio de metadata estilo ENS
// (GET {base}/{name} responde la imagen o 404).
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *HTTPResolver) ResolveAvatar(ctx context.Context, fullName string) (string, error) {
	name := strings.TrimSpace(fullName)
	if name == "" {
		return "", nil
	}
	avatarURL := r.baseURL + "/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, avatarURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return avatarURL, nil
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	default:
		return "", fmt.Errorf("avatar http error: status=%d", resp.StatusCode)
	}
}
