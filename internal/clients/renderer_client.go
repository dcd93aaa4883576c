// internal/clients/renderer_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// RenderRequest is handed to the external document-rendering collaborator.
// Rendering and uploading the certificate document is entirely its concern;
// we only keep the storage handle it returns.
type RenderRequest struct {
	CertificateID string    `json:"certificate_id"`
	Fingerprint   string    `json:"fingerprint"`
	TypeName      string    `json:"type_name"`
	Level         string    `json:"level"`
	HolderName    string    `json:"holder_display_name"`
	DogName       string    `json:"dog_display_name,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
}

type renderResponse struct {
	StorageHandle string `json:"storage_handle"`
}

// RendererClient calls the rendering collaborator over HTTP. The circuit
// breaker keeps a flapping renderer from slowing down issuance; the state
// transition never depends on rendering succeeding.
type RendererClient struct {
	baseURL string
	breaker *gobreaker.CircuitBreaker
}

func NewRendererClient(baseURL string) *RendererClient {
	return &RendererClient{
		baseURL: baseURL,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "certificate-renderer",
			Timeout: 30 * time.Second,
		}),
	}
}

// Render asks the collaborator to produce the certificate document and
// returns the opaque storage handle of the uploaded artifact.
func (c *RendererClient) Render(ctx context.Context, renderReq RenderRequest) (string, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		body, err := json.Marshal(renderReq)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/render", c.baseURL), bytes.NewBuffer(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		var rendered renderResponse
		if err := json.NewDecoder(resp.Body).Decode(&rendered); err != nil {
			return nil, err
		}
		return rendered.StorageHandle, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}
