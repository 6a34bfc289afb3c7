package decoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stream-proxy-go/pkg/interfaces"
	"stream-proxy-go/pkg/logging"
	"stream-proxy-go/pkg/types"
)

type remoteRequest struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

type remoteResponse struct {
	Plaintext string `json:"plaintext"`
	Error     string `json:"error,omitempty"`
}

// Remote delegates decoding to an external HTTP service that accepts
// POST {"id","data"} and answers {"plaintext"}.
type Remote struct {
	endpoint string
	client   interfaces.HTTPClient
	log      *logging.Logger
}

// NewRemote creates a remote decoder. A nil client gets a plain client with
// the given timeout.
func NewRemote(endpoint string, client interfaces.HTTPClient, timeout time.Duration, log *logging.Logger) *Remote {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Remote{
		endpoint: endpoint,
		client:   client,
		log:      log.WithComponent("remote-decoder"),
	}
}

// Decode implements interfaces.Decoder.
func (r *Remote) Decode(ctx context.Context, payload types.EncodedPayload) (string, error) {
	body, err := json.Marshal(remoteRequest{ID: payload.ID, Data: payload.CipherText})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("decoder service returned status %d", resp.StatusCode)
	}

	var out remoteResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrNoDecoding, out.Error)
	}
	if out.Plaintext == "" {
		return "", ErrNoDecoding
	}

	r.log.Debug("payload decoded", "id", payload.ID, "length", len(out.Plaintext))
	return out.Plaintext, nil
}
