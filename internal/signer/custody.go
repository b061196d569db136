// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CustodyClient talks to the distributed signer. Initialize must return the
// initialized request bytes before Execute may be called with them.
type CustodyClient interface {
	Initialize(ctx context.Context, request []byte) ([]byte, error)
	Execute(ctx context.Context, initialized []byte) ([][]byte, error)
}

// HTTPCustodyClient is the JSON-over-HTTP implementation of CustodyClient.
type HTTPCustodyClient struct {
	// BaseURL is the custody network API root.
	BaseURL string
	// Client overrides http.DefaultClient when set.
	Client *http.Client
}

// custodyRequestTimeout bounds a single custody API round trip. The
// human-paced approval wait happens elsewhere; these calls are
// machine-paced.
const custodyRequestTimeout = 30 * time.Second

type initializeRequest struct {
	Request string `json:"request"`
}

type initializeResponse struct {
	InitializedRequest string `json:"initializedRequest"`
}

type executeRequest struct {
	InitializedRequest string `json:"initializedRequest"`
}

type executeResponse struct {
	Signatures []string `json:"signatures"`
}

// Initialize submits the structured request to the custody network's
// initialize step and returns the initialized request bytes.
func (c *HTTPCustodyClient) Initialize(ctx context.Context, request []byte) ([]byte, error) {
	body := initializeRequest{Request: base64.StdEncoding.EncodeToString(request)}
	var resp initializeResponse
	if err := c.post(ctx, "/requests/initialize", body, &resp); err != nil {
		return nil, err
	}
	initialized, err := base64.StdEncoding.DecodeString(resp.InitializedRequest)
	if err != nil {
		return nil, fmt.Errorf("custody initialize returned malformed payload: %w", err)
	}
	return initialized, nil
}

// Execute submits the initialized request bytes to the execute step and
// returns the raw signatures.
func (c *HTTPCustodyClient) Execute(ctx context.Context, initialized []byte) ([][]byte, error) {
	body := executeRequest{InitializedRequest: base64.StdEncoding.EncodeToString(initialized)}
	var resp executeResponse
	if err := c.post(ctx, "/requests/execute", body, &resp); err != nil {
		return nil, err
	}
	signatures := make([][]byte, 0, len(resp.Signatures))
	for _, s := range resp.Signatures {
		sig, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("custody execute returned malformed signature: %w", err)
		}
		signatures = append(signatures, sig)
	}
	return signatures, nil
}

// post performs one JSON request/response round trip against the custody
// API.
func (c *HTTPCustodyClient) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal custody request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, custodyRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build custody request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("custody network unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("custody network returned %s: %s", resp.Status, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode custody response: %w", err)
	}
	return nil
}
