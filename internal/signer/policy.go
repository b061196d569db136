// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package signer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// PolicyStore fetches the signed authorization artifact bound to a role.
// Absence of a policy is not an error; the custody network decides whether
// one is mandatory.
type PolicyStore interface {
	// FetchPolicy returns the policy bytes for role, or nil when the role
	// has no policy.
	FetchPolicy(ctx context.Context, role string) ([]byte, error)
}

// HTTPPolicyStore reads policies from an external HTTP store.
type HTTPPolicyStore struct {
	// BaseURL is the policy store root.
	BaseURL string
	// Client overrides http.DefaultClient when set.
	Client *http.Client
}

// policyRequestTimeout bounds a policy lookup; a slow store must not stall
// authentication, since a missing policy is acceptable.
const policyRequestTimeout = 10 * time.Second

type policyResponse struct {
	PolicyData string `json:"policyData"`
}

// FetchPolicy GETs the policy for role. A 404 means the role has no policy
// and returns (nil, nil).
func (s *HTTPPolicyStore) FetchPolicy(ctx context.Context, role string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, policyRequestTimeout)
	defer cancel()

	endpoint := s.BaseURL + "/policies/" + url.PathEscape(role)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build policy request: %w", err)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("policy store unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("policy store returned %s", resp.Status)
	}

	var body policyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode policy response: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(body.PolicyData)
	if err != nil {
		return nil, fmt.Errorf("policy store returned malformed policy data: %w", err)
	}
	return data, nil
}
