// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

// package signer turns an SSH authentication challenge into a structured,
// policy-carrying signature request against the custody network, and
// validates the signature that comes back. No private key material is ever
// resident here; the custody network holds the key and decides.
package signer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/castellan-dev/castellan/internal/logging"
	"github.com/castellan-dev/castellan/internal/model"
)

// RequestPattern selects which field of the structured request carries the
// challenge bytes.
type RequestPattern string

const (
	// PatternStatic embeds the challenge in the same structure that is
	// validated at authorization time.
	PatternStatic RequestPattern = "challenge-static"
	// PatternDynamic carries the challenge in a separate field so it may
	// differ between authorization and signing without invalidating the
	// authorization. The authorizer's own signature is attached as proof.
	PatternDynamic RequestPattern = "challenge-dynamic"
)

// AuthFlow selects implicit (no human operator) vs. explicit
// operator-approval authorization on the custody network.
type AuthFlow string

const (
	// FlowImplicit authorizes without a human operator.
	FlowImplicit AuthFlow = "implicit"
	// FlowOperator requires explicit operator approval.
	FlowOperator AuthFlow = "operator"
)

// SignedAuthorization binds everything the custody network needs to decide
// and sign: the caller's access credential, the challenge, and the optional
// policy. Ephemeral; exists only for one authentication attempt.
type SignedAuthorization struct {
	Policy          []byte
	AuthorizerToken []byte
	Challenge       []byte
}

// disclosure is the human-readable payload shown to the approving party.
// It is never interpreted programmatically.
type disclosure struct {
	Action       string    `json:"action"`
	Algorithm    string    `json:"algorithm"`
	KeyAlgorithm string    `json:"keyAlgorithm"`
	Username     string    `json:"username"`
	ServerID     string    `json:"serverId"`
	Timestamp    time.Time `json:"timestamp"`
}

// wireRequest is the structured request submitted to the custody network's
// initialize step.
type wireRequest struct {
	Pattern             RequestPattern `json:"pattern"`
	Flow                AuthFlow       `json:"flow"`
	AuthorizerToken     []byte         `json:"authorizerToken"`
	Policy              []byte         `json:"policy,omitempty"`
	Challenge           []byte         `json:"challenge,omitempty"`
	DynamicChallenge    []byte         `json:"dynamicChallenge,omitempty"`
	AuthorizerSignature []byte         `json:"authorizerSignature,omitempty"`
	Disclosure          disclosure     `json:"disclosure"`
}

// TokenSource supplies the caller's current access credential.
type TokenSource interface {
	// AuthorizerToken returns the current credential, or an error when the
	// caller holds none. An empty token is fatal for the attempt.
	AuthorizerToken(ctx context.Context) ([]byte, error)
}

// StaticToken is a TokenSource holding a fixed credential.
type StaticToken []byte

// AuthorizerToken returns the fixed credential.
func (t StaticToken) AuthorizerToken(context.Context) ([]byte, error) {
	return []byte(t), nil
}

// AuthorizationProver is optionally implemented by a TokenSource that can
// additionally sign the request itself. Required by PatternDynamic, where
// the proof travels with the request.
type AuthorizationProver interface {
	ProveAuthorization(ctx context.Context, payload []byte) ([]byte, error)
}

// ErrApprovalPending is returned when the approval surface was dismissed
// before the custody network confirmed or denied the request. Pending is
// retryable; callers must not treat it as a denial.
var ErrApprovalPending = errors.New("signature request still pending approval")

// ErrApprovalDenied is returned only on explicit network confirmation of a
// denial.
var ErrApprovalDenied = errors.New("signature request denied")

// DefaultDismissPollInterval is how often the adapter checks whether the
// approval surface was dismissed while awaiting the outcome.
const DefaultDismissPollInterval = 250 * time.Millisecond

// Adapter executes signature requests against the custody network.
type Adapter struct {
	// Policies is consulted for a role-scoped policy; nil disables lookups.
	Policies PolicyStore
	// Custody performs the initialize and execute steps.
	Custody CustodyClient
	// Approval is the surface through which a human approves requests.
	Approval ApprovalSurface
	// Tokens supplies the authorizer credential.
	Tokens TokenSource
	// Pattern selects the request-shape variant. Defaults to PatternStatic.
	Pattern RequestPattern
	// Flow selects implicit vs. operator approval. Defaults to FlowImplicit.
	Flow AuthFlow
	// DismissPollInterval overrides DefaultDismissPollInterval when non-zero.
	DismissPollInterval time.Duration
	// now is a clock seam for tests.
	now func() time.Time
}

// Sign executes one SignatureRequest end to end and returns the raw
// 64-byte Ed25519 signature. None of the failure modes are retried here;
// retry is the caller's decision.
func (a *Adapter) Sign(ctx context.Context, req model.SignatureRequest) ([]byte, error) {
	// Step 1: fetch the policy bound to the role. Absence or failure is
	// not fatal; the custody network enforces whether one is mandatory.
	var policy []byte
	if a.Policies != nil {
		role := "ssh:" + req.Username
		p, err := a.Policies.FetchPolicy(ctx, role)
		if err != nil {
			logging.Warnf("%v", &model.PolicyError{Role: role, Err: err})
		} else {
			policy = p
		}
	}

	// Step 2: the human-readable disclosure payload.
	disc := disclosure{
		Action:       "ssh-auth",
		Algorithm:    req.Algorithm,
		KeyAlgorithm: req.KeyAlgorithm,
		Username:     req.Username,
		ServerID:     req.ServerID,
		Timestamp:    a.clock()(),
	}

	// A missing authorizer token aborts before the authorization is built.
	token, err := a.Tokens.AuthorizerToken(ctx)
	if err != nil {
		return nil, &model.AuthError{Reason: "missing authorizer token", Err: err}
	}
	if len(token) == 0 {
		return nil, &model.AuthError{Reason: "missing authorizer token"}
	}

	// Step 3: bind token, challenge and optional policy into the
	// pattern-tagged request.
	auth := SignedAuthorization{Policy: policy, AuthorizerToken: token, Challenge: req.Challenge}
	requestBytes, err := a.buildRequest(ctx, auth, disc)
	if err != nil {
		return nil, err
	}

	// Await approval, racing the dismissal poll.
	outcomes := a.awaitApproval(ctx, [][]byte{requestBytes})
	switch outcomes[0].Status {
	case OutcomeApproved:
		// Fall through to initialize/execute with the approved request.
		requestBytes = outcomes[0].Request
	case OutcomeDenied:
		return nil, &model.AuthError{Reason: "approval denied", Err: ErrApprovalDenied}
	default:
		return nil, fmt.Errorf("%w", ErrApprovalPending)
	}

	// Step 4: initialize, then execute, strictly in that order.
	initialized, err := a.Custody.Initialize(ctx, requestBytes)
	if err != nil {
		return nil, &model.AuthError{Reason: "custody initialize failed", Err: err}
	}
	signatures, err := a.Custody.Execute(ctx, initialized)
	if err != nil {
		return nil, &model.AuthError{Reason: "custody execute failed", Err: err}
	}
	if len(signatures) == 0 {
		return nil, &model.AuthError{Reason: "custody network returned no signature"}
	}

	// Step 5: length validation. A wrong-length signature is a protocol
	// violation, not a retryable error.
	sig := signatures[0]
	if len(sig) != model.SignatureSize {
		return nil, &model.AuthError{Reason: fmt.Sprintf("signature length %d, want %d", len(sig), model.SignatureSize)}
	}
	return sig, nil
}

// buildRequest assembles the wire request for the configured pattern.
func (a *Adapter) buildRequest(ctx context.Context, auth SignedAuthorization, disc disclosure) ([]byte, error) {
	w := wireRequest{
		Pattern:         a.pattern(),
		Flow:            a.flow(),
		AuthorizerToken: auth.AuthorizerToken,
		Policy:          auth.Policy,
		Disclosure:      disc,
	}

	switch w.Pattern {
	case PatternDynamic:
		// The challenge travels separately so it may differ between
		// authorization and signing; the authorizer proves the
		// authorization with its own signature.
		w.DynamicChallenge = auth.Challenge
		prover, ok := a.Tokens.(AuthorizationProver)
		if !ok {
			return nil, &model.AuthError{Reason: "dynamic pattern requires an authorization prover"}
		}
		base, err := json.Marshal(w)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal signature request: %w", err)
		}
		proof, err := prover.ProveAuthorization(ctx, base)
		if err != nil {
			return nil, &model.AuthError{Reason: "failed to prove authorization", Err: err}
		}
		w.AuthorizerSignature = proof
	default:
		w.Challenge = auth.Challenge
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signature request: %w", err)
	}
	return data, nil
}

func (a *Adapter) pattern() RequestPattern {
	if a.Pattern == "" {
		return PatternStatic
	}
	return a.Pattern
}

func (a *Adapter) flow() AuthFlow {
	if a.Flow == "" {
		return FlowImplicit
	}
	return a.Flow
}

func (a *Adapter) clock() func() time.Time {
	if a.now != nil {
		return a.now
	}
	return time.Now
}
