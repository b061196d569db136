// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package signer

import (
	"context"
	"time"
)

// OutcomeStatus is the per-request result of the authorization-approval
// call.
type OutcomeStatus string

const (
	// OutcomeApproved carries the approved request bytes.
	OutcomeApproved OutcomeStatus = "approved"
	// OutcomeDenied is an explicit network-confirmed denial.
	OutcomeDenied OutcomeStatus = "denied"
	// OutcomePending means no confirmation arrived; the caller may retry.
	OutcomePending OutcomeStatus = "pending"
)

// Outcome is the result for one request in an approval batch.
type Outcome struct {
	Status OutcomeStatus
	// Request holds the approved request bytes when Status is
	// OutcomeApproved; nil otherwise.
	Request []byte
}

// ApprovalSurface is the popup or embedded enclave through which a human
// approves pending cryptographic requests. The caller cannot fully control
// it, so dismissal has to be observable independently of the outcome.
type ApprovalSurface interface {
	// RequestApproval presents the batch and delivers outcomes exactly
	// once on the returned channel.
	RequestApproval(ctx context.Context, requests [][]byte) <-chan []Outcome
	// Dismissed reports whether the surface was closed before outcomes
	// were delivered.
	Dismissed() bool
}

// AutoApprove is an ApprovalSurface that approves every request
// immediately. It backs the implicit flow where no human operator is
// involved.
type AutoApprove struct{}

// RequestApproval approves the whole batch without interaction.
func (AutoApprove) RequestApproval(_ context.Context, requests [][]byte) <-chan []Outcome {
	out := make(chan []Outcome, 1)
	outcomes := make([]Outcome, len(requests))
	for i, r := range requests {
		outcomes[i] = Outcome{Status: OutcomeApproved, Request: r}
	}
	out <- outcomes
	return out
}

// Dismissed always reports false; there is no surface to dismiss.
func (AutoApprove) Dismissed() bool { return false }

// awaitApproval races the approval outcome against a poll for "the surface
// was dismissed". Whichever resolves first wins. When the dismissal path
// wins, every still-pending request in the batch is reported as pending,
// never denied, so the caller is free to retry. The poll ticker is stopped
// on every path out of the race.
func (a *Adapter) awaitApproval(ctx context.Context, requests [][]byte) []Outcome {
	interval := a.DismissPollInterval
	if interval == 0 {
		interval = DefaultDismissPollInterval
	}

	outcomeCh := a.Approval.RequestApproval(ctx, requests)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case outcomes, ok := <-outcomeCh:
			if !ok || len(outcomes) != len(requests) {
				return allPending(len(requests))
			}
			return outcomes
		case <-ticker.C:
			if a.Approval.Dismissed() {
				return allPending(len(requests))
			}
		case <-ctx.Done():
			return allPending(len(requests))
		}
	}
}

// allPending builds a batch result where every request is still pending.
func allPending(n int) []Outcome {
	outcomes := make([]Outcome, n)
	for i := range outcomes {
		outcomes[i] = Outcome{Status: OutcomePending}
	}
	return outcomes
}
