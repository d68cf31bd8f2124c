package domain

import (
	"context"
	"errors"

	"github.com/ectoplasm/dexclient/internal/casper/deploy"
	"github.com/ectoplasm/dexclient/internal/casper/rpc"
	"github.com/ectoplasm/dexclient/internal/dex"
)

// Recorder adapts Service to the recorder the DEX facade writes history to.
type Recorder struct {
	svc Service
}

var _ dex.Recorder = (*Recorder)(nil)

// NewRecorder creates a Recorder writing to svc.
func NewRecorder(svc Service) *Recorder {
	return &Recorder{svc: svc}
}

// RecordSubmission records an accepted deploy.
func (r *Recorder) RecordSubmission(ctx context.Context, s dex.Submission) error {
	req := RecordRequest{
		Hash:        s.Hash.String(),
		Operation:   string(s.Operation),
		EntryPoint:  s.EntryPoint,
		Account:     s.Account.Hex(),
		ChainName:   s.ChainName,
		SubmittedAt: s.SubmittedAt,
	}
	if !s.Target.IsZero() {
		req.Target = s.Target.String()
	}
	if s.Payment != nil {
		req.PaymentMotes = s.Payment.String()
	}
	_, err := r.svc.Record(ctx, req)
	return err
}

// RecordResult stores an execution result. Deploys submitted elsewhere are
// not in the history and are ignored.
func (r *Recorder) RecordResult(ctx context.Context, hash deploy.Hash, res rpc.ExecutionResult) error {
	err := r.svc.UpdateStatus(ctx, hash.String(), StatusUpdate{
		Status:       string(res.Status),
		ErrorMessage: res.ErrorMessage,
		BlockHash:    res.BlockHash,
		Cost:         res.Cost,
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
