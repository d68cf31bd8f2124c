package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ectoplasm/dexclient/internal/casper/deploy"
)

// Status is the outcome of a deploy as far as the client knows it.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusTimeout Status = "timeout"
)

// Default polling schedule.
const (
	DefaultPollAttempts = 60
	DefaultPollInterval = 5 * time.Second
)

// ExecutionResult describes a deploy's execution. A failure is a normal result
// carrying the node's error message, not a Go error.
type ExecutionResult struct {
	Status       Status `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	BlockHash    string `json:"blockHash,omitempty"`
	Cost         string `json:"cost,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
}

// Executed reports whether the chain ran the deploy.
func (r ExecutionResult) Executed() bool {
	return r.Status == StatusSuccess || r.Status == StatusFailure
}

// GetDeployInfo fetches a deploy and normalizes its execution state.
func (c *Client) GetDeployInfo(ctx context.Context, hash deploy.Hash) (ExecutionResult, error) {
	var raw json.RawMessage
	params := map[string]any{"deploy_hash": hash.String()}
	if err := c.Call(ctx, MethodGetDeploy, params, &raw); err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == codeNoSuchDeploy {
			return ExecutionResult{}, fmt.Errorf("deploy %s: %w: %w", hash, ErrNotFound, err)
		}
		return ExecutionResult{}, err
	}
	return normalizeDeployInfo(raw)
}

// wire shapes of execution results across node versions
type (
	versionedResult struct {
		Version1 *v1Result `json:"Version1"`
		Version2 *struct {
			ErrorMessage *string `json:"error_message"`
			Cost         string  `json:"cost"`
			Consumed     string  `json:"consumed"`
		} `json:"Version2"`
		// some gateways inline a 1.x result without the version wrapper
		v1Result
	}
	v1Result struct {
		Success *struct {
			Cost string `json:"cost"`
		} `json:"Success"`
		Failure *struct {
			ErrorMessage string `json:"error_message"`
			Cost         string `json:"cost"`
		} `json:"Failure"`
	}
	executionInfo struct {
		BlockHash            string           `json:"block_hash"`
		BlockHashCamel       string           `json:"blockHash"`
		ExecutionResult      *versionedResult `json:"execution_result"`
		ExecutionResultCamel *versionedResult `json:"executionResult"`
	}
)

func normalizeDeployInfo(raw json.RawMessage) (ExecutionResult, error) {
	var res struct {
		ExecutionInfo      json.RawMessage `json:"execution_info"`
		ExecutionInfoCamel json.RawMessage `json:"executionInfo"`
		ExecutionResults   json.RawMessage `json:"execution_results"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return ExecutionResult{}, &DecodingError{Method: MethodGetDeploy, Field: "result", Err: err}
	}

	switch {
	case res.ExecutionInfo != nil:
		return normalizeExecutionInfo(res.ExecutionInfo)
	case res.ExecutionInfoCamel != nil:
		return normalizeExecutionInfo(res.ExecutionInfoCamel)
	case res.ExecutionResults != nil:
		return normalizeExecutionResults(res.ExecutionResults)
	default:
		return ExecutionResult{}, &DecodingError{Method: MethodGetDeploy, Field: "execution_info|executionInfo|execution_results"}
	}
}

func normalizeExecutionInfo(raw json.RawMessage) (ExecutionResult, error) {
	if string(raw) == "null" {
		return ExecutionResult{Status: StatusPending}, nil
	}
	var info executionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return ExecutionResult{}, &DecodingError{Method: MethodGetDeploy, Field: "execution_info", Err: err}
	}
	block := info.BlockHash
	if block == "" {
		block = info.BlockHashCamel
	}
	result := info.ExecutionResult
	if result == nil {
		result = info.ExecutionResultCamel
	}
	if result == nil {
		return ExecutionResult{Status: StatusPending, BlockHash: block}, nil
	}
	out, err := result.normalize()
	if err != nil {
		return ExecutionResult{}, err
	}
	out.BlockHash = block
	return out, nil
}

func normalizeExecutionResults(raw json.RawMessage) (ExecutionResult, error) {
	var results []struct {
		BlockHash string   `json:"block_hash"`
		Result    v1Result `json:"result"`
	}
	if err := json.Unmarshal(raw, &results); err != nil {
		return ExecutionResult{}, &DecodingError{Method: MethodGetDeploy, Field: "execution_results", Err: err}
	}
	if len(results) == 0 {
		return ExecutionResult{Status: StatusPending}, nil
	}
	out, ok := results[0].Result.normalize()
	if !ok {
		return ExecutionResult{}, &DecodingError{Method: MethodGetDeploy, Field: "execution_results[0].result"}
	}
	out.BlockHash = results[0].BlockHash
	return out, nil
}

func (r *versionedResult) normalize() (ExecutionResult, error) {
	switch {
	case r.Version2 != nil:
		if r.Version2.ErrorMessage != nil {
			return ExecutionResult{Status: StatusFailure, ErrorMessage: *r.Version2.ErrorMessage, Cost: r.Version2.Cost}, nil
		}
		return ExecutionResult{Status: StatusSuccess, Cost: r.Version2.Cost}, nil
	case r.Version1 != nil:
		if out, ok := r.Version1.normalize(); ok {
			return out, nil
		}
	default:
		if out, ok := r.v1Result.normalize(); ok {
			return out, nil
		}
	}
	return ExecutionResult{}, &DecodingError{Method: MethodGetDeploy, Field: "execution_result"}
}

func (r v1Result) normalize() (ExecutionResult, bool) {
	switch {
	case r.Failure != nil:
		return ExecutionResult{Status: StatusFailure, ErrorMessage: r.Failure.ErrorMessage, Cost: r.Failure.Cost}, true
	case r.Success != nil:
		return ExecutionResult{Status: StatusSuccess, Cost: r.Success.Cost}, true
	default:
		return ExecutionResult{}, false
	}
}

// PollExecutionResult queries the deploy up to attempts times, interval apart,
// and returns as soon as it has executed. Node and transport errors count as
// "not yet"; an unknown deploy is normal right after submission. A response
// with no recognizable execution result and context cancellation end the loop
// early with an error.
func (c *Client) PollExecutionResult(ctx context.Context, hash deploy.Hash, attempts int, interval time.Duration) (ExecutionResult, error) {
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	for i := 1; i <= attempts; i++ {
		res, err := c.GetDeployInfo(ctx, hash)
		switch {
		case err == nil && res.Executed():
			res.Attempts = i
			return res, nil
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ExecutionResult{}, ctxErr
			}
			var decErr *DecodingError
			if errors.As(err, &decErr) {
				return ExecutionResult{}, err
			}
			if errors.Is(err, ErrNotFound) {
				c.logger.Debug("deploy not yet known", "deploy_hash", hash.String(), "attempt", i)
			} else {
				c.logger.Debug("deploy poll failed", "deploy_hash", hash.String(), "attempt", i, "error", err)
			}
		}

		if i == attempts {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ExecutionResult{}, ctx.Err()
		case <-timer.C:
		}
	}
	return ExecutionResult{Status: StatusTimeout, Attempts: attempts}, nil
}
