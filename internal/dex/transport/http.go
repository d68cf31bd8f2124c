package transport

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ectoplasm/dexclient/internal/casper/clvalue"
	"github.com/ectoplasm/dexclient/internal/casper/deploy"
	"github.com/ectoplasm/dexclient/internal/casper/keys"
	"github.com/ectoplasm/dexclient/internal/casper/rpc"
	"github.com/ectoplasm/dexclient/internal/dex"
	"github.com/ectoplasm/dexclient/internal/swapmath"
	"github.com/ectoplasm/dexclient/internal/validation"
)

// Service is the DEX facade as seen by the HTTP transport.
type Service = dex.Facade

// Handler handles HTTP requests for DEX operations.
type Handler struct {
	svc Service
}

// NewHandler creates a new DEX HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers all DEX routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/tokens", h.handleTokens)
	r.Get("/quote", h.handleQuote)
	r.Get("/node", h.handleNode)

	r.Get("/balances/cspr/{publicKey}", h.handleNativeBalance)
	r.Get("/balances/{symbol}/{account}", h.handleTokenBalance)

	r.Route("/deploys", func(r chi.Router) {
		r.Post("/approve", h.handleApprove)
		r.Post("/mint", h.handleMint)
		r.Post("/swap", h.handleSwap)
		r.Post("/add-liquidity", h.handleAddLiquidity)
		r.Post("/remove-liquidity", h.handleRemoveLiquidity)
		r.Post("/submit", h.handleSubmit)
		r.Get("/{hash}/status", h.handleStatus)
	})
}

func (h *Handler) handleTokens(w http.ResponseWriter, r *http.Request) {
	tokens := h.svc.Tokens()
	if tokens == nil {
		tokens = []dex.Token{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": tokens})
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := dex.QuoteRequest{
		TokenIn:  q.Get("tokenIn"),
		TokenOut: q.Get("tokenOut"),
	}

	var err error
	for _, f := range []struct {
		name string
		dst  **big.Int
	}{
		{"amountIn", &req.AmountIn},
		{"reserveIn", &req.ReserveIn},
		{"reserveOut", &req.ReserveOut},
	} {
		v := q.Get(f.name)
		if v == "" {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", f.name+" is required")
			return
		}
		if *f.dst, err = parseAmount(v); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", f.name+": "+err.Error())
			return
		}
	}
	if s := q.Get("slippageBps"); s != "" {
		bps, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "slippageBps must be an integer")
			return
		}
		req.SlippageBps = uint32(bps)
	}

	quote, err := h.svc.Quote(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "Failed to compute quote")
		return
	}

	writeJSON(w, http.StatusOK, QuoteResponse{
		TokenIn:      quote.TokenIn,
		TokenOut:     quote.TokenOut,
		AmountIn:     quote.AmountIn.String(),
		AmountOut:    quote.AmountOut.String(),
		MinAmountOut: quote.MinAmountOut.String(),
	})
}

func (h *Handler) handleNode(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.CheckNode(r.Context())
	if err != nil && st == nil {
		writeServiceError(w, err, "Failed to query node")
		return
	}
	resp := map[string]any{
		"apiVersion":   st.APIVersion,
		"chainspec":    st.ChainspecName,
		"buildVersion": st.BuildVersion,
		"compatible":   err == nil,
	}
	if err != nil {
		resp["message"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	account, err := parseOwner(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	bal, err := h.svc.TokenBalance(r.Context(), symbol, account)
	if err != nil {
		writeServiceError(w, err, "Failed to resolve balance")
		return
	}

	decimals := h.decimals(bal.Token)
	writeJSON(w, http.StatusOK, BalanceResponse{
		Token:     bal.Token,
		Account:   bal.Account,
		Amount:    bal.Amount.String(),
		Formatted: swapmath.FormatUnits(bal.Amount, decimals),
		Decimals:  decimals,
		Candidate: bal.Candidate,
		Probes:    bal.Probes,
	})
}

func (h *Handler) handleNativeBalance(w http.ResponseWriter, r *http.Request) {
	pub, err := keys.ParsePublicKey(chi.URLParam(r, "publicKey"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	motes, err := h.svc.NativeBalance(r.Context(), pub)
	if err != nil {
		writeServiceError(w, err, "Failed to get CSPR balance")
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{
		Token:     "CSPR",
		Account:   pub.AccountHash().String(),
		Amount:    motes.String(),
		Formatted: swapmath.FormatUnits(motes, 9),
		Decimals:  9,
	})
}

func (h *Handler) decimals(symbol string) uint8 {
	for _, t := range h.svc.Tokens() {
		if t.Symbol == symbol {
			return t.Decimals
		}
	}
	return 0
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body ApproveRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.ToDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	d, err := h.svc.Approve(r.Context(), req)
	writeDeploy(w, d, err)
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	var body MintRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.ToDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	d, err := h.svc.Mint(r.Context(), req)
	writeDeploy(w, d, err)
}

func (h *Handler) handleSwap(w http.ResponseWriter, r *http.Request) {
	var body SwapRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.ToDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	d, err := h.svc.Swap(r.Context(), req)
	writeDeploy(w, d, err)
}

func (h *Handler) handleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	var body AddLiquidityRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.ToDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	d, err := h.svc.AddLiquidity(r.Context(), req)
	writeDeploy(w, d, err)
}

func (h *Handler) handleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var body RemoveLiquidityRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.ToDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	d, err := h.svc.RemoveLiquidity(r.Context(), req)
	writeDeploy(w, d, err)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body.Deploy) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "deploy is required")
		return
	}
	d, err := deploy.Unmarshal(body.Deploy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if body.Signature != "" {
		signer := body.Signer
		if signer == "" {
			signer = d.Header.Account.Hex()
		}
		if err := h.svc.AttachSignature(d, signer, body.Signature); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_SIGNATURE", err.Error())
			return
		}
	}

	hash, err := h.svc.Submit(r.Context(), d)
	if err != nil {
		writeServiceError(w, err, "Failed to submit deploy")
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{DeployHash: hash.String()})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	hash, err := deploy.ParseHash(chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid deploy hash")
		return
	}

	var res rpc.ExecutionResult
	if r.URL.Query().Get("wait") == "true" {
		res, err = h.svc.Wait(r.Context(), hash)
	} else {
		res, err = h.svc.Status(r.Context(), hash)
	}
	if err != nil {
		writeServiceError(w, err, "Failed to get deploy status")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		DeployHash:   hash.String(),
		Status:       string(res.Status),
		ErrorMessage: res.ErrorMessage,
		BlockHash:    res.BlockHash,
		Cost:         res.Cost,
		Attempts:     res.Attempts,
	})
}

// Helper functions

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return false
	}
	return true
}

func writeDeploy(w http.ResponseWriter, d *deploy.Deploy, err error) {
	if err != nil {
		writeServiceError(w, err, "Failed to build deploy")
		return
	}
	raw, err := json.Marshal(d)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to encode deploy")
		return
	}
	writeJSON(w, http.StatusOK, DeployResponse{
		Deploy:     raw,
		DeployHash: d.Hash.String(),
		EntryPoint: d.Session.EntryPoint(),
		ExpiresAt:  d.Expiry(),
	})
}

// writeServiceError maps facade errors to HTTP responses. Node rejections
// carry the node's code and message verbatim in error.node.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var (
		rpcErr       *rpc.RPCError
		transportErr *rpc.TransportError
		encErr       *clvalue.EncodingError
	)
	switch {
	case errors.Is(err, dex.ErrUnknownToken):
		writeError(w, http.StatusNotFound, "UNKNOWN_TOKEN", err.Error())
	case errors.Is(err, rpc.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, dex.ErrInvalidInput),
		errors.Is(err, dex.ErrInvalidPath),
		errors.Is(err, dex.ErrChainMismatch),
		errors.Is(err, keys.ErrInvalidAddress),
		errors.Is(err, keys.ErrInvalidPublicKey),
		errors.As(err, &encErr):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, deploy.ErrNoApprovals),
		errors.Is(err, deploy.ErrInvalidSignature),
		errors.Is(err, deploy.ErrBodyHashMismatch),
		errors.Is(err, deploy.ErrDeployHashMismatch):
		writeError(w, http.StatusBadRequest, "INVALID_DEPLOY", err.Error())
	case errors.Is(err, dex.ErrMissingSpender), errors.Is(err, dex.ErrNoContractHash):
		writeError(w, http.StatusUnprocessableEntity, "NOT_CONFIGURED", err.Error())
	case errors.Is(err, validation.ErrNodeTooOld):
		writeError(w, http.StatusServiceUnavailable, "NODE_INCOMPATIBLE", err.Error())
	case errors.As(err, &rpcErr):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: ErrorDetail{
			Code:    "NODE_ERROR",
			Message: rpcErr.Message,
			Node: &NodeError{
				Method:  rpcErr.Method,
				Code:    rpcErr.Code,
				Message: rpcErr.Message,
				Data:    rpcErr.Data,
			},
		}})
	case errors.As(err, &transportErr):
		writeError(w, http.StatusBadGateway, "NODE_UNAVAILABLE", transportErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
