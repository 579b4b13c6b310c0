package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/Mindburn-Labs/assetguard/pkg/api"
	"github.com/Mindburn-Labs/assetguard/pkg/auth"
	"github.com/Mindburn-Labs/assetguard/pkg/gateway"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol/velora"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

const maxBody = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		api.WriteBadRequest(w, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func bigOf(v *math.HexOrDecimal256) *big.Int {
	if v == nil {
		return nil
	}
	return (*big.Int)(v)
}

// caller is set by RequireRole; a missing principal is a routing bug.
func caller(r *http.Request) common.Address {
	p, _ := auth.GetPrincipal(r.Context())
	return p.Address
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePerformCall(w http.ResponseWriter, r *http.Request) {
	var req api.CallRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.agent.PerformCall(r.Context(), caller(r), req.Target, req.Data, bigOf(req.Value))
	if err != nil {
		api.WriteReason(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.CallResponse{
		DecisionID: res.DecisionID,
		Kind:       res.Kind,
		Target:     res.Target,
		ReturnData: res.ReturnData,
	})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req api.OrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AmountIn == nil || req.MinAmountOut == nil {
		api.WriteBadRequest(w, "amount_in and min_amount_out are required")
		return
	}
	so, err := s.agent.CreateAndSignOrder(r.Context(), caller(r), gateway.OrderRequest{
		Settlement:   req.Settlement,
		Receiver:     req.Receiver,
		AppData:      req.AppData,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     bigOf(req.AmountIn),
		MinAmountOut: bigOf(req.MinAmountOut),
		Side:         req.Side,
	})
	if err != nil {
		api.WriteReason(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.OrderResponse{
		UID:        so.UID,
		Hash:       so.Hash,
		Order:      so.Order,
		Settlement: so.Target,
		Calldata:   so.Calldata,
	})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req api.SwapRequest
	if !decodeBody(w, r, &req) {
		return
	}
	received, err := s.agent.SwapAndValidate(r.Context(), caller(r), velora.Intent{
		Router:       req.Router,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     bigOf(req.AmountIn),
		MinAmountOut: bigOf(req.MinAmountOut),
		Calldata:     req.Calldata,
	})
	if err != nil {
		api.WriteReason(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SwapResponse{Received: received.String()})
}

func (s *Server) handleTargets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.targets.Targets())
}

func dimension(w http.ResponseWriter, r *http.Request) (whitelist.Dimension, bool) {
	d := whitelist.Dimension(r.PathValue("dimension"))
	if !d.Valid() {
		api.WriteNotFound(w, "unknown whitelist dimension "+string(d))
		return "", false
	}
	return d, true
}

func (s *Server) handleListWhitelist(w http.ResponseWriter, r *http.Request) {
	d, ok := dimension(w, r)
	if !ok {
		return
	}
	entries := s.registry.Entries(d)
	out := make([]api.WhitelistEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, api.WhitelistEntry{
			Dimension: e.Dimension,
			Key:       e.Key.Format(e.Dimension),
			Approved:  e.Approved,
			Note:      e.Note,
			UpdatedAt: e.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetWhitelist(w http.ResponseWriter, r *http.Request) {
	d, ok := dimension(w, r)
	if !ok {
		return
	}
	var req api.WhitelistRequest
	if !decodeBody(w, r, &req) {
		return
	}
	key, err := whitelist.ParseKey(d, req.Key)
	if err != nil {
		api.WriteBadRequest(w, err.Error())
		return
	}
	if err := s.registry.Set(r.Context(), caller(r), d, key, req.Approved, req.Note); err != nil {
		api.WriteReason(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "whitelist updated",
		"dimension", d, "key", key.Format(d), "approved", req.Approved, "request_id", auth.GetRequestID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBindings(w http.ResponseWriter, _ *http.Request) {
	bindings := s.registry.Bindings()
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].Router.Cmp(bindings[j].Router) < 0 })
	writeJSON(w, http.StatusOK, bindings)
}

func (s *Server) handleBindRouter(w http.ResponseWriter, r *http.Request) {
	var req api.BindingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.registry.BindRouter(r.Context(), caller(r), req.Router, req.Escrow, req.Note); err != nil {
		api.WriteReason(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "router bound",
		"router", req.Router.Hex(), "escrow", req.Escrow.Hex(), "request_id", auth.GetRequestID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
