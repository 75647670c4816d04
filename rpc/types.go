package rpc

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"

	"subsync/core"
	"subsync/crypto"
	"subsync/native/pricing"
	"subsync/storage/smt"
)

type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

type WindowResult struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

type SubscriptionResponse struct {
	Account string        `json:"account"`
	ChainID uint16        `json:"chainId"`
	Window  *WindowResult `json:"window,omitempty"`
	Active  bool          `json:"active"`
	InDebt  bool          `json:"inDebt"`
	EndTime uint64        `json:"endTime"`
}

type QuoteResponse struct {
	Account     string `json:"account"`
	Token       string `json:"token"`
	Duration    uint64 `json:"duration"`
	UnitPrice   string `json:"unitPrice"`
	GlobalPrice string `json:"globalPrice"`
	Locked      bool   `json:"locked"`
	Factor      string `json:"factor"`
	Discount    string `json:"discount"`
	Cost        string `json:"cost"`
}

type RootResponse struct {
	ChainID   uint16 `json:"chainId"`
	Root      string `json:"root"`
	Known     bool   `json:"known"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ProofResponse carries both the decoded proof and its ABI encoding, which
// relayers pass through to syncSubscription unchanged.
type ProofResponse struct {
	Account      string   `json:"account"`
	Root         string   `json:"root"`
	Key          string   `json:"key"`
	Value        string   `json:"value"`
	Siblings     []string `json:"siblings"`
	Existence    bool     `json:"existence"`
	AuxExistence bool     `json:"auxExistence"`
	AuxKey       string   `json:"auxKey"`
	AuxValue     string   `json:"auxValue"`
	Encoded      string   `json:"encoded"`
}

func displayAddress(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.SubPrefix, addr[:]).String()
}

func subscriptionResponse(account [20]byte, chainID uint16, status *core.Status) SubscriptionResponse {
	resp := SubscriptionResponse{
		Account: displayAddress(account),
		ChainID: chainID,
		Active:  status.Active,
		InDebt:  status.InDebt,
		EndTime: status.EndTime,
	}
	if status.Window != nil {
		resp.Window = &WindowResult{Start: status.Window.Start, End: status.Window.End}
	}
	return resp
}

func quoteResponse(account [20]byte, q *pricing.Quote) QuoteResponse {
	return QuoteResponse{
		Account:     displayAddress(account),
		Token:       q.Token,
		Duration:    q.Duration,
		UnitPrice:   amountString(q.UnitPrice),
		GlobalPrice: amountString(q.GlobalPrice),
		Locked:      q.Locked,
		Factor:      amountString(q.Factor),
		Discount:    amountString(q.Discount),
		Cost:        amountString(q.Cost),
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func proofResponse(account [20]byte, p *smt.Proof) (ProofResponse, error) {
	encoded, err := smt.EncodeProof(p)
	if err != nil {
		return ProofResponse{}, err
	}
	siblings := make([]string, len(p.Siblings))
	for i, s := range p.Siblings {
		siblings[i] = s.Hex()
	}
	return ProofResponse{
		Account:      displayAddress(account),
		Root:         p.Root.Hex(),
		Key:          p.Key.Hex(),
		Value:        p.Value.Hex(),
		Siblings:     siblings,
		Existence:    p.Existence,
		AuxExistence: p.AuxExistence,
		AuxKey:       p.AuxKey.Hex(),
		AuxValue:     p.AuxValue.Hex(),
		Encoded:      "0x" + hex.EncodeToString(encoded),
	}, nil
}

func rootResponse(chainID uint16, cp *core.Checkpoint) RootResponse {
	resp := RootResponse{ChainID: chainID, Root: cp.Root.Hex(), Known: cp.Known}
	if cp.Timestamp != nil {
		resp.Timestamp = cp.Timestamp.String()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: message, RequestID: requestID(r.Context())})
}

func parseChain(raw string) (uint16, bool) {
	id, err := strconv.ParseUint(raw, 10, 16)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint16(id), true
}

// MirrorSyncRequest submits a window with the ABI-encoded proof served by
// /v1/sync/proof/{account}.
type MirrorSyncRequest struct {
	Account string `json:"account"`
	Start   uint64 `json:"start"`
	End     uint64 `json:"end"`
	Proof   string `json:"proof"`
}
