// Package api implements the REST surface spec.md §6 describes: per-direction
// quote/status endpoints, the numeric error envelope, the legacy multi-JSON
// streaming transport, and the signed /info discovery endpoint. It is
// adapted from the teacher's internal/rpc server (net/http + a method
// table), generalized from JSON-RPC 2.0 framing to this protocol's
// REST-verb-plus-numeric-code envelope.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/lp-intermediary/swapd/internal/quote"
)

// Envelope is the response body every endpoint returns, spec.md §6/§7.
type Envelope struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// Status/success codes, spec.md §6.
const (
	CodeSuccess              = 10000
	CodeExpiredOrCanceled    = 10001
	CodeAwaitingBitcoin      = 10010
	CodeBitcoinProcessing    = 10011
	CodeTxSentSC             = 10012
	CodeBitcoinAccepted      = 10013
	CodeRefunded             = 10014
	CodeDoubleSpendBurned    = 10015
)

// Client-validation codes, spec.md §6/§7: 20000-20999.
const (
	CodeInvalidRequestBody = 20100
	CodeNotFound           = 20404
)

// Intermediary-refusal codes, spec.md §6/§7: 21000+, one per quote.FailCode.
const (
	CodeAmountTooLow         = 21000
	CodeAmountTooHigh        = 21001
	CodeTokenUnsupported     = 21002
	CodeInsufficientLiquidity = 21003
	CodePriceStale           = 21004
	CodeAborted              = 21005
	CodeInternalSign         = 21006
)

var failCodes = map[quote.FailCode]int{
	quote.AmountTooLow:         CodeAmountTooLow,
	quote.AmountTooHigh:        CodeAmountTooHigh,
	quote.TokenUnsupported:     CodeTokenUnsupported,
	quote.InsufficientLiquidity: CodeInsufficientLiquidity,
	quote.PriceStale:           CodePriceStale,
	quote.Aborted:              CodeAborted,
	quote.InternalSign:         CodeInternalSign,
}

// writeEnvelope writes an Envelope as JSON. Per spec.md §6, HTTP status is
// 200 for any code >= 10000 unless a handler explicitly overrides it.
func writeEnvelope(w http.ResponseWriter, httpStatus int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(env)
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeEnvelope(w, http.StatusOK, Envelope{Code: CodeSuccess, Msg: "ok", Data: data})
}

func writeInvalidBody(w http.ResponseWriter) {
	writeEnvelope(w, http.StatusOK, Envelope{Code: CodeInvalidRequestBody, Msg: "Invalid request body"})
}

func writeNotFound(w http.ResponseWriter, msg string) {
	writeEnvelope(w, http.StatusOK, Envelope{Code: CodeNotFound, Msg: msg})
}

func writeFail(w http.ResponseWriter, f *quote.Fail) {
	code, ok := failCodes[f.Code]
	if !ok {
		code = CodeAborted
	}
	writeEnvelope(w, http.StatusOK, Envelope{Code: code, Msg: f.Message, Data: f.Data})
}
