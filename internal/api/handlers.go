package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lp-intermediary/swapd/internal/btcsend"
	"github.com/lp-intermediary/swapd/internal/btcwatcher"
	"github.com/lp-intermediary/swapd/internal/config"
	"github.com/lp-intermediary/swapd/internal/quote"
	"github.com/lp-intermediary/swapd/internal/storage"
	"github.com/lp-intermediary/swapd/internal/swapcontract"
	"github.com/lp-intermediary/swapd/internal/swapcore"
)

// createQuoteRequest is the request body for getAddress/createInvoice/payInvoice,
// spec.md §6: unrecognized fields are ignored; missing required fields
// yield CodeInvalidRequestBody.
type createQuoteRequest struct {
	ChainID       uint64 `json:"chain_id"`
	Token         string `json:"token"`
	AmountSats    string `json:"amount_sats"`
	ExactIn       bool   `json:"exact_in"`
	Offerer       string `json:"offerer"`
	Claimer       string `json:"claimer"`
	Bolt11        string `json:"bolt11,omitempty"`
	DestAddress   string `json:"dest_address,omitempty"`
	RefundAddress string `json:"refund_address,omitempty"`
}

// handleCreateQuote implements POST /{dir}/getAddress|createInvoice|payInvoice,
// spec.md §6: run the quote, persist the CREATED-state swap record, hand
// back the signed init authorization for the client to commit on-chain.
func (s *Server) handleCreateQuote(dir config.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()

		var req createQuoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalidBody(w)
			return
		}
		amount, ok := new(big.Int).SetString(req.AmountSats, 10)
		if !ok || req.Token == "" || req.Offerer == "" || req.Claimer == "" {
			writeInvalidBody(w)
			return
		}
		if dir == config.ToBtc && req.DestAddress == "" {
			writeInvalidBody(w)
			return
		}
		if dir == config.ToBtcLn && req.Bolt11 == "" {
			writeInvalidBody(w)
			return
		}

		paymentHash, err := randomHash()
		if err != nil {
			writeEnvelope(w, http.StatusOK, Envelope{Code: CodeAborted, Msg: "internal error"})
			return
		}

		sending := dir == config.ToBtc || dir == config.ToBtcLn
		qreq := quote.Request{
			Direction:   dir,
			ChainID:     req.ChainID,
			Token:       req.Token,
			Amount:      quote.AmountSpec{ExactIn: req.ExactIn, AmountSats: amount, Sending: sending},
			PaymentHash: paymentHash,
			Offerer:     req.Offerer,
			Claimer:     req.Claimer,
			SwapType:    swapTypeFor(dir),
			PayIn:       sending,
		}

		result, fail := s.quotes.Quote(r.Context(), qreq)
		if fail != nil {
			s.log.Warn("quote failed", "request_id", requestID, "direction", dir, "code", fail.Code)
			writeFail(w, fail)
			return
		}

		if err := s.persistInitialSwap(r.Context(), dir, paymentHash, result, req); err != nil {
			s.log.Error("persist initial swap failed", "request_id", requestID, "err", err)
			writeEnvelope(w, http.StatusOK, Envelope{Code: CodeAborted, Msg: "internal error"})
			return
		}

		s.log.Info("quote created", "request_id", requestID, "direction", dir, "payment_hash", hex.EncodeToString(paymentHash[:]))
		writeSuccess(w, quoteResponse(paymentHash, result))
	}
}

func swapTypeFor(dir config.Direction) swapcontract.SwapType {
	switch dir {
	case config.ToBtc, config.ToBtcLn:
		return swapcontract.SwapTypeToBtc
	default:
		return swapcontract.SwapTypeFromBtc
	}
}

func quoteResponse(paymentHash [32]byte, r *quote.Result) map[string]any {
	return map[string]any{
		"payment_hash":  hex.EncodeToString(paymentHash[:]),
		"amount_sats":   r.AmountSats.String(),
		"swap_fee":      r.SwapFeeToken.String(), // token units, spec.md §3
		"swap_fee_btc":  r.SwapFeeSats.String(),  // sats, spec.md §3
		"total":         r.TotalSats.String(),
		"expires_at":    r.ExpiresAt.Unix(),
		"prefix":        r.Auth.Prefix,
		"timeout":       r.Auth.Timeout,
		"signature":     hex.EncodeToString(r.Auth.Signature),
	}
}

func randomHash() ([32]byte, error) {
	var h [32]byte
	_, err := rand.Read(h[:])
	return h, err
}

// persistInitialSwap writes the initial-state swap record the direction's
// state machine (internal/swapcore) drives from here on.
func (s *Server) persistInitialSwap(ctx context.Context, dir config.Direction, paymentHash [32]byte, r *quote.Result, req createQuoteRequest) error {
	base := swapcore.Base{
		PaymentHash: paymentHash,
		Direction:   dir,
		ChainID:     req.ChainID,
		SwapData:    r.SwapData,
		SwapFee:     r.SwapFeeToken,
		SwapFeeBTC:  r.SwapFeeSats,
		PriceInfo: swapcore.PriceInfo{
			BaseFeeSats:                r.PriceInfo.BaseFeeSats,
			FeePPM:                     r.PriceInfo.FeePPM,
			SwapPriceMicroSatsPerToken: r.PriceInfo.SwapPriceMicroSatsPerToken,
		},
		SignedQuote: swapcore.SignedQuote{
			Prefix:    r.Auth.Prefix,
			Timeout:   r.Auth.Timeout,
			Signature: r.Auth.Signature,
		},
		CreatedAt: time.Now(),
		ExpiresAt: r.ExpiresAt,
	}

	var data any
	switch dir {
	case config.FromBtc:
		base.State = swapcore.StateCreated
		addr, _, err := btcsend.DeriveDepositAddress(s.depositKey, paymentHash, s.btcParams)
		if err != nil {
			return err
		}
		data = &swapcore.FromBtcData{Base: base, BtcAddress: addr, AmountSats: r.AmountSats, RefundAddress: req.RefundAddress}
		if s.btc != nil {
			s.btc.Register(&btcwatcher.WatchTarget{PaymentHash: paymentHash, Address: addr, ExpectedSats: r.AmountSats.Uint64()})
		}
	case config.FromBtcLn:
		base.State = swapcore.StateFLPRCreated
		fl := &swapcore.FromBtcLnData{Base: base}
		if s.ln != nil {
			inv, err := s.ln.CreateHODLInvoice(ctx, paymentHash, r.AmountSats.Uint64(), time.Until(r.ExpiresAt))
			if err != nil {
				return fmt.Errorf("create hodl invoice: %w", err)
			}
			fl.Bolt11 = inv.Bolt11
		}
		data = fl
	case config.ToBtc:
		base.State = swapcore.StateTBCreated
		data = &swapcore.ToBtcData{Base: base, DestinationAddress: req.DestAddress, AmountSats: r.AmountSats}
	case config.ToBtcLn:
		base.State = swapcore.StateTLCreated
		dc, _ := s.cfg.Lookup(dir, req.ChainID, req.Token)
		data = &swapcore.ToBtcLnData{
			Base:              base,
			Bolt11:            req.Bolt11,
			RoutingFeeSatsMax: dc.MaxRoutingBaseFeeSats,
			RoutingFeePPMMax:  dc.MaxRoutingFeePPM,
		}
	default:
		return fmt.Errorf("api: unsupported direction %s", dir)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, &storage.Record{
		PaymentHash: paymentHash,
		Direction:   string(dir),
		ChainID:     req.ChainID,
		State:       base.State,
		Data:        raw,
	})
}

// handleStatus implements GET /{dir}/getInvoiceStatus?paymentHash=<hex64>,
// spec.md §6.
func (s *Server) handleStatus(dir config.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hexHash := r.URL.Query().Get("paymentHash")
		raw, err := hex.DecodeString(hexHash)
		if err != nil || len(raw) != 32 {
			writeInvalidBody(w)
			return
		}
		var hash [32]byte
		copy(hash[:], raw)

		rec, err := s.store.Get(r.Context(), hash)
		if err != nil {
			writeNotFound(w, "swap not found")
			return
		}
		writeSuccess(w, map[string]any{"code": statusCode(dir, rec.State), "state": rec.State})
	}
}

// statusCode maps a direction's internal state to the numeric status code
// spec.md §6 names. State string values are reused across directions (e.g.
// every direction has a "CREATED" state), so the mapping switches on
// direction first rather than flattening all states into one switch.
func statusCode(dir config.Direction, state string) int {
	switch dir {
	case config.FromBtc:
		switch state {
		case swapcore.StateClaimed:
			return CodeSuccess
		case swapcore.StateExpired:
			return CodeExpiredOrCanceled
		case swapcore.StateCreated:
			return CodeAwaitingBitcoin
		case swapcore.StateCommited:
			return CodeBitcoinProcessing
		case swapcore.StateBTCConfirmed:
			return CodeBitcoinAccepted
		case swapcore.StateRefundable, swapcore.StateRefunded:
			return CodeRefunded
		}
	case config.FromBtcLn:
		switch state {
		case swapcore.StateFLClaimClaimed:
			return CodeSuccess
		case swapcore.StateFLQuoteExpired:
			return CodeExpiredOrCanceled
		case swapcore.StateFLPRCreated:
			return CodeAwaitingBitcoin
		case swapcore.StateFLPRPaid:
			return CodeBitcoinProcessing
		case swapcore.StateFLClaimCommited:
			return CodeBitcoinAccepted
		case swapcore.StateFLFailed:
			return CodeRefunded
		}
	case config.ToBtc:
		switch state {
		case swapcore.StateTBClaimed:
			return CodeSuccess
		case swapcore.StateTBCreated:
			return CodeAwaitingBitcoin
		case swapcore.StateTBCommited:
			return CodeBitcoinProcessing
		case swapcore.StateTBSending:
			return CodeTxSentSC
		case swapcore.StateTBSent:
			return CodeBitcoinAccepted
		case swapcore.StateTBRefunded:
			return CodeRefunded
		}
	case config.ToBtcLn:
		switch state {
		case swapcore.StateTLClaimed:
			return CodeSuccess
		case swapcore.StateTLCreated:
			return CodeAwaitingBitcoin
		case swapcore.StateTLCommited:
			return CodeBitcoinProcessing
		case swapcore.StateTLPaid:
			return CodeBitcoinAccepted
		case swapcore.StateTLRefundable, swapcore.StateTLRefunded:
			return CodeRefunded
		}
	case config.TrustedFromBtcLn:
		switch state {
		case swapcore.StateTrFinished:
			return CodeSuccess
		case swapcore.StateTrCreated:
			return CodeAwaitingBitcoin
		case swapcore.StateTrReceived, swapcore.StateTrCrediting:
			return CodeBitcoinAccepted
		case swapcore.StateTrRefunding, swapcore.StateTrRefunded:
			return CodeRefunded
		case swapcore.StateTrDoubleSpent:
			return CodeDoubleSpendBurned
		}
	}
	return CodeAwaitingBitcoin
}
