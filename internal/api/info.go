package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/lp-intermediary/swapd/internal/config"
)

// infoRequest is POST /info's body, spec.md §6: a fresh 32-byte nonce the
// caller supplies so a replayed envelope can't be passed off as fresh.
type infoRequest struct {
	Nonce string `json:"nonce"`
}

// serviceInfo is one entry of the signed envelope's "services" map,
// spec.md §6.
type serviceInfo struct {
	SwapFeePPM  int64    `json:"swapFeePPM"`
	SwapBaseFee uint64   `json:"swapBaseFee"`
	Min         uint64   `json:"min"`
	Max         uint64   `json:"max"`
	Tokens      []string `json:"tokens"`
}

// infoEnvelope is the JSON body signed by the LP's identity key, spec.md §6:
// `{nonce, services: {FROM_BTC|FROM_BTCLN|TO_BTC|TO_BTCLN|TRUSTED_FROM_BTCLN: {...}}}`.
type infoEnvelope struct {
	Nonce    string                 `json:"nonce"`
	Services map[string]serviceInfo `json:"services"`
}

var serviceKeys = map[config.Direction]string{
	config.FromBtc:          "FROM_BTC",
	config.FromBtcLn:        "FROM_BTCLN",
	config.ToBtc:            "TO_BTC",
	config.ToBtcLn:          "TO_BTCLN",
	config.TrustedFromBtcLn: "TRUSTED_FROM_BTCLN",
}

// handleInfo implements POST /info, spec.md §6 and §4.7's discovery contract:
// echo the caller's nonce back inside a signed envelope describing every
// configured direction's fee schedule and bounds, so IntermediaryDiscovery
// can rank this LP against others without a prior relationship.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	var req infoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	nonce, err := hex.DecodeString(req.Nonce)
	if err != nil || len(nonce) != 32 {
		writeInvalidBody(w)
		return
	}

	services := make(map[string]serviceInfo)
	for dir, dcs := range s.cfg.Directions {
		key, ok := serviceKeys[dir]
		if !ok || len(dcs) == 0 {
			continue
		}
		tokens := make([]string, 0, len(dcs))
		dc := dcs[0]
		for _, c := range dcs {
			tokens = append(tokens, c.TokenSymbol)
		}
		services[key] = serviceInfo{
			SwapFeePPM:  dc.Fee.PPM,
			SwapBaseFee: dc.Fee.BaseFeeSats,
			Min:         dc.Bounds.MinSats,
			Max:         dc.Bounds.MaxSats,
			Tokens:      tokens,
		}
	}

	env := infoEnvelope{Nonce: req.Nonce, Services: services}
	raw, err := json.Marshal(env)
	if err != nil {
		writeEnvelope(w, http.StatusOK, Envelope{Code: CodeAborted, Msg: "internal error"})
		return
	}

	sig, err := s.identity.SignEnvelope(raw)
	if err != nil {
		s.log.Error("sign info envelope failed", "err", err)
		writeEnvelope(w, http.StatusOK, Envelope{Code: CodeAborted, Msg: "internal error"})
		return
	}

	var nonceArr [32]byte
	copy(nonceArr[:], nonce)
	schnorrSig, err := s.identity.SignNonce(nonceArr)
	if err != nil {
		s.log.Error("sign nonce failed", "err", err)
		writeEnvelope(w, http.StatusOK, Envelope{Code: CodeAborted, Msg: "internal error"})
		return
	}

	writeSuccess(w, map[string]any{
		"address":         s.identity.Address().Hex(),
		"envelope":        env,
		"signature":       hex.EncodeToString(sig),
		"schnorr_pubkey":  hex.EncodeToString(s.identity.SchnorrPubKey()),
		"schnorr_proof":   hex.EncodeToString(schnorrSig),
	})
}
