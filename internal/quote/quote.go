// Package quote implements the QuoteEngine: spec.md §4.1's public contract
// `quote(direction, request)` -> `{swap_record, signed_auth, response_body}`
// or a typed failure. It does the PPM fee math, the price-staleness gate
// against the oracle, and prefetches price/liquidity/fee-rate data in
// parallel to hide latency before asking the SwapContract to sign an init
// authorization.
package quote

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/lp-intermediary/swapd/internal/chain"
	"github.com/lp-intermediary/swapd/internal/config"
	"github.com/lp-intermediary/swapd/internal/oracle"
	"github.com/lp-intermediary/swapd/internal/pluginbus"
	"github.com/lp-intermediary/swapd/internal/swapcontract"
	"github.com/lp-intermediary/swapd/pkg/helpers"
	"github.com/lp-intermediary/swapd/pkg/logging"
)

// FailCode enumerates the typed failures spec.md §4.1 names.
type FailCode string

const (
	AmountTooLow          FailCode = "AmountTooLow"
	AmountTooHigh         FailCode = "AmountTooHigh"
	TokenUnsupported      FailCode = "TokenUnsupported"
	InsufficientLiquidity FailCode = "InsufficientLiquidity"
	PriceStale            FailCode = "PriceStale"
	Aborted               FailCode = "Aborted"
	InternalSign          FailCode = "InternalSign"
)

// Fail is the QuoteEngine's typed failure result. Data carries user-facing
// context (e.g. adjusted min/max in token units for an out-of-bounds amount).
type Fail struct {
	Code    FailCode
	Message string
	Data    map[string]any
}

func (f *Fail) Error() string {
	return fmt.Sprintf("quote: %s: %s", f.Code, f.Message)
}

func fail(code FailCode, msg string, data map[string]any) *Fail {
	return &Fail{Code: code, Message: msg, Data: data}
}

// AmountSpec describes the user's requested amount, either as an exact
// output (send/receive a precise amount) or as an exact input to invert.
type AmountSpec struct {
	ExactIn    bool
	AmountSats *big.Int // the quantity the user fixed, in sats-equivalent
	Sending    bool     // true when the LP is the one sending (ApplyPPMFeeUp side)
}

// Request is the input to Quote: one (direction, chain, token) pair and the
// amount the user asked for.
type Request struct {
	Direction   config.Direction
	ChainID     uint64
	Token       string
	Amount      AmountSpec
	PaymentHash [32]byte
	Offerer     string
	Claimer     string
	SwapType    swapcontract.SwapType
	PayIn       bool
}

// Result is the successful output of Quote: the swap data to be committed
// on-chain, the LP's signed permission for the client to commit it, and the
// fee breakdown for the response body.
type Result struct {
	SwapData     swapcontract.SwapData
	Auth         *swapcontract.InitAuthorization
	AmountSats   *big.Int // net amount delivered to/from the user, sats-equivalent
	SwapFeeSats  *big.Int
	SwapFeeToken *big.Int // swap_fee, token base units (spec.md §3)
	TotalSats    *big.Int // what the user must send when Sending (ToBtc*) or will receive net otherwise (FromBtc*)
	PriceInfo    PriceInfo
	ExpiresAt    time.Time
}

// PriceInfo is the price snapshot a quote was computed against, persisted
// verbatim onto the swap record (spec.md §3).
type PriceInfo struct {
	BaseFeeSats                uint64
	FeePPM                     int64
	SwapPriceMicroSatsPerToken *big.Int
}

// LiquidityChecker reports how much of a token the LP can currently commit,
// used for the InsufficientLiquidity gate.
type LiquidityChecker interface {
	AvailableLiquidity(ctx context.Context, chainID uint64, token string) (*big.Int, error)
}

// FeeRateSource supplies the Bitcoin fee rate ToBtc quotes need to estimate
// on-chain send cost; it is optional (nil for directions that never send BTC).
type FeeRateSource interface {
	EstimateFee(ctx context.Context, confirmationTarget uint32) (satsPerVByte uint64, err error)
}

// Engine is the QuoteEngine.
type Engine struct {
	cfg        *config.Config
	oracle     *oracle.Oracle
	liquidity  LiquidityChecker
	feeRates   FeeRateSource
	contracts  map[uint64]swapcontract.SwapContract
	plugins    pluginbus.Bus
	log        *logging.Logger
}

// New creates a QuoteEngine. contracts maps SC chain ID to its SwapContract
// adapter; feeRates may be nil for directions that never estimate Bitcoin fees.
// Plugin hooks are a no-op until SetPluginBus is called.
func New(cfg *config.Config, ora *oracle.Oracle, liq LiquidityChecker, feeRates FeeRateSource, contracts map[uint64]swapcontract.SwapContract) *Engine {
	return &Engine{
		cfg:       cfg,
		oracle:    ora,
		liquidity: liq,
		feeRates:  feeRates,
		contracts: contracts,
		plugins:   pluginbus.Noop{},
		log:       logging.GetDefault().Component("quote"),
	}
}

// SetPluginBus replaces the Engine's PluginBus, spec.md §2.
func (e *Engine) SetPluginBus(bus pluginbus.Bus) {
	e.plugins = bus
}

// prefetch holds the parallel-fetched data a quote needs before it can
// compute fees and ask for a signature.
type prefetch struct {
	price       *big.Int // micro-sats per token unit
	liquidity   *big.Int
	satsPerVB   uint64
}

// Quote implements spec.md §4.1's quote(direction, request) contract.
func (e *Engine) Quote(ctx context.Context, req Request) (*Result, *Fail) {
	dc, ok := e.cfg.Lookup(req.Direction, req.ChainID, req.Token)
	if !ok {
		return nil, fail(TokenUnsupported, fmt.Sprintf("no configuration for %s/%d/%s", req.Direction, req.ChainID, req.Token), nil)
	}
	token, ok := chain.GetToken(req.ChainID, req.Token)
	if !ok {
		return nil, fail(TokenUnsupported, fmt.Sprintf("token %s not registered on chain %d", req.Token, req.ChainID), nil)
	}
	contract, ok := e.contracts[req.ChainID]
	if !ok {
		return nil, fail(TokenUnsupported, fmt.Sprintf("no SwapContract adapter for chain %d", req.ChainID), nil)
	}

	pf, pfFail := e.prefetchAll(ctx, dc, req)
	if pfFail != nil {
		return nil, pfFail
	}

	amountSats, totalSats, amtFail := e.computeAmounts(dc, req)
	if amtFail != nil {
		return nil, amtFail
	}

	// amountSats/totalSats are sats-equivalent; the SC chain's SwapData.Amount
	// is token base units (fromtbc.go's applyUnderpayOverpay scales the two
	// proportionally as distinct quantities), so every amount that ends up on
	// the escrow must be converted through the oracle price first.
	tokenAmount := oracle.SatsToTokens(amountSats, pf.price, token.Decimals)

	if liqFail := e.checkLiquidity(pf, req, tokenAmount); liqFail != nil {
		return nil, liqFail
	}

	if priceFail := e.checkPriceStaleness(dc, token, pf, amountSats, tokenAmount); priceFail != nil {
		return nil, priceFail
	}

	swapFeeSats := new(big.Int).Sub(totalSats, amountSats)
	if swapFeeSats.Sign() < 0 {
		swapFeeSats = new(big.Int).Sub(amountSats, totalSats)
	}
	swapFeeToken := oracle.SatsToTokens(swapFeeSats, pf.price, token.Decimals)

	expiresAt := time.Now().Add(dc.QuoteTimeout)
	swapData := swapcontract.SwapData{
		Offerer:         req.Offerer,
		Claimer:         req.Claimer,
		Token:           token.Address,
		Amount:          tokenAmount,
		Hash:            req.PaymentHash,
		Expiry:          uint64(expiresAt.Unix()),
		Confirmations:   dc.ConfirmationsRequired,
		SecurityDeposit: new(big.Int).Sub(helpers.ApplyPPMFeeUp(tokenAmount, dc.SecurityDepositPPM, big.NewInt(0)), tokenAmount),
		ClaimerBounty:   new(big.Int).Sub(helpers.ApplyPPMFeeUp(tokenAmount, dc.ClaimerBountyPPM, big.NewInt(0)), tokenAmount),
		Type:            req.SwapType,
		PayIn:           req.PayIn,
	}

	select {
	case <-ctx.Done():
		return nil, fail(Aborted, "context cancelled before signing", nil)
	default:
	}

	auth, err := contract.SignInitAuthorization(ctx, swapData)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fail(Aborted, "context cancelled during signing", nil)
		}
		e.log.Error("failed to sign init authorization", "payment_hash", fmt.Sprintf("%x", req.PaymentHash), "err", err)
		return nil, fail(InternalSign, err.Error(), nil)
	}

	e.plugins.OnQuoteCreated(ctx, pluginbus.QuoteEvent{
		Direction:   req.Direction,
		ChainID:     req.ChainID,
		Token:       req.Token,
		PaymentHash: req.PaymentHash,
		AmountSats:  amountSats,
		SwapFeeSats: swapFeeSats,
	})

	return &Result{
		SwapData:     swapData,
		Auth:         auth,
		AmountSats:   amountSats,
		SwapFeeSats:  swapFeeSats,
		SwapFeeToken: swapFeeToken,
		TotalSats:    totalSats,
		PriceInfo: PriceInfo{
			BaseFeeSats:                dc.Fee.BaseFeeSats,
			FeePPM:                     dc.Fee.PPM,
			SwapPriceMicroSatsPerToken: pf.price,
		},
		ExpiresAt: expiresAt,
	}, nil
}

// prefetchAll fires price/liquidity/fee-rate lookups concurrently, per
// spec.md §4.1's "pre-fetch ... in parallel ... to hide latency."
func (e *Engine) prefetchAll(ctx context.Context, dc config.DirectionConfig, req Request) (*prefetch, *Fail) {
	var (
		wg        sync.WaitGroup
		pf        prefetch
		priceErr, liqErr, feeErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		pf.price, priceErr = e.oracle.GetPrice(ctx, req.ChainID, req.Token)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if e.liquidity == nil {
			return
		}
		pf.liquidity, liqErr = e.liquidity.AvailableLiquidity(ctx, req.ChainID, req.Token)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if e.feeRates == nil {
			return
		}
		pf.satsPerVB, feeErr = e.feeRates.EstimateFee(ctx, dc.ConfirmationTarget)
	}()

	wg.Wait()

	if ctx.Err() != nil {
		return nil, fail(Aborted, "context cancelled during prefetch", nil)
	}
	if priceErr != nil {
		return nil, fail(PriceStale, fmt.Sprintf("price lookup failed: %v", priceErr), nil)
	}
	if liqErr != nil {
		return nil, fail(InsufficientLiquidity, fmt.Sprintf("liquidity lookup failed: %v", liqErr), nil)
	}
	if feeErr != nil {
		e.log.Warn("fee rate estimate failed, continuing without it", "err", feeErr)
	}
	return &pf, nil
}

// computeAmounts applies spec.md §4.1's PPM math. Sending == true means the
// LP ends up delivering amountSats and the user must send totalSats to cover
// it; Sending == false means amountSats is collected from the user and
// totalSats is what the user receives net of fees.
func (e *Engine) computeAmounts(dc config.DirectionConfig, req Request) (amountSats, totalSats *big.Int, f *Fail) {
	base := new(big.Int).SetUint64(dc.Fee.BaseFeeSats)
	minB := new(big.Int).SetUint64(dc.Bounds.MinSats)
	maxB := new(big.Int).SetUint64(dc.Bounds.MaxSats)

	if !req.Amount.ExactIn {
		amountSats = req.Amount.AmountSats
		if req.Amount.Sending {
			totalSats = helpers.ApplyPPMFeeUp(amountSats, dc.Fee.PPM, base)
		} else {
			totalSats = helpers.ApplyPPMFeeDown(amountSats, dc.Fee.PPM, base)
		}
	} else {
		totalSats = req.Amount.AmountSats
		if req.Amount.Sending {
			amountSats = helpers.InvertPPMFeeUp(totalSats, dc.Fee.PPM, base)
		} else {
			amountSats = helpers.InvertPPMFeeDown(totalSats, dc.Fee.PPM, base)
		}
		if !helpers.WithinSoftBand(amountSats, minB, maxB) {
			return nil, nil, e.outOfBoundsFail(dc, amountSats, minB, maxB)
		}
		return amountSats, totalSats, nil
	}

	if amountSats.Cmp(minB) < 0 {
		return nil, nil, e.outOfBoundsFail(dc, amountSats, minB, maxB)
	}
	if maxB.Sign() != 0 && amountSats.Cmp(maxB) > 0 {
		return nil, nil, e.outOfBoundsFail(dc, amountSats, minB, maxB)
	}
	return amountSats, totalSats, nil
}

func (e *Engine) outOfBoundsFail(dc config.DirectionConfig, amount, minB, maxB *big.Int) *Fail {
	data := map[string]any{"min": minB.String(), "max": maxB.String()}
	if amount.Cmp(minB) < 0 {
		return fail(AmountTooLow, "amount below configured minimum", data)
	}
	return fail(AmountTooHigh, "amount above configured maximum", data)
}

func (e *Engine) checkLiquidity(pf *prefetch, req Request, tokenAmount *big.Int) *Fail {
	if e.liquidity == nil || pf.liquidity == nil {
		return nil
	}
	if pf.liquidity.Cmp(tokenAmount) < 0 {
		return fail(InsufficientLiquidity, "insufficient liquidity for requested amount", map[string]any{
			"available": pf.liquidity.String(),
		})
	}
	return nil
}

// checkPriceStaleness recomputes the sats value implied by this quote's own
// token amount at the oracle's live price and compares it back against
// amountSats, rejecting if the two diverge by more than MaxAllowedFeeDiffPPM
// (spec.md §4.1, "compute swap_price_μsat_per_token and compare to the
// oracle's real_price"). Both sides of the comparison are sats, unlike the
// token-unit swapData.Amount itself, so TokensToSats is the correct
// direction here (amountSats must never be fed to it directly).
func (e *Engine) checkPriceStaleness(dc config.DirectionConfig, token *chain.Token, pf *prefetch, amountSats, tokenAmount *big.Int) *Fail {
	if tokenAmount.Sign() == 0 {
		return nil
	}
	impliedSats := oracle.TokensToSats(tokenAmount, pf.price, token.Decimals)
	if impliedSats.Sign() == 0 {
		return nil
	}
	diff := helpers.PPMDiff(impliedSats, amountSats)
	if diff > dc.MaxAllowedFeeDiffPPM {
		return fail(PriceStale, "quoted price diverges from oracle price beyond allowed tolerance", map[string]any{
			"diff_ppm": diff,
			"max_ppm":  dc.MaxAllowedFeeDiffPPM,
		})
	}
	return nil
}
