// Package discovery is the client-side mirror of IntermediaryDiscovery
// (spec.md §4.7): given a registry of candidate LPs, it fetches each one's
// signed `/info` envelope, verifies it, ranks candidates by total fee for a
// requested amount, and hands the caller a round-robin-with-abort-on-
// first-success quoting helper.
package discovery

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/lp-intermediary/swapd/internal/config"
	"github.com/lp-intermediary/swapd/internal/identity"
	"github.com/lp-intermediary/swapd/pkg/logging"
)

var serviceKeys = map[config.Direction]string{
	config.FromBtc:          "FROM_BTC",
	config.FromBtcLn:        "FROM_BTCLN",
	config.ToBtc:            "TO_BTC",
	config.ToBtcLn:          "TO_BTCLN",
	config.TrustedFromBtcLn: "TRUSTED_FROM_BTCLN",
}

// Registry lists candidate LP base URLs (e.g. a static list from config, or
// a fetch against a well-known registry service). Interface-only: spec.md
// §1 scopes the registry's own transport out.
type Registry interface {
	ListLPs(ctx context.Context) ([]string, error)
}

// StaticRegistry is a Registry backed by a fixed list, the simplest
// concrete implementation (a deployment-supplied allowlist of LP URLs).
type StaticRegistry struct {
	URLs []string
}

func (r StaticRegistry) ListLPs(ctx context.Context) ([]string, error) {
	return r.URLs, nil
}

type serviceInfo struct {
	SwapFeePPM  int64    `json:"swapFeePPM"`
	SwapBaseFee uint64   `json:"swapBaseFee"`
	Min         uint64   `json:"min"`
	Max         uint64   `json:"max"`
	Tokens      []string `json:"tokens"`
}

type infoEnvelope struct {
	Nonce    string                 `json:"nonce"`
	Services map[string]serviceInfo `json:"services"`
}

type infoResponse struct {
	Code int         `json:"code"`
	Data infoEnvData `json:"data"`
}

type infoEnvData struct {
	Address       string       `json:"address"`
	Envelope      infoEnvelope `json:"envelope"`
	Signature     string       `json:"signature"`
	SchnorrPubKey string       `json:"schnorr_pubkey"`
	SchnorrProof  string       `json:"schnorr_proof"`
}

// Candidate is one verified, rankable LP offer for a requested direction.
type Candidate struct {
	BaseURL string
	Address common.Address
	Service serviceInfo
}

// TotalFeeSats computes (base + amount*ppm/1e6), the ranking metric spec.md
// §4.7 names.
func (c Candidate) TotalFeeSats(amountSats *big.Int) *big.Int {
	fee := new(big.Int).Mul(amountSats, big.NewInt(c.Service.SwapFeePPM))
	fee.Div(fee, big.NewInt(1_000_000))
	return fee.Add(fee, new(big.Int).SetUint64(c.Service.SwapBaseFee))
}

// Client discovers and ranks LPs.
type Client struct {
	registry   Registry
	httpClient *http.Client
	log        *logging.Logger
}

// New builds a discovery Client against registry.
func New(registry Registry) *Client {
	return &Client{
		registry:   registry,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        logging.GetDefault().Component("discovery"),
	}
}

// Discover fetches and verifies every registry LP's `/info` envelope for
// dir, discarding any that fail signature verification or don't offer dir.
func (c *Client) Discover(ctx context.Context, dir config.Direction) ([]Candidate, error) {
	urls, err := c.registry.ListLPs(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery: list LPs: %w", err)
	}

	key, ok := serviceKeys[dir]
	if !ok {
		return nil, fmt.Errorf("discovery: unknown direction %s", dir)
	}

	var candidates []Candidate
	for _, url := range urls {
		requestID := uuid.New().String()
		cand, err := c.fetchAndVerify(ctx, url, key)
		if err != nil {
			c.log.Warn("LP info fetch/verify failed", "request_id", requestID, "url", url, "err", err)
			continue
		}
		if cand != nil {
			candidates = append(candidates, *cand)
		}
	}
	return candidates, nil
}

func (c *Client) fetchAndVerify(ctx context.Context, baseURL, serviceKey string) (*Candidate, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	nonceHex := hex.EncodeToString(nonce[:])

	body, _ := json.Marshal(map[string]string{"nonce": nonceHex})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/info", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if env.Data.Envelope.Nonce != nonceHex {
		return nil, fmt.Errorf("nonce mismatch (possible replay)")
	}

	schnorrPub, err := hex.DecodeString(env.Data.SchnorrPubKey)
	if err != nil {
		return nil, fmt.Errorf("decode schnorr pubkey: %w", err)
	}
	schnorrProof, err := hex.DecodeString(env.Data.SchnorrProof)
	if err != nil {
		return nil, fmt.Errorf("decode schnorr proof: %w", err)
	}
	if !identity.VerifyNonce(schnorrPub, nonce, schnorrProof) {
		return nil, fmt.Errorf("schnorr liveness proof invalid")
	}

	raw, err := json.Marshal(env.Data.Envelope)
	if err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(env.Data.Signature)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	address := common.HexToAddress(env.Data.Address)
	if !identity.VerifyEnvelope(address, raw, sig) {
		return nil, fmt.Errorf("envelope signature invalid")
	}

	svc, ok := env.Data.Envelope.Services[serviceKey]
	if !ok {
		return nil, nil
	}
	return &Candidate{BaseURL: baseURL, Address: address, Service: svc}, nil
}

// Rank sorts candidates ascending by total fee for amountSats, cheapest first.
func Rank(candidates []Candidate, amountSats *big.Int) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TotalFeeSats(amountSats).Cmp(sorted[j].TotalFeeSats(amountSats)) < 0
	})
	return sorted
}

// QuoteFromBest tries ranked candidates in order, calling attempt for each
// until one succeeds (round-robin with abort on first success, spec.md
// §4.7), returning the first success or the last error if all fail.
func QuoteFromBest(ctx context.Context, candidates []Candidate, amountSats *big.Int, attempt func(ctx context.Context, c Candidate) error) error {
	var lastErr error
	for _, c := range Rank(candidates, amountSats) {
		if err := attempt(ctx, c); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("discovery: no candidates available")
	}
	return lastErr
}
