package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// CoinGeckoProvider is a Provider backed by a CoinGecko-compatible simple-price
// HTTP API, built on the teacher's HTTP-GET-then-JSON-decode pattern
// (internal/backend.MempoolBackend.get) since neither the teacher nor the
// rest of the pack ships a price-feed client to adapt directly.
type CoinGeckoProvider struct {
	baseURL    string
	httpClient *http.Client
	// coinIDs maps a token symbol to the provider's coin id (e.g. "ETH" -> "ethereum").
	coinIDs map[string]string
}

// NewCoinGeckoProvider builds a provider against baseURL (e.g.
// "https://api.coingecko.com/api/v3"), resolving token symbols to coin ids
// via coinIDs.
func NewCoinGeckoProvider(baseURL string, coinIDs map[string]string) *CoinGeckoProvider {
	return &CoinGeckoProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		coinIDs:    coinIDs,
	}
}

func (c *CoinGeckoProvider) Name() string { return "coingecko" }

// GetPrice fetches the token's BTC price and converts it to micro-sats per
// whole token.
func (c *CoinGeckoProvider) GetPrice(ctx context.Context, chainID uint64, token string) (*big.Int, error) {
	coinID, ok := c.coinIDs[strings.ToUpper(token)]
	if !ok {
		return nil, fmt.Errorf("oracle: coingecko: unmapped token %s", token)
	}

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=btc", c.baseURL, coinID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle: coingecko: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle: coingecko: unexpected status %d", resp.StatusCode)
	}

	var result map[string]struct {
		BTC float64 `json:"btc"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("oracle: coingecko: decode: %w", err)
	}

	entry, ok := result[coinID]
	if !ok || entry.BTC <= 0 {
		return nil, fmt.Errorf("oracle: coingecko: no price for %s", coinID)
	}

	// entry.BTC is BTC per one whole token; convert to micro-sats per whole
	// token: BTC_per_token * 1e8 * 1e6. SatsToTokens/TokensToSats apply the
	// token's decimals.
	return new(big.Int).SetInt64(int64(entry.BTC * 1e8 * 1e6)), nil
}

var _ Provider = (*CoinGeckoProvider)(nil)
