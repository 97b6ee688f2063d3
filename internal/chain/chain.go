// Package chain defines identity and parameters for the chains the LP bridges:
// Bitcoin (mainnet/testnet) and one or more generic smart-contract ("SC") chains.
// All chain-specific values are registered here - no hardcoded values elsewhere.
package chain

import "github.com/btcsuite/btcd/chaincfg"

// Network represents mainnet or testnet, shared across BTC and SC chains.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// BTCParams returns the btcd network parameters for the given network.
func BTCParams(network Network) *chaincfg.Params {
	if network == Mainnet {
		return &chaincfg.MainNetParams
	}
	return &chaincfg.TestNet3Params
}

// Token describes a token the LP can swap against BTC on a given SC chain.
type Token struct {
	Symbol      string // e.g. "USDC", "WETH", native gas symbol
	ChainID     uint64 // SC chain identifier
	Address     string // token contract address, empty for native gas token
	Decimals    uint8
	MinSats     uint64 // minimum swap amount, in sats-equivalent, per §4.1
	MaxSats     uint64 // maximum swap amount, 0 = no cap
	IsNative    bool
}

// SCChain describes one generic smart-contract chain the LP has a SwapContract
// deployment and funded account on.
type SCChain struct {
	ChainID              uint64
	Name                 string
	Network              Network
	Confirmations        uint32 // confirmations required before a SC event is "safe"
	BlockTime            uint32 // seconds, used for expiry safety margins (P6)
	SwapContractAddress  string
}

var (
	scChains = make(map[uint64]*SCChain)
	tokens   = make(map[uint64]map[string]*Token)
)

// RegisterSCChain adds (or replaces) a smart-contract chain to the registry.
func RegisterSCChain(c *SCChain) {
	scChains[c.ChainID] = c
}

// GetSCChain returns the registered chain for chainID.
func GetSCChain(chainID uint64) (*SCChain, bool) {
	c, ok := scChains[chainID]
	return c, ok
}

// RegisterToken adds a token to the registry, keyed by chain ID and symbol.
func RegisterToken(t *Token) {
	if tokens[t.ChainID] == nil {
		tokens[t.ChainID] = make(map[string]*Token)
	}
	tokens[t.ChainID][t.Symbol] = t
}

// GetToken returns the registered token for (chainID, symbol).
func GetToken(chainID uint64, symbol string) (*Token, bool) {
	byChain, ok := tokens[chainID]
	if !ok {
		return nil, false
	}
	t, ok := byChain[symbol]
	return t, ok
}

// TokensForChain lists all tokens registered for chainID.
func TokensForChain(chainID uint64) []*Token {
	byChain := tokens[chainID]
	out := make([]*Token, 0, len(byChain))
	for _, t := range byChain {
		out = append(out, t)
	}
	return out
}
