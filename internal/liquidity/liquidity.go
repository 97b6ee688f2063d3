// Package liquidity answers the QuoteEngine's InsufficientLiquidity gate
// (spec.md §4.1) by reading the LP's own on-chain balance for the quoted
// token, built on go-ethereum's ethclient the way internal/swapcontract's
// EVMAdapter is.
package liquidity

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/lp-intermediary/swapd/internal/chain"
)

const erc20BalanceABI = `[{"type":"function","name":"balanceOf","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}]`

// EVMChecker implements quote.LiquidityChecker by querying the LP's own
// address's balance per SC chain: native balance for native gas tokens,
// ERC20 balanceOf otherwise.
type EVMChecker struct {
	clients   map[uint64]*ethclient.Client
	lpAddress common.Address
	erc20ABI  abi.ABI
}

// NewEVMChecker builds a checker against one ethclient.Client per chain ID,
// reporting liquidity held at lpAddress.
func NewEVMChecker(clients map[uint64]*ethclient.Client, lpAddress common.Address) (*EVMChecker, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20BalanceABI))
	if err != nil {
		return nil, fmt.Errorf("liquidity: parse abi: %w", err)
	}
	return &EVMChecker{clients: clients, lpAddress: lpAddress, erc20ABI: parsed}, nil
}

// AvailableLiquidity returns the LP's balance of token on chainID, in the
// token's base units.
func (c *EVMChecker) AvailableLiquidity(ctx context.Context, chainID uint64, token string) (*big.Int, error) {
	client, ok := c.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("liquidity: no client for chain %d", chainID)
	}
	tok, ok := chain.GetToken(chainID, token)
	if !ok {
		return nil, fmt.Errorf("liquidity: unknown token %s on chain %d", token, chainID)
	}

	if tok.IsNative || tok.Address == "" {
		return client.BalanceAt(ctx, c.lpAddress, nil)
	}

	tokenAddr := common.HexToAddress(tok.Address)
	data, err := c.erc20ABI.Pack("balanceOf", c.lpAddress)
	if err != nil {
		return nil, fmt.Errorf("liquidity: pack balanceOf: %w", err)
	}
	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("liquidity: call balanceOf: %w", err)
	}

	var out []interface{}
	out, err = c.erc20ABI.Unpack("balanceOf", raw)
	if err != nil || len(out) != 1 {
		return nil, fmt.Errorf("liquidity: unpack balanceOf: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("liquidity: unexpected balanceOf return type")
	}
	return balance, nil
}
