// Package main provides swapd - a cross-chain atomic-swap LP intermediary
// daemon, bridging Bitcoin (on-chain and Lightning) and EVM-family smart
// contract chains.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/lp-intermediary/swapd/internal/api"
	"github.com/lp-intermediary/swapd/internal/btcwatcher"
	"github.com/lp-intermediary/swapd/internal/chain"
	"github.com/lp-intermediary/swapd/internal/config"
	"github.com/lp-intermediary/swapd/internal/identity"
	"github.com/lp-intermediary/swapd/internal/lightning"
	"github.com/lp-intermediary/swapd/internal/liquidity"
	"github.com/lp-intermediary/swapd/internal/oracle"
	"github.com/lp-intermediary/swapd/internal/quote"
	"github.com/lp-intermediary/swapd/internal/storage"
	"github.com/lp-intermediary/swapd/internal/swapcontract"
	"github.com/lp-intermediary/swapd/internal/swapcore"
	"github.com/lp-intermediary/swapd/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir      = flag.String("data-dir", "~/.swapd", "Data directory")
		configFile   = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		listenAddr   = flag.String("listen", "", "REST API listen address, overrides config")
		testnet      = flag.Bool("testnet", false, "Run against testnet Bitcoin and SC chains")
		explorerURL  = flag.String("btc-explorer", "https://mempool.space/api", "Primary Esplora-family API base URL")
		explorerURL2 = flag.String("btc-explorer-fallback", "https://blockstream.info/api", "Fallback Esplora-family API base URL")
		passwordEnv  = flag.String("password-env", "SWAPD_SEED_PASSWORD", "Env var holding the identity seed's encryption password")
		logLevel     = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion  = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("swapd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	effectiveDataDir := *dataDir
	if *testnet {
		effectiveDataDir = filepath.Join(*dataDir, "testnet")
	}

	path := *configFile
	if path == "" {
		path = filepath.Join(effectiveDataDir, "config.yaml")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		log.Warn("no config file found, using defaults", "path", path, "err", err)
		cfg = config.DefaultConfig()
	}
	cfg.DataDir = effectiveDataDir
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(&storage.Config{DataDir: cfg.DataDir})
	if err != nil {
		log.Fatal("failed to initialize storage", "err", err)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DataDir)

	id, err := loadOrCreateIdentity(effectiveDataDir, *passwordEnv, log)
	if err != nil {
		log.Fatal("failed to initialize identity", "err", err)
	}
	log.Info("identity loaded", "address", id.Address().Hex())

	network := chain.Mainnet
	if *testnet {
		network = chain.Testnet
	}
	btcParams := chain.BTCParams(network)

	btcRPC := btcwatcher.NewFallbackRPC(map[string]btcwatcher.BitcoinRPC{
		"primary":  btcwatcher.NewEsploraRPC(*explorerURL),
		"fallback": btcwatcher.NewEsploraRPC(*explorerURL2),
	}, []string{"primary", "fallback"})
	watcher := btcwatcher.New(btcRPC)

	priceOracle := oracle.New(30*time.Second, oracle.NewCoinGeckoProvider(
		"https://api.coingecko.com/api/v3",
		map[string]string{"ETH": "ethereum", "USDC": "usd-coin", "USDT": "tether"},
	))

	contracts := make(map[uint64]swapcontract.SwapContract)
	ethClients := make(map[uint64]*ethclient.Client)
	for _, sc := range scChainsForNetwork(network) {
		adapter, err := swapcontract.NewEVMAdapter(ctx, sc.rpcURL, common.HexToAddress(sc.contractAddr), id.PrivateKey(), sc.confirmations)
		if err != nil {
			log.Warn("skipping SC chain, dial failed", "chain_id", sc.chainID, "err", err)
			continue
		}
		contracts[sc.chainID] = adapter
		client, err := ethclient.DialContext(ctx, sc.rpcURL)
		if err == nil {
			ethClients[sc.chainID] = client
		}
		chain.RegisterSCChain(&chain.SCChain{
			ChainID:             sc.chainID,
			Name:                sc.name,
			Network:             network,
			Confirmations:       uint32(sc.confirmations),
			SwapContractAddress: sc.contractAddr,
		})
	}

	liquidityChecker, err := liquidity.NewEVMChecker(ethClients, id.Address())
	if err != nil {
		log.Fatal("failed to build liquidity checker", "err", err)
	}
	feeRates := btcwatcher.NewFeeRateAdapter(btcRPC)

	quoteEngine := quote.New(cfg, priceOracle, liquidityChecker, feeRates, contracts)

	// No Lightning node implementation ships here (spec Non-goal: implementing
	// a Lightning node is out of scope); directions needing it simply won't
	// progress past the awaiting-payment state until lightning.Node is wired.
	var lnNode lightning.Node

	depositKey, err := loadOrCreateDepositKey(effectiveDataDir, log)
	if err != nil {
		log.Fatal("failed to load Bitcoin deposit key", "err", err)
	}

	wallet := &swapcore.BTCWallet{
		FundingAddress: "",
		ChangeAddress:  "",
		PrivKey:        depositKey,
		Params:         btcParams,
	}

	core := swapcore.New(cfg, store, quoteEngine, contracts, watcher, lnNode, wallet)
	go core.Run(ctx)
	log.Info("swap core started")

	server := api.New(cfg, quoteEngine, store, id, watcher, lnNode, depositKey, btcParams)
	if err := server.Start(cfg.ListenAddr); err != nil {
		log.Fatal("failed to start api server", "err", err)
	}
	log.Infof("swapd %s listening on %s", version, cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	if err := server.Stop(); err != nil {
		log.Error("api server shutdown error", "err", err)
	}
	for _, c := range ethClients {
		c.Close()
	}
	for _, contract := range contracts {
		if adapter, ok := contract.(*swapcontract.EVMAdapter); ok {
			adapter.Close()
		}
	}
}

type scChainConfig struct {
	chainID       uint64
	name          string
	rpcURL        string
	contractAddr  string
	confirmations uint64
}

// scChainsForNetwork is a placeholder registry of SC chains this LP quotes
// against; a production deployment would load this from cfg/config.yaml
// rather than hardcoding it.
func scChainsForNetwork(network chain.Network) []scChainConfig {
	if network == chain.Testnet {
		return []scChainConfig{
			{chainID: 11155111, name: "sepolia", rpcURL: "https://ethereum-sepolia-rpc.publicnode.com", contractAddr: "0x0000000000000000000000000000000000000000", confirmations: 3},
		}
	}
	return []scChainConfig{
		{chainID: 1, name: "ethereum", rpcURL: "https://eth.llamarpc.com", contractAddr: "0x0000000000000000000000000000000000000000", confirmations: 12},
	}
}

func loadOrCreateIdentity(dataDir, passwordEnv string, log *logging.Logger) (*identity.Service, error) {
	password := os.Getenv(passwordEnv)
	if password == "" {
		return nil, fmt.Errorf("identity: %s is not set", passwordEnv)
	}

	seedPath := filepath.Join(dataDir, "identity.seed.json")
	if enc, err := identity.LoadEncryptedSeed(seedPath); err == nil {
		mnemonic, err := identity.DecryptMnemonic(enc, password)
		if err != nil {
			return nil, fmt.Errorf("identity: decrypt seed: %w", err)
		}
		defer identity.SecureClear([]byte(mnemonic))
		return identity.NewFromMnemonic(mnemonic, "")
	}

	log.Info("no identity seed found, generating a new one", "path", seedPath)
	mnemonic, err := identity.GenerateMnemonic()
	if err != nil {
		return nil, err
	}
	enc, err := identity.EncryptMnemonic(mnemonic, password)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, err
	}
	if err := identity.SaveEncryptedSeed(enc, seedPath); err != nil {
		return nil, err
	}
	return identity.NewFromMnemonic(mnemonic, "")
}

func loadOrCreateDepositKey(dataDir string, log *logging.Logger) (*btcec.PrivateKey, error) {
	keyPath := filepath.Join(dataDir, "btc-deposit.key")
	if raw, err := os.ReadFile(keyPath); err == nil && len(raw) == 32 {
		priv, _ := btcec.PrivKeyFromBytes(raw)
		return priv, nil
	}

	log.Info("no Bitcoin deposit key found, generating a new one", "path", keyPath)
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, priv.Serialize(), 0o600); err != nil {
		return nil, err
	}
	return priv, nil
}
