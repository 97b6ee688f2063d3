package btcwatcher

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lp-intermediary/swapd/pkg/logging"
)

// EsploraRPC implements BitcoinRPC against an Esplora-family REST API
// (mempool.space, blockstream.info, and self-hosted forks all share this
// shape), grounded on the teacher's internal/backend.MempoolBackend.
type EsploraRPC struct {
	baseURL    string
	httpClient *http.Client
	log        *logging.Logger
}

// NewEsploraRPC builds a client against baseURL (e.g. "https://mempool.space/api").
func NewEsploraRPC(baseURL string) *EsploraRPC {
	return &EsploraRPC{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logging.GetDefault().Component("btcwatcher.esplora"),
	}
}

func (e *EsploraRPC) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrTxNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("esplora: unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// GetAddressUTXOs returns unspent outputs for a watched address, enriching
// each with confirmations computed against the current tip.
func (e *EsploraRPC) GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	var raw []struct {
		TxID   string `json:"txid"`
		Vout   uint32 `json:"vout"`
		Status struct {
			Confirmed   bool  `json:"confirmed"`
			BlockHeight int64 `json:"block_height"`
		} `json:"status"`
		Value uint64 `json:"value"`
	}
	if err := e.get(ctx, "/address/"+address+"/utxo", &raw); err != nil {
		return nil, err
	}

	tip, err := e.GetBlockHeight(ctx)
	if err != nil {
		tip = 0
	}

	utxos := make([]UTXO, 0, len(raw))
	for _, u := range raw {
		var confirmations int64
		if u.Status.Confirmed && u.Status.BlockHeight > 0 && tip > 0 {
			confirmations = tip - u.Status.BlockHeight + 1
		} else if u.Status.Confirmed {
			confirmations = 1
		}
		script, err := e.scriptPubKeyForOutput(ctx, u.TxID, u.Vout)
		if err != nil {
			e.log.Warn("fetch scriptPubKey failed", "txid", u.TxID, "err", err)
		}
		utxos = append(utxos, UTXO{
			TxID:          u.TxID,
			Vout:          u.Vout,
			ValueSats:     u.Value,
			ScriptPubKey:  script,
			Confirmations: confirmations,
			BlockHeight:   u.Status.BlockHeight,
		})
	}
	return utxos, nil
}

func (e *EsploraRPC) scriptPubKeyForOutput(ctx context.Context, txID string, vout uint32) ([]byte, error) {
	var tx struct {
		Vout []struct {
			ScriptPubKey string `json:"scriptpubkey"`
		} `json:"vout"`
	}
	if err := e.get(ctx, "/tx/"+txID, &tx); err != nil {
		return nil, err
	}
	if int(vout) >= len(tx.Vout) {
		return nil, fmt.Errorf("esplora: vout %d out of range for %s", vout, txID)
	}
	return hex.DecodeString(tx.Vout[vout].ScriptPubKey)
}

// GetMempoolTxIDs lists unconfirmed transaction IDs touching address, used by
// the double-spend watchdog to detect a replacement before it confirms.
func (e *EsploraRPC) GetMempoolTxIDs(ctx context.Context, address string) ([]string, error) {
	var txs []struct {
		TxID   string `json:"txid"`
		Status struct {
			Confirmed bool `json:"confirmed"`
		} `json:"status"`
	}
	if err := e.get(ctx, "/address/"+address+"/txs/mempool", &txs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(txs))
	for _, t := range txs {
		if !t.Status.Confirmed {
			ids = append(ids, t.TxID)
		}
	}
	return ids, nil
}

// GetRawTransaction fetches the raw transaction plus its SPV merkle-inclusion
// proof, per spec.md §4.2/§4.4's claim-submission path.
func (e *EsploraRPC) GetRawTransaction(ctx context.Context, txID string) (*RawTx, error) {
	rawHex, err := e.getRawHex(ctx, txID)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("esplora: decode raw tx: %w", err)
	}

	var status struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHeight int64  `json:"block_height"`
		BlockHash   string `json:"block_hash"`
	}
	if err := e.get(ctx, "/tx/"+txID+"/status", &status); err != nil {
		return nil, err
	}
	if !status.Confirmed {
		return &RawTx{TxID: txID, Raw: raw}, nil
	}

	var proof struct {
		BlockHeight int64    `json:"block_height"`
		Merkle      []string `json:"merkle"`
		Pos         uint32   `json:"pos"`
	}
	if err := e.get(ctx, "/tx/"+txID+"/merkle-proof", &proof); err != nil {
		return nil, fmt.Errorf("esplora: merkle proof: %w", err)
	}

	merkle := make([][]byte, len(proof.Merkle))
	for i, h := range proof.Merkle {
		b, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("esplora: decode merkle hash %d: %w", i, err)
		}
		merkle[i] = b
	}

	return &RawTx{
		TxID:        txID,
		Raw:         raw,
		BlockHash:   status.BlockHash,
		BlockHeight: status.BlockHeight,
		MerkleProof: merkle,
		MerklePos:   proof.Pos,
	}, nil
}

func (e *EsploraRPC) getRawHex(ctx context.Context, txID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/tx/"+txID+"/hex", nil)
	if err != nil {
		return "", err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrTxNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("esplora: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// BroadcastTransaction submits rawTxHex to the network.
func (e *EsploraRPC) BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/tx", strings.NewReader(rawTxHex))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("esplora: broadcast: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("esplora: broadcast rejected: %s", strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

// GetBlockHeight returns the current chain tip height.
func (e *EsploraRPC) GetBlockHeight(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/blocks/tip/height", nil)
	if err != nil {
		return 0, err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("esplora: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	var height int64
	if err := json.Unmarshal(body, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// EstimateFee returns per-confirmation-target sat/vByte fee rates.
func (e *EsploraRPC) EstimateFee(ctx context.Context) (*FeeEstimate, error) {
	var result map[string]float64
	if err := e.get(ctx, "/v1/fees/recommended", &result); err != nil {
		return nil, err
	}
	return &FeeEstimate{
		SatsPerVByte: map[uint32]uint64{
			1:   uint64(result["fastestFee"]),
			3:   uint64(result["halfHourFee"]),
			6:   uint64(result["hourFee"]),
			144: uint64(result["economyFee"]),
		},
	}, nil
}

var _ BitcoinRPC = (*EsploraRPC)(nil)
