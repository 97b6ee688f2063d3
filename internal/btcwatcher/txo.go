package btcwatcher

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// TXOHash computes sha256(LE64(value) || scriptPubKey), the content address
// for a specific output used to identify a FromBtc deposit (spec.md §3, §GLOSSARY).
func TXOHash(valueSats uint64, scriptPubKey []byte) [32]byte {
	buf := make([]byte, 8+len(scriptPubKey))
	binary.LittleEndian.PutUint64(buf[:8], valueSats)
	copy(buf[8:], scriptPubKey)
	return sha256.Sum256(buf)
}

// ScriptPubKeyForAddress returns the scriptPubKey for a Bitcoin address,
// used both to compute TXOHash and to bind a ToBtc hash per spec.md §4.4:
// swap_data.hash == sha256(scriptPubKey || LE64(amount) || nonce).
func ScriptPubKeyForAddress(address string, params *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}

// ToBtcHash computes the hash binding a ToBtc swap to a specific output,
// per spec.md §4.4.
func ToBtcHash(scriptPubKey []byte, amountSats uint64, nonce uint64) [32]byte {
	buf := make([]byte, len(scriptPubKey)+8+8)
	copy(buf, scriptPubKey)
	binary.LittleEndian.PutUint64(buf[len(scriptPubKey):len(scriptPubKey)+8], amountSats)
	binary.LittleEndian.PutUint64(buf[len(scriptPubKey)+8:], nonce)
	return sha256.Sum256(buf)
}
