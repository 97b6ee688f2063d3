// Package identity manages the LP's own signing key: the chain-native
// keypair used to sign `/info` envelopes (spec.md §4.7, §6) so that clients
// (and IntermediaryDiscovery) can verify responses actually came from the
// advertised address. Mnemonic generation/validation uses
// tyler-smith/go-bip39; encrypted-at-rest storage is Argon2id + AES-256-GCM,
// adapted from the teacher's internal/wallet seed-encryption code.
package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"unicode"
	"unicode/utf8"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/argon2"
)

// Service holds the LP's signing key and produces chain-native signatures
// over outward-facing envelopes.
type Service struct {
	key *ecdsa.PrivateKey
}

// NewFromMnemonic derives a deterministic signing key from a BIP-39
// mnemonic: the seed's first 32 bytes are folded into a valid secp256k1
// scalar (re-hashing on the rare out-of-range draw).
func NewFromMnemonic(mnemonic, passphrase string) (*Service, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("identity: invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)

	candidate := seed[:32]
	for i := 0; i < 256; i++ {
		key, err := crypto.ToECDSA(candidate)
		if err == nil {
			return &Service{key: key}, nil
		}
		candidate = crypto.Keccak256(candidate)
	}
	return nil, fmt.Errorf("identity: could not derive a valid signing key from mnemonic")
}

// GenerateMnemonic creates a fresh 24-word (256-bit entropy) mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("identity: generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// Address returns the signing key's chain-native address.
func (s *Service) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// PrivateKey returns the underlying signing key, for components (e.g. the
// EVM SwapContract adapter) that need to sign chain-native transactions
// rather than just envelopes.
func (s *Service) PrivateKey() *ecdsa.PrivateKey {
	return s.key
}

// SignEnvelope signs the JSON-encoded envelope spec.md §6's /info endpoint
// returns, over its keccak256 digest.
func (s *Service) SignEnvelope(envelope []byte) ([]byte, error) {
	digest := crypto.Keccak256(envelope)
	return crypto.Sign(digest, s.key)
}

// VerifyEnvelope checks a signature against a claimed address, used by
// IntermediaryDiscovery (spec.md §4.7) to validate an LP's /info response.
func VerifyEnvelope(address common.Address, envelope, signature []byte) bool {
	if len(signature) != 65 {
		return false
	}
	digest := crypto.Keccak256(envelope)
	pub, err := crypto.SigToPub(digest, signature)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == address
}

// schnorrKey re-derives a secp256k1 scalar from the ECDSA signing key's same
// private scalar, so both signature schemes speak for the one identity.
func (s *Service) schnorrKey() *secp256k1.PrivateKey {
	return secp256k1.PrivKeyFromBytes(s.key.D.Bytes())
}

// SchnorrPubKey returns the 33-byte compressed secp256k1 public key
// IntermediaryDiscovery uses to cheaply verify a liveness proof before
// doing the heavier envelope-signature check.
func (s *Service) SchnorrPubKey() []byte {
	return s.schnorrKey().PubKey().SerializeCompressed()
}

// SignNonce produces a BIP340 Schnorr proof of possession over a fresh
// 32-byte nonce, cheaper to verify than a full envelope signature and used
// by IntermediaryDiscovery (spec.md §4.7) as a quick liveness check before
// ranking an LP's quoted fees.
func (s *Service) SignNonce(nonce [32]byte) ([]byte, error) {
	sig, err := schnorr.Sign(s.schnorrKey(), nonce[:])
	if err != nil {
		return nil, fmt.Errorf("identity: schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// VerifyNonce checks a SignNonce proof against a claimed compressed
// secp256k1 public key.
func VerifyNonce(pubKeyBytes []byte, nonce [32]byte, sig []byte) bool {
	pub, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(nonce[:], pub)
}

// =============================================================================
// Encrypted-at-rest mnemonic storage (Argon2id + AES-256-GCM)
// =============================================================================

const (
	argon2Time        = 3
	argon2Memory      = 64 * 1024
	argon2Parallelism = 4
	argon2KeyLen      = 32
	argon2SaltLen     = 32
)

// EncryptedSeed is a mnemonic encrypted for on-disk storage.
type EncryptedSeed struct {
	Version     int    `json:"version"`
	Ciphertext  []byte `json:"ciphertext"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Time        uint32 `json:"time"`
	Memory      uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
}

// EncryptMnemonic encrypts a mnemonic using Argon2id + AES-256-GCM.
func EncryptMnemonic(mnemonic, password string) (*EncryptedSeed, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLen)
	defer SecureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(mnemonic), nil)
	return &EncryptedSeed{
		Version:     1,
		Ciphertext:  ciphertext,
		Salt:        salt,
		Nonce:       nonce,
		Time:        argon2Time,
		Memory:      argon2Memory,
		Parallelism: argon2Parallelism,
	}, nil
}

// DecryptMnemonic decrypts an encrypted seed.
func DecryptMnemonic(encrypted *EncryptedSeed, password string) (string, error) {
	t := encrypted.Time
	if t == 0 {
		t = argon2Time
	}
	mem := encrypted.Memory
	if mem == 0 {
		mem = argon2Memory
	}
	par := encrypted.Parallelism
	if par == 0 {
		par = argon2Parallelism
	}

	key := argon2.IDKey([]byte(password), encrypted.Salt, t, mem, par, argon2KeyLen)
	defer SecureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, encrypted.Nonce, encrypted.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt (wrong password?): %w", err)
	}
	defer SecureClear(plaintext)
	return string(plaintext), nil
}

// SaveEncryptedSeed saves an encrypted seed to a file.
func SaveEncryptedSeed(encrypted *EncryptedSeed, path string) error {
	if err := ValidateFilePath(path); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.Marshal(encrypted)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// LoadEncryptedSeed loads an encrypted seed from a file.
func LoadEncryptedSeed(path string) (*EncryptedSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var encrypted EncryptedSeed
	if err := json.Unmarshal(data, &encrypted); err != nil {
		return nil, fmt.Errorf("failed to unmarshal: %w", err)
	}
	return &encrypted, nil
}

// SecureClear overwrites a byte slice with zeros.
func SecureClear(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// ConstantTimeCompare compares two byte slices in constant time.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

const (
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

// ValidatePassword requires at least 8 characters and 3 of 4 character
// classes (upper, lower, number, special).
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}
	complexity := 0
	for _, ok := range []bool{hasUpper, hasLower, hasNumber, hasSpecial} {
		if ok {
			complexity++
		}
	}
	if complexity < 3 {
		return fmt.Errorf("password must contain at least 3 of: uppercase, lowercase, number, special character")
	}
	return nil
}

// ValidateFilePath rejects empty paths, suspicious traversal, and non-UTF8 paths.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	clean := filepath.Clean(path)
	if clean != path && !filepath.IsAbs(path) {
		return fmt.Errorf("suspicious path (potential traversal): %s", path)
	}
	if !utf8.ValidString(path) {
		return fmt.Errorf("path contains invalid UTF-8")
	}
	return nil
}
