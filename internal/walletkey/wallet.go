// Package walletkey derives per-payment Ethereum keypairs from a single
// HD seed and encrypts private key material at rest.
package walletkey

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// coinTypeETH is BIP-44's registered coin type for Ethereum.
const coinTypeETH = 60

// HDWallet derives m/44'/60'/0'/0/{index} keys from a single mnemonic.
// It holds no per-derivation state; callers track DerivationIndex in the
// store so the same index is never issued to two payments.
type HDWallet struct {
	masterKey *hdkeychain.ExtendedKey
}

func New(mnemonic string) (*HDWallet, error) {
	if mnemonic == "" {
		return nil, errors.New("walletkey: mnemonic must not be empty")
	}
	seed := bip39.NewSeed(mnemonic, "")
	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("walletkey: derive master key: %w", err)
	}
	return &HDWallet{masterKey: masterKey}, nil
}

// Derived is one leaf of the key tree: the address to watch and the
// private key needed to sign a sweep transaction from it.
type Derived struct {
	Address       string
	PrivateKeyHex string
}

// Derive returns the Ethereum address and private key at
// m/44'/60'/0'/0/{index}. Index must never repeat across live addresses.
func (w *HDWallet) Derive(index uint32) (*Derived, error) {
	path := []uint32{
		44 + hdkeychain.HardenedKeyStart,
		coinTypeETH + hdkeychain.HardenedKeyStart,
		0 + hdkeychain.HardenedKeyStart,
		0,
		index,
	}
	key := w.masterKey
	var err error
	for _, p := range path {
		key, err = key.Derive(p)
		if err != nil {
			return nil, fmt.Errorf("walletkey: derive index %d: %w", index, err)
		}
	}
	privKey, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("walletkey: ec priv key: %w", err)
	}
	ecdsaKey := privKey.ToECDSA()
	address := crypto.PubkeyToAddress(ecdsaKey.PublicKey).Hex()
	return &Derived{
		Address:       address,
		PrivateKeyHex: fmt.Sprintf("%x", privKey.Serialize()),
	}, nil
}

// Seal encrypts private key hex with AES-GCM under the configured
// encryption key so only ciphertext ever reaches the store.
func Seal(encryptionKey [32]byte, plaintext string) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Open decrypts ciphertext produced by Seal.
func Open(encryptionKey [32]byte, ciphertext []byte) (string, error) {
	block, err := aes.NewCipher(encryptionKey[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return "", errors.New("walletkey: ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("walletkey: decrypt: %w", err)
	}
	return string(plaintext), nil
}
