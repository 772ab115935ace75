package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wopay.dev/internal/config"
	"wopay.dev/internal/domain"
	"wopay.dev/internal/walletkey"
)

func TestSweeper_SweepsAddressAboveThreshold(t *testing.T) {
	store := newFakeStore()
	chain := newFakeChain()
	chain.balanceByAddress["0xfunded"] = decimal.NewFromFloat(1.0)
	chain.gasCost = decimal.NewFromFloat(0.01)

	payment, err := store.CreatePayment(context.Background(), domain.CreatePaymentRequest{
		MerchantID: 1, OrderID: "order-sweep", Currency: domain.CurrencyETH,
		Amount: decimal.NewFromFloat(1.0),
	}, &domain.PaymentAddress{Address: "0xfunded", EncryptedPrivateKey: sealedTestKey(t)})
	require.NoError(t, err)
	require.NoError(t, store.TransitionPayment(context.Background(), payment.ID, domain.PaymentPending, domain.PaymentConfirmed, 1, "0xtx"))

	store.walletCfg = &domain.WalletConfig{
		AutoCollectionEnabled: true,
		CollectionThreshold:   decimal.NewFromFloat(0.1),
		MasterAddress:         "0xmaster",
	}

	s := NewSweeper(&config.Config{}, store, chain, testEncKey(), nil)
	require.NoError(t, s.cycle(context.Background()))

	var addr *domain.PaymentAddress
	for _, a := range store.addrs {
		addr = a
	}
	require.NotNil(t, addr)
	assert.True(t, addr.SweepRequested)
}

func TestSweeper_SkipsWhenBelowThreshold(t *testing.T) {
	store := newFakeStore()
	chain := newFakeChain()
	chain.balanceByAddress["0xsmall"] = decimal.NewFromFloat(0.001)

	_, err := store.CreatePayment(context.Background(), domain.CreatePaymentRequest{
		MerchantID: 1, OrderID: "order-small", Currency: domain.CurrencyETH,
		Amount: decimal.NewFromFloat(1.0),
	}, &domain.PaymentAddress{Address: "0xsmall", EncryptedPrivateKey: sealedTestKey(t)})
	require.NoError(t, err)

	store.walletCfg = &domain.WalletConfig{
		AutoCollectionEnabled: true,
		CollectionThreshold:   decimal.NewFromFloat(0.1),
		MasterAddress:         "0xmaster",
	}

	s := NewSweeper(&config.Config{}, store, chain, testEncKey(), nil)
	require.NoError(t, s.cycle(context.Background()))

	for _, a := range store.addrs {
		assert.False(t, a.SweepRequested)
	}
}

func TestSweeper_DisabledSkipsCycleEntirely(t *testing.T) {
	store := newFakeStore()
	chain := newFakeChain()
	store.walletCfg = &domain.WalletConfig{AutoCollectionEnabled: false}

	s := NewSweeper(&config.Config{}, store, chain, testEncKey(), nil)
	require.NoError(t, s.cycle(context.Background()))
}

func TestSweeper_ConfirmTrackedConfirmsAfterThreshold(t *testing.T) {
	store := newFakeStore()
	chain := newFakeChain()
	chain.height = 1000
	chain.confirmationsByTx["0xsweeptx"] = 20
	chain.statusByTx["0xsweeptx"] = domain.TxSuccessful

	_, err := store.CreatePayment(context.Background(), domain.CreatePaymentRequest{
		MerchantID: 1, OrderID: "order-confirm", Currency: domain.CurrencyETH,
		Amount: decimal.NewFromFloat(1.0),
	}, &domain.PaymentAddress{Address: "0xconfirmaddr", EncryptedPrivateKey: sealedTestKey(t)})
	require.NoError(t, err)
	var addrID uint64
	for id, a := range store.addrs {
		if a.Address == "0xconfirmaddr" {
			addrID = id
			a.SweepRequested = true
		}
	}
	require.NoError(t, store.RecordSweep(context.Background(), &domain.SweepTransaction{
		AddressID: addrID, TxHash: "0xsweeptx", Status: "broadcast",
	}, addrID))

	s := NewSweeper(&config.Config{RequiredConfirmations: 12}, store, chain, testEncKey(), nil)
	require.NoError(t, s.confirmTracked(context.Background()))

	assert.True(t, store.addrs[addrID].SweepConfirmed)
}

func TestSweeper_ConfirmTrackedWaitsBelowThreshold(t *testing.T) {
	store := newFakeStore()
	chain := newFakeChain()
	chain.height = 1000
	chain.confirmationsByTx["0xsweeptx2"] = 3
	chain.statusByTx["0xsweeptx2"] = domain.TxSuccessful

	_, err := store.CreatePayment(context.Background(), domain.CreatePaymentRequest{
		MerchantID: 1, OrderID: "order-wait", Currency: domain.CurrencyETH,
		Amount: decimal.NewFromFloat(1.0),
	}, &domain.PaymentAddress{Address: "0xwaitaddr", EncryptedPrivateKey: sealedTestKey(t)})
	require.NoError(t, err)
	var addrID uint64
	for id, a := range store.addrs {
		if a.Address == "0xwaitaddr" {
			addrID = id
			a.SweepRequested = true
		}
	}
	require.NoError(t, store.RecordSweep(context.Background(), &domain.SweepTransaction{
		AddressID: addrID, TxHash: "0xsweeptx2", Status: "broadcast",
	}, addrID))

	s := NewSweeper(&config.Config{RequiredConfirmations: 12}, store, chain, testEncKey(), nil)
	require.NoError(t, s.confirmTracked(context.Background()))

	assert.False(t, store.addrs[addrID].SweepConfirmed)
}

func TestSweeper_ConfirmTrackedReleasesAddressWhenSweepTxReverted(t *testing.T) {
	store := newFakeStore()
	chain := newFakeChain()
	chain.height = 1000
	chain.statusByTx["0xsweeptx3"] = domain.TxFailed

	_, err := store.CreatePayment(context.Background(), domain.CreatePaymentRequest{
		MerchantID: 1, OrderID: "order-revert", Currency: domain.CurrencyETH,
		Amount: decimal.NewFromFloat(1.0),
	}, &domain.PaymentAddress{Address: "0xrevertaddr", EncryptedPrivateKey: sealedTestKey(t)})
	require.NoError(t, err)
	var addrID uint64
	for id, a := range store.addrs {
		if a.Address == "0xrevertaddr" {
			addrID = id
			a.SweepRequested = true
		}
	}
	require.NoError(t, store.RecordSweep(context.Background(), &domain.SweepTransaction{
		AddressID: addrID, TxHash: "0xsweeptx3", Status: "broadcast",
	}, addrID))

	s := NewSweeper(&config.Config{RequiredConfirmations: 12}, store, chain, testEncKey(), nil)
	require.NoError(t, s.confirmTracked(context.Background()))

	assert.False(t, store.addrs[addrID].SweepRequested)
	assert.False(t, store.addrs[addrID].SweepConfirmed)
}

func TestSweeper_RecoverStuckReleasesAddressWithNoPendingSweep(t *testing.T) {
	store := newFakeStore()
	chain := newFakeChain()

	_, err := store.CreatePayment(context.Background(), domain.CreatePaymentRequest{
		MerchantID: 1, OrderID: "order-stuck", Currency: domain.CurrencyETH,
		Amount: decimal.NewFromFloat(1.0),
	}, &domain.PaymentAddress{Address: "0xstuck", EncryptedPrivateKey: sealedTestKey(t)})
	require.NoError(t, err)
	var addrID uint64
	for id, a := range store.addrs {
		if a.Address == "0xstuck" {
			addrID = id
			a.SweepRequested = true
		}
	}

	s := NewSweeper(&config.Config{}, store, chain, testEncKey(), nil)
	require.NoError(t, s.recoverStuck(context.Background()))

	assert.False(t, store.addrs[addrID].SweepRequested)
}

func testEncKey() [32]byte {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	return key
}

func sealedTestKey(t *testing.T) []byte {
	t.Helper()
	ciphertext, err := walletkey.Seal(testEncKey(), "deadbeef")
	require.NoError(t, err)
	return ciphertext
}
