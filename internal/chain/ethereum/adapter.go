// Package ethereum implements domain.ChainAdapter against a real
// Ethereum-family JSON-RPC endpoint via go-ethereum's ethclient.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethereumrpc "github.com/ethereum/go-ethereum"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"wopay.dev/internal/domain"
)

// transferEventHash is Keccak256("Transfer(address,address,uint256)").
const transferEventHash = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"payable":false,"stateMutability":"nonpayable","type":"function"}]`

const erc20BalanceOfABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"}]`

// usdtDecimals is the real USDT contract's token precision, distinct
// from ETH's 18-decimal wei.
const usdtDecimals = 6
const ethDecimals = 18

type Adapter struct {
	client          *ethclient.Client
	chainID         *big.Int
	usdtContract    string // lowercase hex
	confirmThreshold int64
}

var _ domain.ChainAdapter = (*Adapter)(nil)

func New(ctx context.Context, rpcURL string, usdtContract string, confirmThreshold int64) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ethereum: dial %s: %w", rpcURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("ethereum: chain id: %w", err)
	}
	return &Adapter{
		client:           client,
		chainID:          chainID,
		usdtContract:     strings.ToLower(usdtContract),
		confirmThreshold: confirmThreshold,
	}, nil
}

func (a *Adapter) BlockHeight(ctx context.Context) (int64, error) {
	height, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	return int64(height), nil
}

// Balance reads the on-chain balance of address, in ETH for the native
// asset or in token units for USDT via the ERC-20 balanceOf call.
func (a *Adapter) Balance(ctx context.Context, address string, currency domain.Currency) (decimal.Decimal, error) {
	account := common.HexToAddress(address)
	if currency == domain.CurrencyETH {
		wei, err := a.client.BalanceAt(ctx, account, nil)
		if err != nil {
			return decimal.Zero, fmt.Errorf("ethereum: balance at: %w", err)
		}
		return weiToDecimal(wei, ethDecimals), nil
	}

	parsedABI, err := gethabi.JSON(strings.NewReader(erc20BalanceOfABI))
	if err != nil {
		return decimal.Zero, err
	}
	data, err := parsedABI.Pack("balanceOf", account)
	if err != nil {
		return decimal.Zero, err
	}
	contract := common.HexToAddress(a.usdtContract)
	result, err := a.client.CallContract(ctx, ethereumCallMsg(contract, data), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ethereum: call balanceOf: %w", err)
	}
	balance := new(big.Int).SetBytes(result)
	return weiToDecimal(balance, usdtDecimals), nil
}

func (a *Adapter) BlockByHeight(ctx context.Context, height int64) (*domain.StandardBlock, error) {
	block, err := a.client.BlockByNumber(ctx, big.NewInt(height))
	if err != nil {
		return nil, fmt.Errorf("ethereum: get block %d: %w", height, err)
	}

	std := &domain.StandardBlock{
		Height:   height,
		Hash:     block.Hash().Hex(),
		PrevHash: block.ParentHash().Hex(),
		Time:     int64(block.Time()),
	}

	for _, tx := range block.Transactions() {
		receipt, receiptErr := a.client.TransactionReceipt(ctx, tx.Hash())

		if tx.Value().Cmp(big.NewInt(0)) > 0 && tx.To() != nil {
			transfer := domain.ObservedTransfer{
				TxHash:      tx.Hash().Hex(),
				LogIndex:    0,
				Currency:    domain.CurrencyETH,
				ToAddress:   strings.ToLower(tx.To().Hex()),
				Amount:      weiToDecimal(tx.Value(), ethDecimals),
				BlockHeight: height,
				BlockHash:   std.Hash,
			}
			if receiptErr == nil {
				gasFeeWei := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
				transfer.GasFee = weiToDecimal(gasFeeWei, ethDecimals)
			}
			std.Transfers = append(std.Transfers, transfer)
		}

		if receiptErr != nil || receipt.Status != types.ReceiptStatusSuccessful {
			continue
		}
		for _, lg := range receipt.Logs {
			if len(lg.Topics) != 3 || lg.Topics[0].Hex() != transferEventHash {
				continue
			}
			if strings.ToLower(lg.Address.Hex()) != a.usdtContract {
				continue
			}
			toAddress := common.HexToAddress(lg.Topics[2].Hex()).Hex()
			amountBig := new(big.Int).SetBytes(lg.Data)
			std.Transfers = append(std.Transfers, domain.ObservedTransfer{
				TxHash:      lg.TxHash.Hex(),
				LogIndex:    int(lg.Index),
				Currency:    domain.CurrencyUSDT,
				ToAddress:   strings.ToLower(toAddress),
				Amount:      weiToDecimal(amountBig, usdtDecimals),
				BlockHeight: height,
				BlockHash:   std.Hash,
			})
		}
	}
	return std, nil
}

// SendValue signs and broadcasts a transfer of amount in currency from
// the key represented by privateKeyHex. For USDT it builds a zero-value
// transaction calling the contract's transfer method.
func (a *Adapter) SendValue(ctx context.Context, privateKeyHex string, currency domain.Currency, to string, amount decimal.Decimal) (string, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("ethereum: parse private key: %w", err)
	}
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("ethereum: cast public key")
	}
	fromAddress := crypto.PubkeyToAddress(*publicKeyECDSA)

	var (
		toAddress common.Address
		value     *big.Int
		data      []byte
	)
	switch currency {
	case domain.CurrencyETH:
		toAddress = common.HexToAddress(to)
		value = decimalToUnits(amount, ethDecimals)
	case domain.CurrencyUSDT:
		toAddress = common.HexToAddress(a.usdtContract)
		value = big.NewInt(0)
		data, err = packTransferData(common.HexToAddress(to), decimalToUnits(amount, usdtDecimals))
		if err != nil {
			return "", fmt.Errorf("ethereum: pack transfer data: %w", err)
		}
	default:
		return "", fmt.Errorf("ethereum: unsupported currency %q", currency)
	}

	nonce, err := a.client.PendingNonceAt(ctx, fromAddress)
	if err != nil {
		return "", fmt.Errorf("ethereum: nonce: %w", err)
	}
	gasTipCap, err := a.client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("ethereum: gas tip: %w", err)
	}
	head, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("ethereum: header: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	gasFeeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), gasTipCap)

	gasLimit := uint64(21000)
	if len(data) > 0 {
		gasLimit = uint64(100000)
	}

	txPayload := &types.DynamicFeeTx{
		ChainID:   a.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &toAddress,
		Value:     value,
		Data:      data,
	}
	tx := types.NewTx(txPayload)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), privateKey)
	if err != nil {
		return "", fmt.Errorf("ethereum: sign: %w", err)
	}
	if err := a.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("ethereum: broadcast: %w", err)
	}
	return signedTx.Hash().Hex(), nil
}

// TransactionConfirmations distinguishes a transaction with no receipt
// yet (still pending, or dropped by a reorg and not re-included) from
// one that was mined with a failed status, so callers can drive the
// confirmed -> failed transition instead of waiting on a tx that will
// never confirm.
func (a *Adapter) TransactionConfirmations(ctx context.Context, txHash string, tipHeight int64) (int, domain.TxConfirmationStatus, error) {
	receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereumrpc.NotFound) {
		return 0, domain.TxPending, nil
	}
	if err != nil {
		return 0, domain.TxPending, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return 0, domain.TxFailed, nil
	}
	confirmations := int(tipHeight - receipt.BlockNumber.Int64() + 1)
	if confirmations < 0 {
		confirmations = 0
	}
	return confirmations, domain.TxSuccessful, nil
}

func (a *Adapter) EstimateGasCost(ctx context.Context, currency domain.Currency) (decimal.Decimal, error) {
	gasTipCap, err := a.client.SuggestGasTipCap(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ethereum: gas tip: %w", err)
	}
	head, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ethereum: header: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	gasFeeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), gasTipCap)
	gasLimit := big.NewInt(21000)
	if currency == domain.CurrencyUSDT {
		gasLimit = big.NewInt(100000)
	}
	costWei := new(big.Int).Mul(gasFeeCap, gasLimit)
	return weiToDecimal(costWei, ethDecimals), nil
}

func ethereumCallMsg(to common.Address, data []byte) ethereumrpc.CallMsg {
	return ethereumrpc.CallMsg{To: &to, Data: data}
}

func weiToDecimal(wei *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(wei, 0).Shift(-decimals)
}

func decimalToUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).BigInt()
}

func packTransferData(to common.Address, amount *big.Int) ([]byte, error) {
	parsedABI, err := gethabi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		return nil, err
	}
	return parsedABI.Pack("transfer", to, amount)
}
