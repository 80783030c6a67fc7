package onchain

// merge.go: merge on-chain de sets completos en el CTF de Polymarket.
//
// mergePositions() del Conditional Token Framework convierte pares UP+DOWN en colateral:
//   20 UP + 20 DOWN → 20 USDC.e
//
// Solo firma como EOA: las posiciones de un proxy o Safe no son del firmante.

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

const (
	polygonChainID = int64(137)

	// USDC.e, el colateral en Polygon
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	// Contrato CTF: custodia los conditional tokens (ERC1155)
	ctfAddress = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

	// Contratos del exchange que mueven colateral y outcome tokens en cada fill
	normalExchange  = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	negRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
	negRiskAdapter  = "0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"

	mergeGasLimit    = uint64(200_000)
	approvalGasLimit = uint64(80_000)

	gasPriceTTL    = 5 * time.Minute
	receiptTimeout = 60 * time.Second
	receiptPoll    = 3 * time.Second

	collateralDecimals = 6
)

var (
	ctfABI   = mustABI("ctf", ctfJSON)
	erc20ABI = mustABI("erc20", erc20JSON)
)

const ctfJSON = `[
	{"name": "mergePositions", "type": "function", "outputs": [], "inputs": [
		{"name": "collateralToken", "type": "address"},
		{"name": "parentCollectionId", "type": "bytes32"},
		{"name": "conditionId", "type": "bytes32"},
		{"name": "partition", "type": "uint256[]"},
		{"name": "amount", "type": "uint256"}]},
	{"name": "setApprovalForAll", "type": "function", "outputs": [], "inputs": [
		{"name": "operator", "type": "address"},
		{"name": "approved", "type": "bool"}]},
	{"name": "isApprovedForAll", "type": "function", "outputs": [{"name": "", "type": "bool"}], "inputs": [
		{"name": "account", "type": "address"},
		{"name": "operator", "type": "address"}]}
]`

const erc20JSON = `[
	{"name": "approve", "type": "function", "outputs": [{"name": "", "type": "bool"}], "inputs": [
		{"name": "spender", "type": "address"},
		{"name": "amount", "type": "uint256"}]},
	{"name": "allowance", "type": "function", "outputs": [{"name": "", "type": "uint256"}], "inputs": [
		{"name": "owner", "type": "address"},
		{"name": "spender", "type": "address"}]},
	{"name": "balanceOf", "type": "function", "outputs": [{"name": "", "type": "uint256"}], "inputs": [
		{"name": "account", "type": "address"}]}
]`

func mustABI(name, def string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(name + " abi parse: " + err.Error())
	}
	return a
}

// MergeClient implementa ports.Merger contra un RPC de Polygon.
type MergeClient struct {
	client  *ethclient.Client
	key     []byte
	address common.Address

	mu           sync.Mutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// NewMergeClient conecta a rpcURL y firma con privateKeyHex (0x opcional).
func NewMergeClient(rpcURL, privateKeyHex string) (*MergeClient, error) {
	pk, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("onchain.NewMergeClient: decode private key: %v: %w", err, domain.ErrConfiguration)
	}
	priv, err := crypto.ToECDSA(pk)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewMergeClient: invalid private key: %v: %w", err, domain.ErrConfiguration)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewMergeClient: dial rpc %s: %w", rpcURL, err)
	}
	return &MergeClient{
		client:  client,
		key:     pk,
		address: crypto.PubkeyToAddress(priv.PublicKey),
	}, nil
}

// Address es la cuenta que tiene las posiciones y paga el gas.
func (mc *MergeClient) Address() common.Address { return mc.address }

// Close libera la conexión RPC.
func (mc *MergeClient) Close() { mc.client.Close() }

// MergePositions convierte shares sets completos de conditionID en USDC.e
// y espera el receipt. Los mercados NegRisk pasan por el NegRisk adapter con
// una parent collection propia del mercado y se rechazan.
func (mc *MergeClient) MergePositions(ctx context.Context, conditionID string, shares float64, negRisk bool) (domain.MergeResult, error) {
	res := domain.MergeResult{ConditionID: conditionID, Shares: shares, MergedAt: time.Now().UTC()}
	fail := func(err error) (domain.MergeResult, error) {
		res.Err = err.Error()
		return res, err
	}

	if negRisk {
		return fail(fmt.Errorf("onchain.MergePositions: negRisk markets are not supported"))
	}
	data, err := mergeCalldata(conditionID, shares)
	if err != nil {
		return fail(fmt.Errorf("onchain.MergePositions: %w", err))
	}

	receipt, hash, err := mc.send(ctx, common.HexToAddress(ctfAddress), data, mergeGasLimit, true)
	res.TxHash = hash
	if err != nil {
		return fail(fmt.Errorf("onchain.MergePositions: %w", err))
	}
	res.GasUsed = receipt.GasUsed
	res.MergedAt = time.Now().UTC()

	slog.Info("merge: confirmed",
		"condition", shortHex(conditionID),
		"shares", shares,
		"tx", hash,
		"gas_used", receipt.GasUsed,
	)
	return res, nil
}

// CollateralBalance devuelve el saldo USDC.e del firmante.
func (mc *MergeClient) CollateralBalance(ctx context.Context) (float64, error) {
	data, err := erc20ABI.Pack("balanceOf", mc.address)
	if err != nil {
		return 0, err
	}
	usdc := common.HexToAddress(usdcEAddress)
	out, err := mc.client.CallContract(ctx, ethereum.CallMsg{To: &usdc, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("onchain.CollateralBalance: %w", err)
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("onchain.CollateralBalance: unpack: %v", err)
	}
	bal, _ := decimal.NewFromBigInt(vals[0].(*big.Int), -collateralDecimals).Float64()
	return bal, nil
}

// EnsureApprovals da los approvals ERC1155 sobre el CTF y los allowances de USDC.e
// que los exchanges necesitan antes de que un BUY pueda casar. Los que ya
// están puestos no se tocan.
func (mc *MergeClient) EnsureApprovals(ctx context.Context) error {
	ctf := common.HexToAddress(ctfAddress)
	for _, op := range []string{normalExchange, negRiskExchange, negRiskAdapter} {
		operator := common.HexToAddress(op)
		approved, err := mc.isApprovedForAll(ctx, operator)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: check ERC1155 %s: %w", op, err)
		}
		if approved {
			slog.Debug("merge: ERC1155 approval already set", "operator", op)
			continue
		}
		data, err := ctfABI.Pack("setApprovalForAll", operator, true)
		if err != nil {
			return err
		}
		if _, _, err := mc.send(ctx, ctf, data, approvalGasLimit, false); err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: set ERC1155 %s: %w", op, err)
		}
		slog.Info("merge: ERC1155 approval set", "operator", op)
	}

	usdc := common.HexToAddress(usdcEAddress)
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	minAllowance := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000)) // 1M USDC.e

	for _, ex := range []string{normalExchange, negRiskExchange} {
		spender := common.HexToAddress(ex)
		allowance, err := mc.allowance(ctx, usdc, spender)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: check allowance %s: %w", ex, err)
		}
		if allowance.Cmp(minAllowance) >= 0 {
			continue
		}
		data, err := erc20ABI.Pack("approve", spender, maxUint256)
		if err != nil {
			return err
		}
		if _, _, err := mc.send(ctx, usdc, data, approvalGasLimit, false); err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: approve %s: %w", ex, err)
		}
		slog.Info("merge: USDC.e approval set", "exchange", ex)
	}
	return nil
}

// send firma y envía una transacción legacy y espera un receipt correcto.
// Con estimate, gasLimit se sustituye por la estimación del nodo más un 20% si la hay.
func (mc *MergeClient) send(ctx context.Context, to common.Address, data []byte, gasLimit uint64, estimate bool) (*types.Receipt, string, error) {
	priv, err := crypto.ToECDSA(mc.key)
	if err != nil {
		return nil, "", fmt.Errorf("private key: %w", err)
	}
	nonce, err := mc.client.PendingNonceAt(ctx, mc.address)
	if err != nil {
		return nil, "", fmt.Errorf("nonce: %w", err)
	}
	gasPrice := mc.gasPrice(ctx)

	if estimate {
		est, err := mc.client.EstimateGas(ctx, ethereum.CallMsg{From: mc.address, To: &to, GasPrice: gasPrice, Data: data})
		if err != nil {
			slog.Warn("merge: gas estimate failed, using default", "err", err, "limit", gasLimit)
		} else {
			gasLimit = est * 12 / 10
		}
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(polygonChainID)), priv)
	if err != nil {
		return nil, "", fmt.Errorf("sign tx: %w", err)
	}
	if err := mc.client.SendTransaction(ctx, signed); err != nil {
		return nil, "", fmt.Errorf("send tx: %w", err)
	}
	hash := signed.Hash().Hex()
	slog.Info("merge: transaction sent", "to", to.Hex(), "tx", hash)

	rctx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()
	receipt, err := mc.waitForReceipt(rctx, signed.Hash())
	if err != nil {
		return nil, hash, fmt.Errorf("wait receipt %s: %w", hash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, hash, fmt.Errorf("tx %s reverted", hash)
	}
	return receipt, hash, nil
}

func (mc *MergeClient) isApprovedForAll(ctx context.Context, operator common.Address) (bool, error) {
	data, err := ctfABI.Pack("isApprovedForAll", mc.address, operator)
	if err != nil {
		return false, err
	}
	ctf := common.HexToAddress(ctfAddress)
	out, err := mc.client.CallContract(ctx, ethereum.CallMsg{To: &ctf, Data: data}, nil)
	if err != nil {
		return false, err
	}
	vals, err := ctfABI.Unpack("isApprovedForAll", out)
	if err != nil || len(vals) == 0 {
		return false, err
	}
	return vals[0].(bool), nil
}

func (mc *MergeClient) allowance(ctx context.Context, token, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", mc.address, spender)
	if err != nil {
		return nil, err
	}
	out, err := mc.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := erc20ABI.Unpack("allowance", out)
	if err != nil || len(vals) == 0 {
		return big.NewInt(0), err
	}
	return vals[0].(*big.Int), nil
}

// gasPrice devuelve el gas price sugerido más un 10%, cacheado durante gasPriceTTL.
func (mc *MergeClient) gasPrice(ctx context.Context) *big.Int {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.cachedGasWei != nil && time.Since(mc.gasUpdatedAt) < gasPriceTTL {
		return mc.cachedGasWei
	}
	price, err := mc.client.SuggestGasPrice(ctx)
	if err != nil {
		if mc.cachedGasWei != nil {
			return mc.cachedGasWei
		}
		return big.NewInt(30_000_000_000) // 30 gwei
	}
	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	mc.cachedGasWei = buffered
	mc.gasUpdatedAt = time.Now()
	return buffered
}

func (mc *MergeClient) waitForReceipt(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			r, err := mc.client.TransactionReceipt(ctx, h)
			if err != nil {
				continue // todavía no minado
			}
			return r, nil
		}
	}
}

// mergeCalldata codifica mergePositions para una condición binaria (partition 1|2)
// con amount = shares en unidades de 6 decimales, redondeado hacia abajo.
func mergeCalldata(conditionID string, shares float64) ([]byte, error) {
	cond, err := hexToBytes32(conditionID)
	if err != nil {
		return nil, fmt.Errorf("invalid conditionID: %w", err)
	}
	amount := decimal.NewFromFloat(shares).Shift(collateralDecimals).Floor()
	if !amount.IsPositive() {
		return nil, fmt.Errorf("merge amount must be > 0, got %v shares", shares)
	}
	return ctfABI.Pack("mergePositions",
		common.HexToAddress(usdcEAddress),
		[32]byte{},
		cond,
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
		amount.BigInt(),
	)
}

// hexToBytes32 convierte un hex con prefijo 0x a [32]byte.
func hexToBytes32(s string) ([32]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return [32]byte{}, fmt.Errorf("expected 64 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return arr, nil
}

func shortHex(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:12] + "..."
}
