package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	chainconfig "github.com/weisyn/evidence-anchor/internal/config/chain"
	logpkg "github.com/weisyn/evidence-anchor/internal/core/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/anchoring"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
)

// AnchorABI 锚定合约的最小 ABI
const AnchorABI = `[
  {"type":"function","name":"submitRoot","stateMutability":"nonpayable",
   "inputs":[{"name":"merkleRoot","type":"bytes32"}],
   "outputs":[{"name":"batchId","type":"uint256"}]},
  {"type":"function","name":"rootToBatchId","stateMutability":"view",
   "inputs":[{"name":"merkleRoot","type":"bytes32"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

const (
	methodSubmitRoot    = "submitRoot"
	methodRootToBatchID = "rootToBatchId"
)

var (
	// ErrReverted 交易已上链但执行失败
	ErrReverted = errors.New("锚定交易执行失败")
	// ErrReceiptTimeout 等待交易回执超时
	ErrReceiptTimeout = errors.New("等待交易回执超时")
	// ErrInvalidKey 签名私钥无效
	ErrInvalidKey = errors.New("签名私钥无效")
)

var _ anchoring.RootAnchor = (*EVMAnchor)(nil)

// contract *bind.BoundContract 中用到的部分
type contract interface {
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*ethtypes.Transaction, error)
}

// receiptReader 查询交易回执
type receiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// EVMAnchor 通过 JSON-RPC 调用链上锚定合约
type EVMAnchor struct {
	contract contract
	receipts receiptReader
	auth     *bind.TransactOpts
	from     common.Address
	logger   log.Logger

	waitReceipt    bool
	receiptPoll    time.Duration
	receiptTimeout time.Duration

	closeFn func()
}

// DialEVM 连接节点并绑定锚定合约
//
// 参数：
//   - ctx: 拨号上下文
//   - opts: 链配置，mode 必须为 evm
//   - logger: 日志记录器，可为 nil
//
// 返回：
//   - *EVMAnchor: 已绑定的锚定客户端，使用完毕需 Close
//   - error: 配置无效、私钥无效或拨号失败
func DialEVM(ctx context.Context, opts *chainconfig.ChainOptions, logger log.Logger) (*EVMAnchor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	key, err := ParsePrivateKey(opts.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("连接节点 %s 失败: %w", opts.RPCURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(AnchorABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("解析合约ABI失败: %w", err)
	}
	address := common.HexToAddress(opts.ContractAddress)
	bound := bind.NewBoundContract(address, parsed, client, client, client)

	auth, err := bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(opts.ChainID))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("创建交易签名器失败: %w", err)
	}

	a := newEVMAnchor(bound, client, auth, opts, logger)
	a.closeFn = client.Close
	a.logger.Infof("已连接锚定合约: rpc=%s contract=%s chainId=%d from=%s",
		opts.RPCURL, address.Hex(), opts.ChainID, a.from.Hex())
	return a, nil
}

func newEVMAnchor(c contract, r receiptReader, auth *bind.TransactOpts, opts *chainconfig.ChainOptions, logger log.Logger) *EVMAnchor {
	return &EVMAnchor{
		contract:       c,
		receipts:       r,
		auth:           auth,
		from:           auth.From,
		logger:         logpkg.OrNop(logger),
		waitReceipt:    opts.WaitReceipt,
		receiptPoll:    opts.ReceiptPoll(),
		receiptTimeout: opts.ReceiptTimeout(),
	}
}

// SubmitRoot 发送 submitRoot 交易
//
// 开启回执等待时，交易被回滚返回 ErrReverted，超时返回 ErrReceiptTimeout。
func (a *EVMAnchor) SubmitRoot(ctx context.Context, root common.Hash) (common.Hash, error) {
	opts := *a.auth
	opts.Context = ctx

	tx, err := a.contract.Transact(&opts, methodSubmitRoot, [32]byte(root))
	if err != nil {
		return common.Hash{}, fmt.Errorf("发送 submitRoot 交易失败: %w", err)
	}
	txHash := tx.Hash()
	a.logger.Infof("submitRoot 交易已发送: root=%s tx=%s", root.Hex(), txHash.Hex())

	if !a.waitReceipt {
		return txHash, nil
	}
	receipt, err := a.awaitReceipt(ctx, txHash)
	if err != nil {
		return txHash, err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return txHash, fmt.Errorf("%w: tx=%s block=%v", ErrReverted, txHash.Hex(), receipt.BlockNumber)
	}
	return txHash, nil
}

// RootToBatchID 调用只读方法 rootToBatchId
func (a *EVMAnchor) RootToBatchID(ctx context.Context, root common.Hash) (*big.Int, error) {
	var out []interface{}
	err := a.contract.Call(&bind.CallOpts{Context: ctx, From: a.from}, &out, methodRootToBatchID, [32]byte(root))
	if err != nil {
		return nil, fmt.Errorf("调用 rootToBatchId 失败: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("rootToBatchId 返回值数量异常: %d", len(out))
	}
	id, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("rootToBatchId 返回值类型异常: %T", out[0])
	}
	return id, nil
}

// awaitReceipt 轮询交易回执直到出现、超时或 ctx 取消
func (a *EVMAnchor) awaitReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, a.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(a.receiptPoll)
	defer ticker.Stop()
	for {
		receipt, err := a.receipts.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			a.logger.Warnf("查询交易回执失败，继续轮询: tx=%s err=%v", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: tx=%s", ErrReceiptTimeout, txHash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// From 交易发送方地址
func (a *EVMAnchor) From() common.Address {
	return a.from
}

// Close 关闭 RPC 连接
func (a *EVMAnchor) Close() error {
	if a.closeFn != nil {
		a.closeFn()
	}
	return nil
}

// ParsePrivateKey 解析十六进制私钥，允许 0x 前缀
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}
