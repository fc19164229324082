package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/campuschain/feedback-api/pkg/config"
)

// Backend is the subset of the Ethereum client the adapter needs. It is
// satisfied by *ethclient.Client and by test fakes.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// nodeRPC is the raw RPC surface used for node-signed sends and account
// discovery. Satisfied by *rpc.Client.
type nodeRPC interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// dataError is implemented by RPC errors that carry ABI-encoded revert data.
type dataError interface {
	ErrorData() interface{}
}

// TxMetrics receives transaction outcomes and nonce retries. A nil recorder
// disables instrumentation.
type TxMetrics interface {
	ObserveChainTx(method, outcome string, duration time.Duration)
	RecordNonceRetry(method string)
}

// SendResult reports a confirmed, successful transaction.
type SendResult struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// Client is the ledger adapter: it packs calls against the feedback contract
// ABI, serializes sends per sender, retries nonce collisions with a fresh
// pending nonce, and waits for confirmation within a fixed timeout. Gas
// ceilings are supplied per send; the adapter never estimates gas.
type Client struct {
	backend  Backend
	node     nodeRPC
	contract common.Address
	abi      abi.ABI
	wallet   *Wallet
	chainID  *big.Int

	gas          GasTable
	txTimeout    time.Duration
	pollInterval time.Duration
	nonceRetries int
	metrics      TxMetrics
	logger       *zap.Logger

	mu    sync.Mutex
	lanes map[common.Address]*sync.Mutex
}

// Options configures a Client built from pre-constructed parts. Used directly
// in tests; production wiring goes through Dial.
type Options struct {
	Backend      Backend
	Node         nodeRPC
	Contract     common.Address
	Wallet       *Wallet
	ChainID      *big.Int
	Gas          GasTable
	TxTimeout    time.Duration
	PollInterval time.Duration
	NonceRetries int
	Metrics      TxMetrics
	Logger       *zap.Logger
}

// GasTable holds the fixed gas ceilings per method class.
type GasTable struct {
	Register uint64
	Assign   uint64
	Feedback uint64
}

func NewClient(opts Options) (*Client, error) {
	if opts.Backend == nil {
		return nil, errors.New("chain: backend is required")
	}
	if opts.Wallet == nil {
		empty, _ := NewWallet(nil)
		opts.Wallet = empty
	}

	parsed, err := abi.JSON(strings.NewReader(feedbackABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}

	if opts.TxTimeout <= 0 {
		opts.TxTimeout = 90 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.NonceRetries < 0 {
		opts.NonceRetries = 0
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ChainID == nil {
		opts.ChainID = big.NewInt(1337)
	}
	if opts.Gas.Register == 0 {
		opts.Gas.Register = 300_000
	}
	if opts.Gas.Assign == 0 {
		opts.Gas.Assign = 200_000
	}
	if opts.Gas.Feedback == 0 {
		opts.Gas.Feedback = 500_000
	}

	return &Client{
		backend:      opts.Backend,
		node:         opts.Node,
		contract:     opts.Contract,
		abi:          parsed,
		wallet:       opts.Wallet,
		chainID:      opts.ChainID,
		gas:          opts.Gas,
		txTimeout:    opts.TxTimeout,
		pollInterval: opts.PollInterval,
		nonceRetries: opts.NonceRetries,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		lanes:        make(map[common.Address]*sync.Mutex),
	}, nil
}

// WithMetrics attaches a transaction metrics recorder.
func (c *Client) WithMetrics(m TxMetrics) *Client {
	c.metrics = m
	return c
}

// Dial connects to the configured RPC endpoint, verifies the contract address
// and discovers node-held accounts. Account discovery failures are tolerated:
// a provider without eth_accounts simply cannot node-sign.
func Dial(ctx context.Context, cfg config.ChainConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContractAddress == "" || !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("chain: invalid contract address %q", cfg.ContractAddress)
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}

	wallet, err := NewWallet(cfg.PrivateKeys)
	if err != nil {
		return nil, err
	}

	var accounts []common.Address
	if err := rpcClient.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		logger.Warn("node account discovery failed, node-signed sends disabled", zap.Error(err))
	} else {
		wallet.SetNodeAccounts(accounts)
	}

	client, err := NewClient(Options{
		Backend:      ethclient.NewClient(rpcClient),
		Node:         rpcClient,
		Contract:     common.HexToAddress(cfg.ContractAddress),
		Wallet:       wallet,
		ChainID:      big.NewInt(cfg.ChainID),
		Gas:          GasTable{Register: cfg.RegisterGasLimit, Assign: cfg.AssignGasLimit, Feedback: cfg.FeedbackGasLimit},
		TxTimeout:    cfg.TxTimeout,
		NonceRetries: cfg.NonceRetries,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("ledger adapter connected",
		zap.String("rpc_url", cfg.RPCURL),
		zap.String("contract", cfg.ContractAddress),
		zap.Int64("chain_id", cfg.ChainID),
		zap.Int("imported_keys", len(wallet.Addresses())),
		zap.Int("node_accounts", len(accounts)),
	)

	return client, nil
}

// Wallet exposes the adapter's signer set.
func (c *Client) Wallet() *Wallet { return c.wallet }

// Contract returns the bound contract address.
func (c *Client) Contract() common.Address { return c.contract }

// Call executes a read-only contract method and unpacks the result into
// result, which must be a pointer. A nil result discards the output.
func (c *Client) Call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: input}, nil)
	if err != nil {
		if reason, ok := c.revertReason(err); ok {
			return &RevertError{Method: method, Reason: reason}
		}
		return fmt.Errorf("call %s: %w", method, err)
	}
	if result == nil {
		return nil
	}
	if err := c.abi.UnpackIntoInterface(result, method, out); err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	return nil
}

// Send submits a state-changing contract method from the given sender and
// waits for the receipt. Sends from the same sender are serialized; nonce
// collisions are retried with a freshly fetched pending nonce up to the
// configured bound. A failed receipt is replayed as a call at the same block
// to recover the revert reason.
func (c *Client) Send(ctx context.Context, from common.Address, method string, gasLimit uint64, args ...interface{}) (*SendResult, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	lane := c.lane(from)
	lane.Lock()
	defer lane.Unlock()

	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= c.nonceRetries; attempt++ {
		hash, err := c.sendOnce(ctx, from, input, gasLimit)
		if err != nil {
			if isNonceConflict(err) {
				lastErr = err
				if c.metrics != nil {
					c.metrics.RecordNonceRetry(method)
				}
				c.logger.Warn("nonce conflict, refetching pending nonce",
					zap.String("method", method),
					zap.String("sender", from.Hex()),
					zap.Int("attempt", attempt+1),
					zap.Error(err),
				)
				continue
			}
			if reason, ok := c.revertReason(err); ok {
				c.observe(method, "reverted", start)
				return nil, &RevertError{Method: method, Reason: reason}
			}
			c.observe(method, "error", start)
			return nil, fmt.Errorf("send %s: %w", method, err)
		}

		receipt, err := c.waitMined(ctx, hash)
		if err != nil {
			c.observe(method, "timeout", start)
			return nil, &TimeoutError{Method: method, TxHash: hash.Hex()}
		}
		if receipt.Status == types.ReceiptStatusFailed {
			reason := c.replayRevert(ctx, from, input, gasLimit, receipt.BlockNumber)
			c.observe(method, "reverted", start)
			return nil, &RevertError{Method: method, Reason: reason}
		}

		result := &SendResult{TxHash: hash.Hex(), GasUsed: receipt.GasUsed}
		if receipt.BlockNumber != nil {
			result.BlockNumber = receipt.BlockNumber.Uint64()
		}
		c.observe(method, "confirmed", start)
		c.logger.Info("transaction confirmed",
			zap.String("method", method),
			zap.String("sender", from.Hex()),
			zap.String("tx_hash", result.TxHash),
			zap.Uint64("block", result.BlockNumber),
			zap.Uint64("gas_used", result.GasUsed),
		)
		return result, nil
	}

	c.observe(method, "error", start)
	return nil, &NonceConflictError{Method: method, Sender: from.Hex(), Retries: c.nonceRetries, Err: lastErr}
}

func (c *Client) observe(method, outcome string, start time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveChainTx(method, outcome, time.Since(start))
	}
}

func (c *Client) sendOnce(ctx context.Context, from common.Address, input []byte, gasLimit uint64) (common.Hash, error) {
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch pending nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}

	if key, ok := c.wallet.Key(from); ok {
		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &c.contract,
			Gas:      gasLimit,
			GasPrice: gasPrice,
			Data:     input,
		})
		signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), key)
		if err != nil {
			return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
		}
		if err := c.backend.SendTransaction(ctx, signed); err != nil {
			return common.Hash{}, err
		}
		return signed.Hash(), nil
	}

	if c.wallet.NodeHeld(from) && c.node != nil {
		var hash common.Hash
		err := c.node.CallContext(ctx, &hash, "eth_sendTransaction", map[string]interface{}{
			"from":     from,
			"to":       c.contract,
			"gas":      hexutil.Uint64(gasLimit),
			"gasPrice": (*hexutil.Big)(gasPrice),
			"data":     hexutil.Bytes(input),
		})
		if err != nil {
			return common.Hash{}, err
		}
		return hash, nil
	}

	return common.Hash{}, &SenderUnavailableError{
		Address:     from.Hex(),
		Label:       "sender",
		Remediation: "import the key via CHAIN_PRIVATE_KEYS or unlock the account on the node",
	}
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	deadline := time.NewTimer(c.txTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(c.pollInterval)
	defer poll.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.logger.Debug("receipt poll failed", zap.String("tx_hash", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("confirmation wait expired for %s", hash.Hex())
		case <-poll.C:
		}
	}
}

// replayRevert re-executes a failed transaction as a call at its mined block
// to recover the revert reason. Best effort: a provider that cannot replay
// yields an empty reason.
func (c *Client) replayRevert(ctx context.Context, from common.Address, input []byte, gasLimit uint64, blockNumber *big.Int) string {
	_, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		From: from,
		To:   &c.contract,
		Gas:  gasLimit,
		Data: input,
	}, blockNumber)
	if err == nil {
		return ""
	}
	reason, _ := c.revertReason(err)
	return reason
}

// revertReason classifies a provider error as a revert, preferring
// ABI-encoded revert data over message scraping.
func (c *Client) revertReason(err error) (string, bool) {
	var de dataError
	if errors.As(err, &de) {
		if hexData, ok := de.ErrorData().(string); ok {
			if reason, uerr := abi.UnpackRevert(common.FromHex(hexData)); uerr == nil {
				return reason, true
			}
			if strings.HasPrefix(hexData, "0x") && len(hexData) > 2 {
				// Encoded revert data without a decodable Error(string).
				return "", true
			}
		}
	}
	return revertReasonFromError(err)
}

func (c *Client) lane(sender common.Address) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lane, ok := c.lanes[sender]
	if !ok {
		lane = &sync.Mutex{}
		c.lanes[sender] = lane
	}
	return lane
}
