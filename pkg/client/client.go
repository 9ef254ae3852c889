// Package client wraps the go-ethereum JSON-RPC client with the logging and
// metrics the indexer needs. A Client serves both as the log source backend
// and as the contract caller of the metadata resolver.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "JSON-RPC requests by method and result",
	}, []string{"method", "result"})

	rpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "indexer",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "JSON-RPC request latency by method",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

// Compile-time checks
var (
	_ ethereum.LogFilterer       = (*Client)(nil)
	_ ethereum.BlockNumberReader = (*Client)(nil)
	_ ethereum.ContractCaller    = (*Client)(nil)
)

// Config holds client configuration
type Config struct {
	Endpoint string

	// Timeout bounds dialing and the initial ping
	Timeout time.Duration

	Logger *zap.Logger
}

// Client wraps an Ethereum JSON-RPC client
type Client struct {
	eth    *ethclient.Client
	rpc    *rpc.Client
	logger *zap.Logger
}

// NewClient dials cfg.Endpoint and verifies the connection
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	c := New(rpcClient, cfg.Logger)
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to ping RPC endpoint: %w", err)
	}

	c.logger.Info("connected to Ethereum RPC", zap.String("endpoint", cfg.Endpoint))
	return c, nil
}

// New wraps an established RPC connection
func New(rpcClient *rpc.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		eth:    ethclient.NewClient(rpcClient),
		rpc:    rpcClient,
		logger: logger,
	}
}

// Ping verifies the connection to the RPC endpoint
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ChainID(ctx)
	return err
}

// Close closes the client connection
func (c *Client) Close() {
	c.rpc.Close()
}

// ChainID returns the chain ID
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.observe("eth_chainId", func() (err error) {
		id, err = c.eth.ChainID(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	return id, nil
}

// BlockNumber returns the latest block number
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.observe("eth_blockNumber", func() (err error) {
		n, err = c.eth.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return n, nil
}

// FilterLogs runs eth_getLogs
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.observe("eth_getLogs", func() (err error) {
		logs, err = c.eth.FilterLogs(ctx, q)
		return err
	})
	if err != nil {
		c.logger.Debug("eth_getLogs failed",
			zap.Stringer("from", q.FromBlock),
			zap.Stringer("to", q.ToBlock),
			zap.Error(err))
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}
	return logs, nil
}

// SubscribeFilterLogs subscribes to new logs; it needs a websocket or IPC endpoint
func (c *Client) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	sub, err := c.eth.SubscribeFilterLogs(ctx, q, ch)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to logs: %w", err)
	}
	return sub, nil
}

// CallContract runs eth_call. The error is returned unwrapped so callers can
// inspect revert data through rpc.DataError.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	var out []byte
	err := c.observe("eth_call", func() (err error) {
		out, err = c.eth.CallContract(ctx, msg, block)
		return err
	})
	return out, err
}

func (c *Client) observe(method string, call func() error) error {
	start := time.Now()
	err := call()
	rpcDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	rpcRequestsTotal.WithLabelValues(method, result(err)).Inc()
	return err
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}
