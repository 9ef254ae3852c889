// Package token reads descriptive metadata (name, symbol, decimals) from
// token contracts.
package token

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/0xmhha/transfer-indexer/internal/logger"
	"github.com/0xmhha/transfer-indexer/pkg/entity"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Resolver resolves token metadata with bounded contract calls.
// It keeps no cache; callers check whether a token is already known.
type Resolver struct {
	caller  ethereum.ContractCaller
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewResolver creates a resolver issuing calls through caller
func NewResolver(caller ethereum.ContractCaller, cfg *Config, logger *zap.Logger) (*Resolver, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resolver config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Resolver{
		caller:  caller,
		timeout: cfg.Timeout,
		logger:  logger,
	}
	if cfg.RateLimit > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	return r, nil
}

// methodsFor returns the call surface of a standard
func methodsFor(standard entity.ContractStandard) ([]string, error) {
	switch standard {
	case entity.StandardERC20:
		return []string{MethodName, MethodSymbol, MethodDecimals}, nil
	case entity.StandardERC721, entity.StandardERC1155:
		return []string{MethodName, MethodSymbol}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStandard, standard)
	}
}

// Resolve reads the metadata of contract at block. The calls run concurrently;
// the first failure cancels the others and no partial metadata is returned.
func (r *Resolver) Resolve(ctx context.Context, contract common.Address, standard entity.ContractStandard, block uint64) (*Metadata, error) {
	methods, err := methodsFor(standard)
	if err != nil {
		resolutionsTotal.WithLabelValues(string(standard), "unsupported").Inc()
		return nil, err
	}

	start := time.Now()
	blockNumber := new(big.Int).SetUint64(block)

	var (
		name     string
		symbol   string
		decimals uint8
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, method := range methods {
		g.Go(func() error {
			out, err := r.call(gctx, contract, method, blockNumber)
			if err != nil {
				return err
			}

			switch method {
			case MethodName:
				name, err = unpackString(method, out)
			case MethodSymbol:
				symbol, err = unpackString(method, out)
			case MethodDecimals:
				decimals, err = unpackUint8(out)
			}
			if err != nil {
				return fmt.Errorf("%s on %s: %w", method, contract.Hex(), err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		resolutionsTotal.WithLabelValues(string(standard), outcome(err)).Inc()
		r.logger.Debug("Failed to resolve token metadata",
			logger.Contract(contract),
			zap.String("standard", string(standard)),
			zap.Uint64("block", block),
			zap.Error(err))
		return nil, err
	}

	md := &Metadata{Name: name, Symbol: symbol}
	if standard.HasDecimals() {
		md.Decimals = &decimals
	}

	resolutionsTotal.WithLabelValues(string(standard), "ok").Inc()
	resolveDuration.Observe(time.Since(start).Seconds())
	return md, nil
}

type callResult struct {
	out []byte
	err error
}

// call issues one metadata call pinned to block. The wait is bounded by the
// resolver timeout even when the caller does not honor ctx.
func (r *Resolver) call(ctx context.Context, contract common.Address, method string, block *big.Int) ([]byte, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	data, err := parsedMetadataABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		out, err := r.caller.CallContract(callCtx, ethereum.CallMsg{To: &contract, Data: data}, block)
		done <- callResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		err = res.err
		if err != nil {
			switch {
			case ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
				err = fmt.Errorf("%w: %s on %s after %s", ErrMetadataTimeout, method, contract.Hex(), r.timeout)
			case isRevert(err):
				err = fmt.Errorf("%w: %s on %s: %w", ErrCallReverted, method, contract.Hex(), err)
			default:
				err = fmt.Errorf("%s on %s: %w", method, contract.Hex(), err)
			}
		}
		metadataCallsTotal.WithLabelValues(method, outcome(err)).Inc()
		return res.out, err

	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		err := fmt.Errorf("%w: %s on %s after %s", ErrMetadataTimeout, method, contract.Hex(), r.timeout)
		metadataCallsTotal.WithLabelValues(method, outcome(err)).Inc()
		return nil, err
	}
}

// unpackString decodes a string result, accepting the legacy bytes32 form
func unpackString(method string, out []byte) (string, error) {
	if values, err := parsedMetadataABI.Unpack(method, out); err == nil && len(values) == 1 {
		if s, ok := values[0].(string); ok {
			return s, nil
		}
	}

	values, err := parsedLegacyMetadataABI.Unpack(method, out)
	if err != nil || len(values) != 1 {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidResponse, len(out))
	}
	raw, ok := values[0].([32]byte)
	if !ok {
		return "", fmt.Errorf("%w: unexpected %T", ErrInvalidResponse, values[0])
	}
	return string(bytes.TrimRight(raw[:], "\x00")), nil
}

func unpackUint8(out []byte) (uint8, error) {
	values, err := parsedMetadataABI.Unpack(MethodDecimals, out)
	if err != nil || len(values) != 1 {
		return 0, fmt.Errorf("%w: %d bytes", ErrInvalidResponse, len(out))
	}
	v, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected %T", ErrInvalidResponse, values[0])
	}
	return v, nil
}

// isRevert reports whether err is an execution revert from the node
func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrMetadataTimeout)
}

func isReverted(err error) bool {
	return errors.Is(err, ErrCallReverted)
}

// IsSkippable reports whether a resolution error is a property of the
// contract rather than a transient failure, so retrying cannot help
func IsSkippable(err error) bool {
	return errors.Is(err, ErrUnsupportedStandard) ||
		errors.Is(err, ErrCallReverted) ||
		errors.Is(err, ErrInvalidResponse)
}
