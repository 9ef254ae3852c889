// Package pipeline turns transfer logs into persisted accounts, tokens and
// transfers, one window of blocks at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0xmhha/transfer-indexer/internal/constants"
	"github.com/0xmhha/transfer-indexer/internal/logger"
	"github.com/0xmhha/transfer-indexer/pkg/cache"
	"github.com/0xmhha/transfer-indexer/pkg/entity"
	"github.com/0xmhha/transfer-indexer/pkg/notify"
	"github.com/0xmhha/transfer-indexer/pkg/storage"
	"github.com/0xmhha/transfer-indexer/pkg/token"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// ErrCommitFailed marks a window whose unit did not commit. Nothing of the
// window was persisted, so the same window can be processed again as is.
var ErrCommitFailed = errors.New("window commit failed")

// MetadataResolver reads token metadata; *token.Resolver implements it
type MetadataResolver interface {
	Resolve(ctx context.Context, contract common.Address, standard entity.ContractStandard, block uint64) (*token.Metadata, error)
}

// Stores are the backends the processor persists into. Every store must
// accept units opened by Committer.
type Stores struct {
	Accounts    storage.UnitStore[*entity.Account]
	Tokens      storage.UnitStore[*entity.Token]
	Transfers   storage.UnitStore[*entity.Transfer]
	Checkpoints storage.UnitStore[*entity.Checkpoint]
	Committer   storage.Committer
}

func (s Stores) validate() error {
	if s.Accounts == nil || s.Tokens == nil || s.Transfers == nil || s.Checkpoints == nil {
		return fmt.Errorf("every store must be set")
	}
	if s.Committer == nil {
		return fmt.Errorf("committer cannot be nil")
	}
	return nil
}

// WindowStats summarizes one processed window
type WindowStats struct {
	From        uint64
	To          uint64
	Logs        int
	Transfers   int
	NewAccounts int
	NewTokens   int
	Skipped     int
}

// Processor indexes windows of blocks through per-kind entity caches
type Processor struct {
	source   LogSource
	resolver MetadataResolver
	config   Config
	logger   *zap.Logger

	accounts    *cache.Cache[*entity.Account]
	tokens      *cache.Cache[*entity.Token]
	transfers   *cache.Cache[*entity.Transfer]
	checkpoints storage.UnitStore[*entity.Checkpoint]
	committer   storage.Committer

	// unsupported holds contracts whose metadata cannot be resolved
	unsupported *lru.Cache[common.Address, struct{}]

	publisher notify.Publisher
}

// NewProcessor creates a processor
func NewProcessor(source LogSource, resolver MetadataResolver, stores Stores, cacheCfg *cache.Config, cfg *Config, logger *zap.Logger) (*Processor, error) {
	if source == nil {
		return nil, fmt.Errorf("log source cannot be nil")
	}
	if resolver == nil {
		return nil, fmt.Errorf("metadata resolver cannot be nil")
	}
	if err := stores.validate(); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	unsupported, err := lru.New[common.Address, struct{}](cfg.SkipListSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create skip list: %w", err)
	}

	p := &Processor{
		source:      source,
		resolver:    resolver,
		config:      *cfg,
		logger:      logger,
		checkpoints: stores.Checkpoints,
		committer:   stores.Committer,
		unsupported: unsupported,
		publisher:   notify.Nop{},
	}

	if p.accounts, err = cache.NewBound(entity.AccountKind.Name, stores.Accounts, cacheCfg, logger); err != nil {
		return nil, err
	}
	if p.tokens, err = cache.NewBound(entity.TokenKind.Name, stores.Tokens, cacheCfg, logger); err != nil {
		return nil, err
	}
	if p.transfers, err = cache.NewBound(entity.TransferKind.Name, stores.Transfers, cacheCfg, logger); err != nil {
		return nil, err
	}
	return p, nil
}

// SetPublisher sets where committed windows are announced (optional)
func (p *Processor) SetPublisher(pub notify.Publisher) {
	if pub == nil {
		pub = notify.Nop{}
	}
	p.publisher = pub
}

// ProcessWindow indexes blocks [from, to] and saves a checkpoint at to. The
// window's entities and the checkpoint are written in one unit, so after any
// failure, a restart included, the store still holds the previous window and
// the window can be retried as is. A commit failure wraps ErrCommitFailed.
func (p *Processor) ProcessWindow(ctx context.Context, from, to uint64) (*WindowStats, error) {
	if from > to {
		return nil, fmt.Errorf("invalid window [%d, %d]", from, to)
	}

	start := time.Now()
	stats, err := p.stage(ctx, from, to)
	if err == nil {
		err = p.commit(ctx, to)
	}
	if err != nil {
		p.reset()
		windowsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	windowsTotal.WithLabelValues("committed").Inc()
	transfersTotal.Add(float64(stats.Transfers))
	windowDuration.Observe(time.Since(start).Seconds())

	p.logger.Info("Window committed",
		logger.Window(from, to),
		zap.Int("logs", stats.Logs),
		zap.Int("transfers", stats.Transfers),
		zap.Int("new_accounts", stats.NewAccounts),
		zap.Int("new_tokens", stats.NewTokens),
		zap.Int("skipped", stats.Skipped),
		zap.Duration("elapsed", time.Since(start)))

	p.publish(ctx, stats)
	return stats, nil
}

// publish announces a committed window. The window is already durable, so a
// failure is only logged.
func (p *Processor) publish(ctx context.Context, stats *WindowStats) {
	err := p.publisher.Publish(ctx, &notify.WindowCommitted{
		From:        stats.From,
		To:          stats.To,
		Transfers:   stats.Transfers,
		NewAccounts: stats.NewAccounts,
		NewTokens:   stats.NewTokens,
		Skipped:     stats.Skipped,
		CommittedAt: time.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn("Failed to publish committed window",
			logger.Window(stats.From, stats.To),
			zap.Error(err))
	}
}

// stage decodes the window and applies every event to the caches
func (p *Processor) stage(ctx context.Context, from, to uint64) (*WindowStats, error) {
	stats := &WindowStats{From: from, To: to}

	logs, err := p.source.Logs(ctx, from, to)
	if err != nil {
		return nil, err
	}
	stats.Logs = len(logs)

	events := make([]Event, 0, len(logs))
	for _, log := range logs {
		decoded, err := Decode(log)
		if err != nil {
			reason := reasonUnknownEvent
			if errors.Is(err, ErrMalformedEvent) {
				reason = reasonMalformed
				p.logger.Warn("Skipping malformed transfer log",
					logger.Contract(log.Address),
					zap.String("tx", log.TxHash.Hex()),
					zap.Uint("log_index", log.Index),
					zap.Error(err))
			}
			skippedEventsTotal.WithLabelValues(reason).Inc()
			stats.Skipped++
			continue
		}
		events = append(events, decoded...)
	}

	// Queue every id the window touches, then load them in bulk
	for i := range events {
		ev := &events[i]
		if err := p.tokens.Register(ev.TokenID()); err != nil {
			return nil, err
		}
		for _, addr := range []common.Address{ev.From, ev.To} {
			if addr == (common.Address{}) {
				continue
			}
			if err := p.accounts.Register(entity.AccountID(addr)); err != nil {
				return nil, err
			}
		}
	}
	if err := p.accounts.Prefetch(ctx); err != nil {
		return nil, err
	}
	if err := p.tokens.Prefetch(ctx); err != nil {
		return nil, err
	}

	for i := range events {
		ev := &events[i]

		tok, created, err := p.token(ctx, ev)
		if err != nil {
			return nil, err
		}
		if tok == nil {
			stats.Skipped++
			continue
		}
		if created {
			stats.NewTokens++
		}

		if err := p.recordParties(ev, stats); err != nil {
			return nil, err
		}

		if err := p.transfers.Add(&entity.Transfer{
			ID:          ev.TransferID(),
			BlockNumber: ev.BlockNumber,
			TxHash:      ev.TxHash,
			LogIndex:    ev.LogIndex,
			FromID:      entity.AccountID(ev.From),
			ToID:        entity.AccountID(ev.To),
			TokenID:     tok.ID,
			Amount:      ev.Amount,
		}); err != nil {
			return nil, err
		}
		stats.Transfers++
	}

	return stats, nil
}

// recordParties bumps the counters of the sender and the receiver. The zero
// address is not an account; a self-transfer counts once for its account.
func (p *Processor) recordParties(ev *Event, stats *WindowStats) error {
	if ev.From == ev.To {
		if ev.From == (common.Address{}) {
			return nil
		}
		acc, err := p.party(ev.From, stats)
		if err != nil {
			return err
		}
		acc.RecordSelfTransfer()
		return nil
	}

	if ev.From != (common.Address{}) {
		acc, err := p.party(ev.From, stats)
		if err != nil {
			return err
		}
		acc.RecordSent()
	}
	if ev.To != (common.Address{}) {
		acc, err := p.party(ev.To, stats)
		if err != nil {
			return err
		}
		acc.RecordReceived()
	}
	return nil
}

func (p *Processor) party(addr common.Address, stats *WindowStats) (*entity.Account, error) {
	acc, created, err := p.account(addr)
	if err != nil {
		return nil, err
	}
	if created {
		stats.NewAccounts++
	}
	return acc, nil
}

// account returns the staged account for addr, creating it when absent.
// Accounts were prefetched, so absence means the store has none.
func (p *Processor) account(addr common.Address) (*entity.Account, bool, error) {
	id := entity.AccountID(addr)
	if acc, ok := p.accounts.Peek(id); ok {
		return acc, false, nil
	}

	acc := entity.NewAccount(addr)
	if err := p.accounts.Add(acc); err != nil {
		return nil, false, err
	}
	return acc, true, nil
}

// token returns the token an event moves, resolving metadata for new ones.
// A nil token means the event is skipped.
func (p *Processor) token(ctx context.Context, ev *Event) (*entity.Token, bool, error) {
	id := ev.TokenID()
	if tok, ok := p.tokens.Peek(id); ok {
		return tok, false, nil
	}

	if p.unsupported.Contains(ev.Contract) {
		skippedEventsTotal.WithLabelValues(reasonSkipListMember).Inc()
		return nil, false, nil
	}

	md, err := p.resolver.Resolve(ctx, ev.Contract, ev.Standard, ev.BlockNumber)
	if err != nil {
		if token.IsSkippable(err) {
			p.unsupported.Add(ev.Contract, struct{}{})
			skippedEventsTotal.WithLabelValues(reasonUnsupported).Inc()
			p.logger.Warn("Skipping contract with unreadable metadata",
				logger.Contract(ev.Contract),
				zap.String("standard", string(ev.Standard)),
				zap.Error(err))
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("resolve token %s: %w", id, err)
	}

	tok := &entity.Token{
		ID:             id,
		Contract:       ev.Contract,
		Standard:       ev.Standard,
		Name:           md.Name,
		Symbol:         md.Symbol,
		Decimals:       md.Decimals,
		FirstSeenBlock: ev.BlockNumber,
	}
	if ev.Standard.MultiAsset() {
		tok.AssetID = ev.AssetID
	}
	if err := p.tokens.Add(tok); err != nil {
		return nil, false, err
	}
	return tok, true, nil
}

// commit writes the staged entities and the checkpoint at height in one unit.
// The caches are emptied only once the unit committed.
func (p *Processor) commit(ctx context.Context, height uint64) error {
	u, err := p.committer.NewUnit(ctx)
	if err != nil {
		return fmt.Errorf("%w: open unit: %w", ErrCommitFailed, err)
	}
	defer u.Discard()

	if err := p.tokens.Stage(u); err != nil {
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	if err := p.accounts.Stage(u); err != nil {
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	if err := p.transfers.Stage(u); err != nil {
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	checkpoint := &entity.Checkpoint{ID: constants.CheckpointID, Height: height}
	if err := p.checkpoints.Stage(u, []*entity.Checkpoint{checkpoint}); err != nil {
		return fmt.Errorf("%w: stage checkpoint: %w", ErrCommitFailed, err)
	}

	if err := u.Commit(ctx); err != nil {
		p.logger.Error("Window commit failed, nothing persisted",
			zap.Uint64("height", height),
			zap.Error(err))
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	p.tokens.Committed()
	p.accounts.Committed()
	p.transfers.Committed()
	committedHeight.Set(float64(height))
	return nil
}

// reset drops everything staged for the current window
func (p *Processor) reset() {
	p.accounts.Reset()
	p.tokens.Reset()
	p.transfers.Reset()
}

// NextHeight returns the first block not covered by the checkpoint
func (p *Processor) NextHeight(ctx context.Context) (uint64, error) {
	cp, err := p.checkpoints.Get(ctx, constants.CheckpointID)
	if err != nil {
		if storage.IsNotFound(err) {
			return p.config.StartHeight, nil
		}
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp.Height+1 < p.config.StartHeight {
		return p.config.StartHeight, nil
	}
	return cp.Height + 1, nil
}

// Run indexes confirmed windows until ctx is cancelled. A window that still
// fails after MaxRetries retries stops Run with its error.
func (p *Processor) Run(ctx context.Context) error {
	next, err := p.NextHeight(ctx)
	if err != nil {
		return err
	}

	p.logger.Info("Starting processor",
		zap.Uint64("next_height", next),
		zap.Uint64("window_size", p.config.WindowSize),
		zap.Uint64("confirmations", p.config.Confirmations))

	for {
		if ctx.Err() != nil {
			p.logger.Info("Processor stopped", zap.Uint64("next_height", next))
			return nil
		}

		head, err := p.source.Head(ctx)
		if err != nil {
			p.logger.Error("Failed to get chain head", zap.Error(err))
			if !sleep(ctx, p.config.RetryDelay) {
				return nil
			}
			continue
		}

		if head < p.config.Confirmations || next > head-p.config.Confirmations {
			p.logger.Debug("Caught up with chain",
				zap.Uint64("next_height", next),
				zap.Uint64("head", head))
			if !sleep(ctx, p.config.PollInterval) {
				return nil
			}
			continue
		}

		to := min(next+p.config.WindowSize-1, head-p.config.Confirmations)
		if err := p.processWithRetry(ctx, next, to); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		next = to + 1
	}
}

func (p *Processor) processWithRetry(ctx context.Context, from, to uint64) error {
	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Warn("Retrying window",
				logger.Window(from, to),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			if !sleep(ctx, p.config.RetryDelay) {
				return ctx.Err()
			}
		}

		_, err := p.ProcessWindow(ctx, from, to)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("window [%d, %d] failed after %d retries: %w", from, to, p.config.MaxRetries, lastErr)
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
