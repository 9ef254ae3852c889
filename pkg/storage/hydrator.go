package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xmhha/transfer-indexer/pkg/entity"
)

// Hydrator populates relations of already loaded entities
type Hydrator[E entity.Entity] interface {
	Hydrate(ctx context.Context, entities []E, relations []string) error
}

// hydratedStore layers relation loading over any backend
type hydratedStore[E entity.Entity] struct {
	UnitStore[E]
	hydrator Hydrator[E]
}

// WithHydrator returns a store that eager-loads relations through h whenever
// a read asks for them. Reads without relations and all writes go straight
// to s.
func WithHydrator[E entity.Entity](s UnitStore[E], h Hydrator[E]) UnitStore[E] {
	return &hydratedStore[E]{UnitStore: s, hydrator: h}
}

func (s *hydratedStore[E]) GetMany(ctx context.Context, ids []string, opts ...LoadOption) ([]E, error) {
	entities, err := s.UnitStore.GetMany(ctx, ids, opts...)
	if err != nil {
		return nil, err
	}

	o := ApplyLoadOptions(opts...)
	if len(o.Relations) == 0 || len(entities) == 0 {
		return entities, nil
	}
	if err := s.hydrator.Hydrate(ctx, entities, o.Relations); err != nil {
		return nil, fmt.Errorf("failed to load relations: %w", err)
	}
	return entities, nil
}

func (s *hydratedStore[E]) Get(ctx context.Context, id string, opts ...LoadOption) (E, error) {
	e, err := s.UnitStore.Get(ctx, id, opts...)
	if err != nil {
		return e, err
	}

	o := ApplyLoadOptions(opts...)
	if len(o.Relations) == 0 {
		return e, nil
	}
	if err := s.hydrator.Hydrate(ctx, []E{e}, o.Relations); err != nil {
		var zero E
		return zero, fmt.Errorf("failed to load relations: %w", err)
	}
	return e, nil
}

// TransferHydrator loads the from, to and token relations of transfers
type TransferHydrator struct {
	accounts Reader[*entity.Account]
	tokens   Reader[*entity.Token]
}

// NewTransferHydrator creates a hydrator reading related entities from the
// given stores
func NewTransferHydrator(accounts Reader[*entity.Account], tokens Reader[*entity.Token]) *TransferHydrator {
	return &TransferHydrator{accounts: accounts, tokens: tokens}
}

// Hydrate implements Hydrator
func (h *TransferHydrator) Hydrate(ctx context.Context, transfers []*entity.Transfer, relations []string) error {
	var wantFrom, wantTo, wantToken bool
	for _, rel := range relations {
		switch rel {
		case entity.RelationFrom:
			wantFrom = true
		case entity.RelationTo:
			wantTo = true
		case entity.RelationToken:
			wantToken = true
		default:
			return fmt.Errorf("%w: transfer.%s", ErrUnknownRelation, rel)
		}
	}

	if wantFrom || wantTo {
		ids := make([]string, 0, len(transfers)*2)
		for _, t := range transfers {
			if wantFrom {
				ids = append(ids, t.FromID)
			}
			if wantTo {
				ids = append(ids, t.ToID)
			}
		}
		accounts, err := h.accounts.GetMany(ctx, dedupe(ids))
		if err != nil {
			return fmt.Errorf("failed to load accounts: %w", err)
		}
		byID := index(accounts)
		for _, t := range transfers {
			if wantFrom {
				t.From = byID[t.FromID]
			}
			if wantTo {
				t.To = byID[t.ToID]
			}
		}
	}

	if wantToken {
		ids := make([]string, 0, len(transfers))
		for _, t := range transfers {
			ids = append(ids, t.TokenID)
		}
		tokens, err := h.tokens.GetMany(ctx, dedupe(ids))
		if err != nil {
			return fmt.Errorf("failed to load tokens: %w", err)
		}
		byID := index(tokens)
		for _, t := range transfers {
			t.Token = byID[t.TokenID]
		}
	}

	return nil
}

func index[E entity.Entity](entities []E) map[string]E {
	m := make(map[string]E, len(entities))
	for _, e := range entities {
		m[e.EntityID()] = e
	}
	return m
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// IsNotFound reports whether err means the entity does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
