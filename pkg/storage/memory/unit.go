package memory

import (
	"context"

	"github.com/0xmhha/transfer-indexer/pkg/storage"
)

// Committer opens units spanning any number of memory stores. A unit checks
// the injected write failure of every store it staged into before applying
// anything, so a failing store leaves all of them untouched.
type Committer struct{}

// NewCommitter creates a Committer
func NewCommitter() *Committer {
	return &Committer{}
}

// NewUnit implements storage.Committer
func (c *Committer) NewUnit(ctx context.Context) (storage.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &unit{}, nil
}

type unitOp struct {
	check func() error
	apply func()
}

type unit struct {
	ops  []unitOp
	done bool
}

func (u *unit) Commit(ctx context.Context) error {
	if u.done {
		return storage.ErrUnitDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, op := range u.ops {
		if err := op.check(); err != nil {
			return err
		}
	}
	for _, op := range u.ops {
		op.apply()
	}
	u.Discard()
	return nil
}

func (u *unit) Discard() {
	u.done = true
	u.ops = nil
}
