package ledger

import (
	"context"
)

// Cycle is not safe for concurrent use.
type Cycle struct {
	ledger *Ledger
	known  map[Key]struct{}
	staged []Key
}

// Seen consults the in-memory set first and the durable ledger only on a miss. Durable hits are
// added to the set so each key is looked up at most once per cycle.
func (c *Cycle) Seen(ctx context.Context, key Key) (bool, error) {
	if _, ok := c.known[key]; ok {
		return true, nil
	}

	seen, err := c.ledger.Seen(ctx, key)
	if err != nil {
		return false, err
	}

	if seen {
		c.known[key] = struct{}{}
	}

	return seen, nil
}

// Stage records key as seen for the rest of the cycle and buffers it for Flush.
func (c *Cycle) Stage(key Key) {
	if _, ok := c.known[key]; ok {
		return
	}
	c.known[key] = struct{}{}
	c.staged = append(c.staged, key)
}

func (c *Cycle) Staged() []Key {
	return c.staged
}

// Flush writes every staged key in one batch. Staged keys are kept when the write fails.
func (c *Cycle) Flush(ctx context.Context) error {
	if len(c.staged) == 0 {
		return nil
	}

	if err := c.ledger.MarkBatch(ctx, c.staged); err != nil {
		return err
	}

	c.staged = nil
	return nil
}
