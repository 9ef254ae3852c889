package entity

// Checkpoint records the last block a pipeline fully flushed
type Checkpoint struct {
	ID     string `json:"id"`
	Height uint64 `json:"height"`
}

// EntityID implements Entity
func (c *Checkpoint) EntityID() string { return c.ID }
