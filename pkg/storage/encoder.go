package storage

import (
	"encoding/json"
	"fmt"

	"github.com/0xmhha/transfer-indexer/pkg/entity"
)

// EncodeEntity serializes an entity for key-value backends
func EncodeEntity[E entity.Entity](e E) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity %s: %w", e.EntityID(), err)
	}
	return data, nil
}

// DecodeEntity deserializes an entity written by EncodeEntity
func DecodeEntity[E entity.Entity](kind entity.Kind[E], data []byte) (E, error) {
	e := kind.New()
	if err := json.Unmarshal(data, e); err != nil {
		var zero E
		return zero, fmt.Errorf("%w: %s: %v", ErrInvalidData, kind.Name, err)
	}
	return e, nil
}
