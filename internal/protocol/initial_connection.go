package protocol

import (
	"encoding/json"
	"fmt"
)

// InitialConnectionPayload is the first message on every stream.
type InitialConnectionPayload struct {
	ConnectionID string `json:"connection_id"`
	ChainID      uint64 `json:"chain_id"`
	HeadBlock    uint64 `json:"head_block"`
}

func decodeInitialConnection(raw json.RawMessage) (InitialConnectionPayload, error) {
	var p InitialConnectionPayload
	if len(raw) == 0 {
		return p, fmt.Errorf("initial_connection has no payload")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode initial_connection payload: %w", err)
	}
	if p.ConnectionID == "" {
		return p, fmt.Errorf("initial_connection payload missing connection_id")
	}
	if p.ChainID == 0 {
		return p, fmt.Errorf("initial_connection payload missing chain_id")
	}
	return p, nil
}
