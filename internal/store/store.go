package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/voidworks/venting-vault/backend/internal/model/chat"
)

// ErrNotFound is returned by Load when no log has ever been saved.
var ErrNotFound = errors.New("vault log not found")

// Store is the durable home of the vault log. The contract is
// whole-value: Save overwrites the complete serialized log, Load returns
// it in full, and readers never observe a partial write.
type Store interface {
	Load(ctx context.Context) ([]chat.Message, error)
	Save(ctx context.Context, messages []chat.Message) error
	Remove(ctx context.Context) error
}

// encodeLog serializes the log as a JSON array. Timestamps travel as
// RFC 3339 text, the fixed format both sides of the store agree on.
func encodeLog(messages []chat.Message) ([]byte, error) {
	if messages == nil {
		messages = []chat.Message{}
	}
	return json.Marshal(messages)
}

// decodeLog is the inverse of encodeLog.
func decodeLog(payload []byte) ([]chat.Message, error) {
	var messages []chat.Message
	if err := json.Unmarshal(payload, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
