package chatstore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aqua777/go-ragchat/ragerr"
)

// Metadata keys written next to every message.
const (
	MetadataEmbedding = "embedding"
	MetadataParentID  = "parent_id"
)

// EncodeEmbedding serializes a vector as the JSON string stored in message metadata.
// Values are written with the shortest representation that parses back to the same float64.
func EncodeEmbedding(v []float64) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode embedding: %w", err)
	}
	return string(b), nil
}

// DecodeEmbedding parses a vector from message metadata. The value may be the
// JSON string written by EncodeEmbedding or an already decoded JSON array.
// A missing value decodes to nil.
func DecodeEmbedding(raw interface{}) ([]float64, error) {
	const op = "chatstore.decode_embedding"

	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		var out []float64
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, ragerr.Wrap(ragerr.KindValidation, op, fmt.Errorf("invalid embedding metadata: %w", err))
		}
		return out, nil
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out, nil
	case []interface{}:
		out := make([]float64, len(v))
		for i, x := range v {
			switch n := x.(type) {
			case float64:
				out[i] = n
			case json.Number:
				f, err := n.Float64()
				if err != nil {
					return nil, ragerr.Wrap(ragerr.KindValidation, op, err)
				}
				out[i] = f
			case string:
				f, err := strconv.ParseFloat(n, 64)
				if err != nil {
					return nil, ragerr.Wrap(ragerr.KindValidation, op, err)
				}
				out[i] = f
			default:
				return nil, ragerr.Validation(op, fmt.Sprintf("embedding element %d has type %T", i, x))
			}
		}
		return out, nil
	default:
		return nil, ragerr.Validation(op, fmt.Sprintf("unsupported embedding metadata type %T", raw))
	}
}

// OrderChain returns messages in chain order, root first, by following parent ids
// back from the single leaf. Messages with no links at all keep their stored order.
// Branches, orphans and cycles are Validation errors.
func OrderChain(messages []Message) ([]Message, error) {
	const op = "chatstore.order_chain"

	if len(messages) <= 1 {
		return append([]Message(nil), messages...), nil
	}

	byID := make(map[string]int, len(messages))
	linked := false
	for i, m := range messages {
		if _, dup := byID[m.ID]; dup {
			return nil, ragerr.Validation(op, fmt.Sprintf("duplicate message id %s", m.ID))
		}
		byID[m.ID] = i
		if m.ParentID != "" {
			linked = true
		}
	}
	if !linked {
		return append([]Message(nil), messages...), nil
	}

	children := make(map[string]int, len(messages))
	for _, m := range messages {
		if m.ParentID == "" {
			continue
		}
		if _, ok := byID[m.ParentID]; !ok {
			return nil, ragerr.Validation(op, fmt.Sprintf("message %s has unknown parent %s", m.ID, m.ParentID))
		}
		children[m.ParentID]++
		if children[m.ParentID] > 1 {
			return nil, ragerr.Validation(op, fmt.Sprintf("message %s has more than one child", m.ParentID))
		}
	}

	leaf := -1
	for i, m := range messages {
		if children[m.ID] == 0 {
			if leaf >= 0 {
				return nil, ragerr.Validation(op, "conversation has more than one latest message")
			}
			leaf = i
		}
	}
	if leaf < 0 {
		return nil, ragerr.Validation(op, "conversation chain has a cycle")
	}

	ordered := make([]Message, len(messages))
	pos := len(messages) - 1
	for i := leaf; ; {
		if pos < 0 {
			return nil, ragerr.Validation(op, "conversation chain has a cycle")
		}
		ordered[pos] = messages[i]
		pos--
		parent := messages[i].ParentID
		if parent == "" {
			break
		}
		i = byID[parent]
	}
	if pos != -1 {
		return nil, ragerr.Validation(op, fmt.Sprintf("%d messages are not reachable from the latest message", pos+1))
	}
	return ordered, nil
}
