package protocol

import (
	"fmt"

	"github.com/viant/toolbox"
)

// Normalize coerces a value delivered by an execution unit into a Message.
// Codec-backed units may hand over generic maps whose scalar fields lost
// their original type on the way; scalar coercion is delegated to toolbox.
// On a malformed envelope Normalize returns an error together with whatever
// it could salvage, so the caller can still release bookkeeping keyed by
// seq.
func Normalize(value interface{}) (*Message, error) {
	switch actual := value.(type) {
	case *Message:
		return actual, nil
	case Message:
		return &actual, nil
	case map[string]interface{}:
		return fromMap(actual)
	default:
		return nil, fmt.Errorf("unsupported message %T", value)
	}
}

func fromMap(values map[string]interface{}) (*Message, error) {
	msg := &Message{Seq: NoSeq}
	if raw, ok := values["seq"]; ok && raw != nil {
		seq, err := toolbox.ToInt(raw)
		if err != nil {
			return msg, fmt.Errorf("malformed seq %v: %w", raw, err)
		}
		msg.Seq = int64(seq)
	}
	if raw, ok := values["type"]; ok && raw != nil {
		text, ok := raw.(string)
		if !ok {
			return msg, fmt.Errorf("malformed type %T", raw)
		}
		msg.Type = text
	}
	if raw, ok := values["message"]; ok && raw != nil {
		text, ok := raw.(string)
		if !ok {
			return msg, fmt.Errorf("malformed message %T", raw)
		}
		msg.Error = text
	}
	msg.Payload = values["payload"]
	return msg, nil
}
