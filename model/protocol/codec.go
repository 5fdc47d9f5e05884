package protocol

import "encoding/json"

// Codec serialises envelopes crossing the execution boundary. The
// coordinator never inspects the encoding; its only contract is that an
// envelope survives a round trip with an equal payload.
type Codec interface {
	Encode(msg *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

type jsonCodec struct{}

// JSON returns the default JSON-backed codec.
func JSON() Codec {
	return jsonCodec{}
}

func (jsonCodec) Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Decode(data []byte) (*Message, error) {
	msg := &Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
