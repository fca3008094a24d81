package hotswap

import (
	"bytes"
	"encoding/gob"
)

// Encoder receives the state of an outgoing instance.
type Encoder interface {
	Encode(v any) error
}

// Decoder yields the state saved by the previous instance.
type Decoder interface {
	Decode(v any) error
}

// Stateful instances carry state across a swap. Save runs on the outgoing
// instance, Load on its replacement before it becomes visible.
type Stateful interface {
	Save(enc Encoder) error
	Load(dec Decoder) error
}

// SaveState captures the state of v if it is Stateful. The second result
// reports whether anything was captured.
func SaveState(v any) (*bytes.Buffer, bool, error) {
	s, ok := v.(Stateful)
	if !ok {
		return nil, false, nil
	}
	var buf bytes.Buffer
	if err := s.Save(gob.NewEncoder(&buf)); err != nil {
		return nil, false, err
	}
	return &buf, true, nil
}

// LoadState restores buf into v. Instances that are not Stateful ignore it.
func LoadState(v any, buf *bytes.Buffer) error {
	s, ok := v.(Stateful)
	if !ok || buf == nil {
		return nil
	}
	return s.Load(gob.NewDecoder(bytes.NewReader(buf.Bytes())))
}
