package chain

import (
	"encoding/json"
)

// marshalFixedBytes and unmarshalFixedBytes give the fixed-size byte arrays
// in this package (Address, Signature, Hash) the same base64-string JSON shape
// Go's encoding/json already uses for []byte, so the gossip wire format
// looks exactly like a struct of plain byte slices would.
func marshalFixedBytes(b []byte) ([]byte, error) {
	return json.Marshal(b)
}

func unmarshalFixedBytes(data []byte, size int) ([]byte, error) {
	var b []byte
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, ErrFixedBytesWrongSize
	}
	return b, nil
}
