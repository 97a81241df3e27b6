package token

import "encoding/json"

// Serializer turns bound data into the byte sequence folded into the
// signature. It must be deterministic: the same logical value has to
// serialize identically on generate and verify.
type Serializer func(v any) ([]byte, error)

// DefaultSerializer encodes strings as UTF-8, passes byte slices through
// unchanged and JSON-encodes everything else. encoding/json writes map keys
// in sorted order, which keeps the output deterministic for structured data.
func DefaultSerializer(v any) ([]byte, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(d), nil
	case []byte:
		return d, nil
	default:
		return json.Marshal(d)
	}
}
