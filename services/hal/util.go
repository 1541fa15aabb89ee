// services/hal/util.go
package hal

import "encoding/json"

// DecodeJSON copies a JSON-like payload (raw bytes, string, or an
// already-decoded map) into a typed struct. Device builders use it for
// their params blocks.
func DecodeJSON(in any, out any) error {
	switch v := in.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, out)
	case json.RawMessage:
		return json.Unmarshal(v, out)
	case string:
		return json.Unmarshal([]byte(v), out)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, out)
	}
}
