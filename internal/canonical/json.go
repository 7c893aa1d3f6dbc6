// Package canonical implements the deterministic JSON serialization used for
// audit-chain hashing and stored result payloads: object keys sorted, no
// insignificant whitespace, integers emitted as integers, UTF-8 throughout.
// Hashing and transport share this one byte representation so that a stored
// hash can always be recomputed from the stored fields.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal serializes v into its canonical JSON form. v may be any
// json-serializable value; struct tags apply as usual before
// canonicalization reorders object keys.
func Marshal(v any) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return Canonicalize(plain)
}

// Canonicalize rewrites any valid JSON document into canonical form.
// Numbers pass through verbatim (json.Number), so integers stay integers.
func Canonicalize(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	var buf bytes.Buffer
	if err := encodeValue(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(v.String())
	case string:
		escaped, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode string: %w", err)
		}
		buf.Write(escaped)
	case []any:
		buf.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			escaped, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("failed to encode key: %w", err)
			}
			buf.Write(escaped)
			buf.WriteByte(':')
			if err := encodeValue(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported JSON value type %T", value)
	}
	return nil
}
