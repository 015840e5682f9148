// Package encoding produces the canonical byte forms that script and save
// identities are hashed over.
package encoding

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CanonicalJSON marshals v with object keys sorted, no insignificant
// whitespace and HTML escaping disabled. Numbers must be integers; a
// fractional or exponent number is rejected so that identities never depend
// on float formatting.
func CanonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	canonical, err := canonicalize(raw)
	if err != nil {
		return nil, err
	}
	return marshalWithoutHTMLEscape(canonical)
}

func canonicalize(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		values := make(map[string]any, len(val))
		for _, k := range keys {
			item, err := canonicalize(val[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			values[k] = item
		}
		return orderedMap{keys: keys, values: values}, nil

	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			canon, err := canonicalize(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			result[i] = canon
		}
		return result, nil

	case json.Number:
		if strings.ContainsAny(val.String(), ".eE") {
			return nil, fmt.Errorf("non-integer number %s", val.String())
		}
		return val, nil

	default:
		return v, nil
	}
}

type orderedMap struct {
	keys   []string
	values map[string]any
}

// MarshalJSON implements json.Marshaler with sorted keys.
func (o orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := marshalWithoutHTMLEscape(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')

		valJSON, err := marshalWithoutHTMLEscape(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalWithoutHTMLEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Digest is a SHA-256 content identity.
type Digest [sha256.Size]byte

// Sum hashes data.
func Sum(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// Hex returns the lowercase hex form of d.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// String implements fmt.Stringer.
func (d Digest) String() string {
	return d.Hex()
}

// ParseDigest decodes a 64-character hex digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("decode digest: %w", err)
	}
	if len(raw) != len(d) {
		return d, fmt.Errorf("digest must be %d bytes, got %d", len(d), len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// ContentHash hashes the canonical JSON form of v.
func ContentHash(v any) (Digest, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return Digest{}, fmt.Errorf("canonical json: %w", err)
	}
	return Sum(canonical), nil
}
