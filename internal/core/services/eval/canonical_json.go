package eval

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// orderedMap implements json.Marshaler to produce JSON with sorted keys,
// so map[string]interface{} values hash deterministically regardless of
// Go's randomized map iteration order.
type orderedMap struct {
	pairs [][2]interface{}
}

func (o orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, pair := range o.pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(pair[0])
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(pair[1])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func canonicalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) == 0 {
			return val
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([][2]interface{}, len(keys))
		for i, k := range keys {
			pairs[i] = [2]interface{}{k, canonicalizeValue(val[k])}
		}
		return orderedMap{pairs: pairs}
	case []interface{}:
		result := make([]interface{}, len(val))
		for i, item := range val {
			result[i] = canonicalizeValue(item)
		}
		return result
	default:
		return v
	}
}

// CanonicalJSONMarshal produces deterministic JSON with sorted map keys at
// every nesting level, required for content hashing.
func CanonicalJSONMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(canonicalizeValue(v))
}

// ComputeEvalID computes the deterministic id for an evaluation: a hash of
// its name, its scorer ids in sorted order, and its dataset id. Two calls
// with the same (name, scorerIDs, datasetID) always produce the same
// EvalID even though each call gets a fresh RunID — this is what lets the
// comparison engine treat repeated runs of "the same" evaluation as
// comparable while still addressing each run individually.
func ComputeEvalID(name string, scorerIDs []string, datasetID string) string {
	sorted := make([]string, len(scorerIDs))
	copy(sorted, scorerIDs)
	sort.Strings(sorted)

	data := map[string]interface{}{
		"name":       name,
		"scorer_ids": toInterfaceSlice(sorted),
		"dataset_id": datasetID,
	}
	jsonBytes, err := CanonicalJSONMarshal(data)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(hash[:])
}

func toInterfaceSlice(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
