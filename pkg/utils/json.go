// Package utils carries small serialization helpers shared across
// evalforge's sinks and loaders.
package utils

import "strconv"

// JSONFlatten flattens a nested JSON object using dot notation, so a
// Score's arbitrarily nested metadata (adapter-captured tool-call
// records, latency breakdowns) can be rendered as flat CSV columns
// instead of a stringified blob.
func JSONFlatten(data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	flattenRecursive("", data, result)
	return result
}

func flattenRecursive(prefix string, data map[string]interface{}, result map[string]interface{}) {
	for key, value := range data {
		newKey := key
		if prefix != "" {
			newKey = prefix + "." + key
		}

		switch v := value.(type) {
		case map[string]interface{}:
			flattenRecursive(newKey, v, result)
		case []interface{}:
			for i, item := range v {
				arrayKey := newKey + "[" + strconv.Itoa(i) + "]"
				if itemMap, ok := item.(map[string]interface{}); ok {
					flattenRecursive(arrayKey, itemMap, result)
				} else {
					result[arrayKey] = item
				}
			}
		default:
			result[newKey] = value
		}
	}
}
