package state

import (
	"bytes"
	"encoding/json"
	"sort"
)

// splitExtra returns the top-level members of a JSON object whose keys are
// not in known. It returns nil when there are none.
func splitExtra(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	for k, v := range all {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return nil, err
		}
		all[k] = buf.Bytes()
	}
	return all, nil
}

// appendExtra splices extra members into an encoded JSON object, in key order.
func appendExtra(obj []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return obj, nil
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	trimmed := bytes.TrimRight(obj, " \n")
	buf.Write(trimmed[:len(trimmed)-1])
	first := bytes.Equal(bytes.TrimSpace(trimmed), []byte("{}"))
	for _, k := range keys {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
