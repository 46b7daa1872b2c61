package engine

import "encoding/json"

// memo caches results of pure primitives within a single run. The key
// is the JSON form of operation+input+args; inputs that do not marshal
// are simply not cached. Purity labels guarantee the cached result is
// what a re-dispatch would produce.
type memo struct {
	entries map[string]any
}

func newMemo() *memo {
	return &memo{entries: make(map[string]any)}
}

func memoKey(op string, input any, args map[string]any) (string, bool) {
	raw, err := json.Marshal(struct {
		Op    string         `json:"op"`
		Input any            `json:"input"`
		Args  map[string]any `json:"args,omitempty"`
	}{op, input, args})
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func (m *memo) get(key string) (any, bool) {
	v, ok := m.entries[key]
	return v, ok
}

func (m *memo) put(key string, v any) {
	m.entries[key] = v
}
