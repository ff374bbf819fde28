package work

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"todo-reminders/internal/model"
)

// Data is the key/value payload handed to a worker.
type Data map[string]any

// String returns the value at key when it is a string.
func (d Data) String(key string) (string, bool) {
	v, ok := d[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int64 returns the value at key as an int64, or def when it is absent or not
// a whole number.
func (d Data) Int64(key string, def int64) int64 {
	switch v := d[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint64:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return def
		}
		return n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

func (d Data) encode() (string, error) {
	if d == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]any(d))
	if err != nil {
		return "", fmt.Errorf("encode work data: %w", err)
	}
	return string(raw), nil
}

// decodeData keeps integers exact by decoding numbers as json.Number.
func decodeData(raw string) (Data, error) {
	data := Data{}
	if raw == "" {
		return data, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode work data: %w", err)
	}
	return data, nil
}

// Input decodes the payload stored on item.
func Input(item model.WorkItem) (Data, error) {
	return decodeData(item.Input)
}
