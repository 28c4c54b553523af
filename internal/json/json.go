// Package json 是基于 sonic 的 JSON 门面，
// 与标准库 encoding/json 保持兼容语义（ConfigStd）。
package json

import (
	stdjson "encoding/json"

	"github.com/bytedance/sonic"
)

var (
	json = sonic.ConfigStd

	Marshal       = json.Marshal
	Unmarshal     = json.Unmarshal
	MarshalIndent = json.MarshalIndent
	NewDecoder    = json.NewDecoder
	NewEncoder    = json.NewEncoder
	Valid         = json.Valid
)

// 与标准库互通的类型别名。
type (
	RawMessage  = stdjson.RawMessage
	Number      = stdjson.Number
	Marshaler   = stdjson.Marshaler
	Unmarshaler = stdjson.Unmarshaler
)
