package cs

import (
	"encoding/json"
	"fmt"
)

func unmarshalResult(raw json.RawMessage, out interface{}) error {
	if raw == nil {
		return fmt.Errorf("empty result")
	}
	return json.Unmarshal(raw, out)
}
