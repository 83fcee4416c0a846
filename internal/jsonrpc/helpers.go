package jsonrpc

import (
	"encoding/json"

	"github.com/imtaco/room-relay/internal/validation"
)

var validate = validation.New()

// ShouldBindParams unmarshals params into v and runs its validate tags.
func ShouldBindParams(params *json.RawMessage, v any) error {
	if params == nil {
		return ErrInvalidParams("params required")
	}
	if err := json.Unmarshal(*params, v); err != nil {
		return ErrInvalidParams("invalid params")
	}
	if err := validate.Struct(v); err != nil {
		if field := validation.FirstField(err); field != "" {
			return ErrInvalidParams("invalid params: " + field)
		}
		return ErrInvalidParams("invalid params")
	}
	return nil
}
