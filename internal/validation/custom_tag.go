package validation

import (
	"github.com/go-playground/validator/v10"

	"github.com/imtaco/room-relay/rooms/code"
)

// Tags shared by gin binding and the websocket params binder.
func init() {
	v, err := ginValidator()
	if err == nil {
		err = RegisterTags(v)
	}
	if err != nil {
		panic(err)
	}
}

// New returns a validator with the custom tags that reads field names from json tags.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	if err := RegisterTags(v); err != nil {
		panic(err)
	}
	return v
}

// ValidateRoomCode accepts codes shaped lll-lll.
func ValidateRoomCode(fl validator.FieldLevel) bool {
	return code.ValidateFormat(fl.Field().String())
}
