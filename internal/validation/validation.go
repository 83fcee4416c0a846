package validation

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	customTags = map[string]validator.Func{
		"roomcode": ValidateRoomCode,
	}

	// aliases expand to built-in rules
	aliasTags = map[string]string{
		"roomname": "min=1,max=100",
		"capacity": "min=0,max=100",
	}
)

// RegisterTags installs the custom tags and aliases on v.
func RegisterTags(v *validator.Validate) error {
	for tag, fn := range customTags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return errors.Wrapf(err, "register tag %s", tag)
		}
	}
	for tag, alias := range aliasTags {
		v.RegisterAlias(tag, alias)
	}
	return nil
}

// ginValidator is the engine behind gin's binding tags.
func ginValidator() (*validator.Validate, error) {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil, errors.New("validator engine is not of type *validator.Validate")
	}
	return v, nil
}
