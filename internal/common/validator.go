package common

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

var sharedValidator = sync.OnceValue(validator.New)

// ValidateStruct checks the `validate` tags of v.
func ValidateStruct(v any) error {
	return sharedValidator().Struct(v)
}

// GenericEchoValidator plugs the struct tag validation into echo's Bind/Validate.
type GenericEchoValidator struct {
	Validator *validator.Validate
}

func (gv *GenericEchoValidator) Validate(i interface{}) error {
	if gv.Validator == nil {
		gv.Validator = sharedValidator()
	}
	if err := gv.Validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request body: %v", err))
	}
	return nil
}
