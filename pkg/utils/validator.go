package utils

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps go-playground/validator so handlers can validate
// bound request structs with a single call.
type CustomValidator struct {
	validator *validator.Validate
}

var (
	validatorOnce     sync.Once
	validatorInstance *CustomValidator
)

// GetValidator returns the shared validator instance.
func GetValidator() *CustomValidator {
	validatorOnce.Do(func() {
		validatorInstance = &CustomValidator{validator: validator.New()}
	})
	return validatorInstance
}

// Validate checks the struct's validation tags and returns the first error.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
