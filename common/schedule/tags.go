package schedule

import (
	"github.com/go-playground/validator/v10"
)

// RegisterValidations adds the slug, clock and weekday tags to v so request structs can declare
// the same rules the parsers enforce.
func RegisterValidations(v *validator.Validate) error {
	tags := map[string]validator.Func{
		"slug": func(fl validator.FieldLevel) bool {
			return ValidateSlug(fl.Field().String()) == nil
		},
		"clock": func(fl validator.FieldLevel) bool {
			return ValidateClock(fl.Field().String()) == nil
		},
		"weekday": func(fl validator.FieldLevel) bool {
			_, err := ParseWeekday(fl.Field().String())
			return err == nil
		},
	}

	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}

	return nil
}
