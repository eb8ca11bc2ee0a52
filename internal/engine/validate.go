package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/xela07ax/openfinance-gateway/internal/domain"
)

// amountOutOfBounds stands in for a decimal too large or too precise to render.
const amountOutOfBounds = "out_of_bounds"

// validate is shared: validator caches struct metadata and is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their wire names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// Decimals are validated through their exact string form. Out-of-bounds
	// values never reach String(): a tiny body like 1e-50000000 would expand
	// into a string of fifty million digits.
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		d, ok := f.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		if !domain.AmountInBounds(d) {
			return amountOutOfBounds
		}
		return d.String()
	}, decimal.Decimal{})

	mustRegister(v, "notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v, "amount", func(fl validator.FieldLevel) bool {
		return fl.Field().String() != amountOutOfBounds
	})
	mustRegister(v, "positive", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive()
	})

	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

// validationError turns validator output into INVALID_INPUT with per-field reasons.
func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return domain.NewInternalError("")
	}

	fields := make(map[string]any, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return domain.NewInvalidInput("Request validation failed", map[string]any{"fields": fields})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank", "required":
		return "must not be empty"
	case "amount":
		return fmt.Sprintf("must have at most %d integer digits and %d decimal places",
			domain.MaxAmountIntegerDigits, domain.MaxAmountScale)
	case "positive":
		return "must be greater than 0"
	case "iso4217":
		return "must be an ISO 4217 currency code"
	case "len", "number":
		return "must be a 4-digit merchant category code"
	default:
		return fmt.Sprintf("failed on '%s'", fe.Tag())
	}
}
