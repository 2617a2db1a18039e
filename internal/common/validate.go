package common

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/inventario-pricing/internal/pricing"
)

// NewValidator returns a validator that reports JSON field names and understands the
// decimal-string tags used by pricing payloads:
//
//	money         non-negative decimal string (empty allowed, means zero)
//	percent       non-negative decimal string, optional trailing "%"
//	taxpercent    percent within [0, 100]
//	decscale=N    at most N decimals
//	decmax=X      decimal value at most X
//
// The tags parse with the pricing package so validation and computation agree on input.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		_, err := pricing.ParseMoney(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("percent", func(fl validator.FieldLevel) bool {
		_, err := pricing.ParsePercentage(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("taxpercent", func(fl validator.FieldLevel) bool {
		_, err := pricing.ParseTaxPercentage(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("decscale", func(fl validator.FieldLevel) bool {
		scale, err := strconv.ParseInt(fl.Param(), 10, 32)
		if err != nil {
			return false
		}
		d, err := pricing.ParsePercentage(fl.Field().String())
		return err != nil || d.Equal(d.Round(int32(scale)))
	})
	_ = v.RegisterValidation("decmax", func(fl validator.FieldLevel) bool {
		limit, err := decimal.NewFromString(fl.Param())
		if err != nil {
			return false
		}
		d, err := pricing.ParsePercentage(fl.Field().String())
		return err != nil || !d.GreaterThan(limit)
	})
	return v
}

// Validate runs v against payload and converts failures into a 422 AppError.
func Validate(v *validator.Validate, payload any) error {
	err := v.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return BadRequest("invalid payload", err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fieldPath(fe.Namespace()), Message: fieldMessage(fe)})
	}
	return ValidationFailed(fields)
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "money":
		return "must be a non-negative amount"
	case "percent":
		return "must be a non-negative percentage"
	case "taxpercent":
		return "must be a percentage between 0 and 100"
	case "decscale":
		return "must have at most " + fe.Param() + " decimals"
	case "decmax":
		return "must be at most " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}
