package services

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
)

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a validator that also understands decimal money fields:
//
//	money: strictly positive, at most two decimal places
//	cents: at most two decimal places
func NewValidationHelper() *ValidationHelper {
	v := validator.New()

	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	mustRegister(v, "money", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive() && hasMoneyScale(d)
	})
	mustRegister(v, "cents", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && hasMoneyScale(d)
	})

	return &ValidationHelper{validator: v}
}

// mustRegister panics on a bad registration; a missing money check must not
// go unnoticed.
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

func hasMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(models.MoneyScale))
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// Validate wraps validator failures as ledger validation errors. The
// validator.ValidationErrors stay reachable through errors.As.
func (vh *ValidationHelper) Validate(op string, s any) error {
	if err := vh.validator.Struct(s); err != nil {
		return models.Wrap(models.ErrValidation, op, err)
	}
	return nil
}
