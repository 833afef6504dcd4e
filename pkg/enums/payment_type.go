package enums

import "fmt"

// PaymentType tags settlement traffic for fee-rate lookup and auditing.
type PaymentType string

const (
	PaymentTypeOneTime           PaymentType = "one_time"
	PaymentTypeFixedRecurring    PaymentType = "fixed_recurring"
	PaymentTypeVariableRecurring PaymentType = "variable_recurring"
	PaymentTypeOnDemand          PaymentType = "on_demand"
)

var validPaymentTypes = []PaymentType{
	PaymentTypeOneTime,
	PaymentTypeFixedRecurring,
	PaymentTypeVariableRecurring,
	PaymentTypeOnDemand,
}

// IsValid reports whether the value is a known payment type.
func (t PaymentType) IsValid() bool {
	for _, candidate := range validPaymentTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParsePaymentType converts raw input into PaymentType.
func ParsePaymentType(value string) (PaymentType, error) {
	for _, candidate := range validPaymentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment type %q", value)
}
