package enums

import "fmt"

// BillingModel selects which subscription lifecycle rules apply to a plan.
type BillingModel string

const (
	BillingModelFixedRecurring    BillingModel = "fixed_recurring"
	BillingModelVariableRecurring BillingModel = "variable_recurring"
	BillingModelOnDemand          BillingModel = "on_demand"
)

var validBillingModels = []BillingModel{
	BillingModelFixedRecurring,
	BillingModelVariableRecurring,
	BillingModelOnDemand,
}

// IsValid reports whether the value is a known billing model.
func (m BillingModel) IsValid() bool {
	for _, candidate := range validBillingModels {
		if candidate == m {
			return true
		}
	}
	return false
}

// PaymentType returns the fee-schedule tag used for transfers under this model.
func (m BillingModel) PaymentType() PaymentType {
	switch m {
	case BillingModelFixedRecurring:
		return PaymentTypeFixedRecurring
	case BillingModelVariableRecurring:
		return PaymentTypeVariableRecurring
	case BillingModelOnDemand:
		return PaymentTypeOnDemand
	}
	return PaymentTypeOneTime
}

// ParseBillingModel converts raw input into BillingModel.
func ParseBillingModel(value string) (BillingModel, error) {
	for _, candidate := range validBillingModels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing model %q", value)
}
