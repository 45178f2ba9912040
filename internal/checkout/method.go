package checkout

import (
	"strings"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
)

// MapPaymentMethod normalises a gateway payment type. Unknown types map to
// billing.MethodOther.
func MapPaymentMethod(paymentType string) billing.PaymentMethod {
	switch strings.ToLower(strings.TrimSpace(paymentType)) {
	case "card":
		return billing.MethodCard
	case "banktransfer", "bank_transfer":
		return billing.MethodBankTransfer
	case "mobilemoney", "mobile_money", "mobilemoneyghana":
		return billing.MethodMobileMoney
	default:
		return billing.MethodOther
	}
}
