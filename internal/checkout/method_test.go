package checkout

import (
	"testing"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
)

func TestMapPaymentMethod(t *testing.T) {
	cases := map[string]billing.PaymentMethod{
		"card":             billing.MethodCard,
		"CARD":             billing.MethodCard,
		"banktransfer":     billing.MethodBankTransfer,
		"Bank_Transfer":    billing.MethodBankTransfer,
		"mobilemoney":      billing.MethodMobileMoney,
		"mobile_money":     billing.MethodMobileMoney,
		"MobileMoneyGhana": billing.MethodMobileMoney,
		"ussd":             billing.MethodOther,
		"":                 billing.MethodOther,
		"bank transfer":    billing.MethodOther,
	}
	for in, want := range cases {
		if got := MapPaymentMethod(in); got != want {
			t.Errorf("MapPaymentMethod(%q) = %q, want %q", in, got, want)
		}
	}
}
