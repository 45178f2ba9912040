package reminders

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/tenants"
)

func TestReplaceVariables(t *testing.T) {
	svc := NewTemplateService(nil)

	got := svc.ReplaceVariables("Hello {{name}}, due {{amt}}", map[string]string{"name": "A", "amt": "5"})
	require.Equal(t, "Hello A, due 5", got)

	got = svc.ReplaceVariables("Hello {{name}} {{x}}", map[string]string{"name": "A"})
	require.Equal(t, "Hello A {{x}}", got)

	// Values are not rescanned for placeholders.
	got = svc.ReplaceVariables("{{a}} {{b}}", map[string]string{"a": "{{b}}", "b": "B"})
	require.Equal(t, "{{b}} B", got)

	require.Equal(t, "plain", svc.ReplaceVariables("plain", nil))
}

func TestPaymentTemplateDataDayCounts(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, 10, 15, 18, 45, 0, 0, time.UTC) }
	svc := NewTemplateService(clock)
	inv := billing.Invoice{
		InvoiceNumber: "INV-20261001-0003",
		InvoiceDate:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		DueDate:       time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.NewFromInt(150000),
		Balance:       decimal.NewFromInt(120000),
	}

	data := svc.PaymentTemplateData(inv, tenants.Tenant{})
	require.Equal(t, "3", data["days_until_due"])
	require.Equal(t, "0", data["days_overdue"])
	require.Equal(t, "Tenant", data["tenant_name"])
	require.Equal(t, "Property", data["property_name"])
	require.Equal(t, "", data["unit_number"])
	require.Equal(t, "October 1, 2026", data["invoice_date"])
	require.Equal(t, "October 18, 2026", data["due_date"])
	require.Equal(t, "₦150,000.00", data["amount_due"])
	require.Equal(t, "₦120,000.00", data["amount_balance"])

	inv.DueDate = time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)
	data = svc.PaymentTemplateData(inv, tenants.Tenant{})
	require.Equal(t, "0", data["days_until_due"])
	require.Equal(t, "5", data["days_overdue"])
}

func TestLeaseTemplateData(t *testing.T) {
	svc := NewTemplateService(func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) })
	tenant := tenants.Tenant{
		LeaseStartDate: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		MonthlyRent:    decimal.RequireFromString("85000.5"),
	}

	data := svc.LeaseTemplateData(tenant)
	require.Equal(t, "N/A", data["lease_end_date"])
	require.Equal(t, "0", data["days_until_expiry"])
	require.Equal(t, "November 1, 2025", data["lease_start_date"])
	require.Equal(t, "₦85,000.50", data["monthly_rent"])

	end := time.Date(2026, 11, 14, 0, 0, 0, 0, time.UTC)
	tenant.LeaseEndDate = &end
	data = svc.LeaseTemplateData(tenant)
	require.Equal(t, "November 14, 2026", data["lease_end_date"])
	require.Equal(t, "30", data["days_until_expiry"])
}

func TestRenderDefaultTemplates(t *testing.T) {
	svc := NewTemplateService(nil)
	for _, tpl := range DefaultTemplates() {
		require.NotEmpty(t, tpl.VariablesHelp)
		out := svc.Render(tpl, map[string]string{"invoice_number": "INV-1", "property_name": "Palm Court"})
		require.NotContains(t, out.Subject, "{{")
	}
	require.Contains(t, AvailableVariables(TypeLeaseExpiry), "{{monthly_rent}}")
	require.NotContains(t, AvailableVariables(TypeCustom), "{{invoice_number}}")
}
