package reminders

import (
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/money"
	"github.com/odyssey-erp/odyssey-rent/internal/tenants"
)

// TemplateService fills {{var}} placeholders from invoice and lease context.
type TemplateService struct {
	now money.Clock
}

// NewTemplateService builds a TemplateService reading the date from clock.
func NewTemplateService(clock money.Clock) *TemplateService {
	if clock == nil {
		clock = time.Now
	}
	return &TemplateService{now: clock}
}

// ReplaceVariables substitutes every {{key}} present in data in a single
// pass. Tokens without a value are left as written.
func (s *TemplateService) ReplaceVariables(template string, data map[string]string) string {
	if len(data) == 0 {
		return template
	}
	pairs := make([]string, 0, len(data)*2)
	for key, value := range data {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// PaymentTemplateData builds the variables for invoice reminders. Both day
// counts are always filled and never negative.
func (s *TemplateService) PaymentTemplateData(inv billing.Invoice, tenant tenants.Tenant) map[string]string {
	untilDue := money.DaysBetween(s.now(), inv.DueDate)
	data := tenantData(tenant)
	data["invoice_number"] = inv.InvoiceNumber
	data["invoice_date"] = money.FormatLong(inv.InvoiceDate)
	data["due_date"] = money.FormatLong(inv.DueDate)
	data["amount_due"] = money.Naira(inv.Amount)
	data["amount_balance"] = money.Naira(inv.Balance)
	data["days_until_due"] = strconv.Itoa(max(0, untilDue))
	data["days_overdue"] = strconv.Itoa(max(0, -untilDue))
	return data
}

// LeaseTemplateData builds the variables for lease expiry reminders.
func (s *TemplateService) LeaseTemplateData(tenant tenants.Tenant) map[string]string {
	data := tenantData(tenant)
	data["lease_start_date"] = "N/A"
	if !tenant.LeaseStartDate.IsZero() {
		data["lease_start_date"] = money.FormatLong(tenant.LeaseStartDate)
	}
	data["lease_end_date"] = "N/A"
	data["days_until_expiry"] = "0"
	if tenant.LeaseEndDate != nil {
		data["lease_end_date"] = money.FormatLong(*tenant.LeaseEndDate)
		data["days_until_expiry"] = strconv.Itoa(max(0, money.DaysBetween(s.now(), *tenant.LeaseEndDate)))
	}
	data["monthly_rent"] = money.Naira(tenant.MonthlyRent)
	return data
}

// Render applies data to the template subject and message.
func (s *TemplateService) Render(tpl Template, data map[string]string) Rendered {
	return Rendered{
		Subject: s.ReplaceVariables(tpl.Subject, data),
		Message: s.ReplaceVariables(tpl.Message, data),
	}
}

func tenantData(t tenants.Tenant) map[string]string {
	return map[string]string{
		"tenant_name":      t.Name(),
		"tenant_email":     t.Email(),
		"property_name":    t.PropertyName(),
		"unit_number":      t.UnitNumber(),
		"property_address": t.PropertyAddress(),
	}
}

// AvailableVariables lists the placeholders a template of the given type may use.
func AvailableVariables(typ Type) map[string]string {
	vars := map[string]string{
		"{{tenant_name}}":      "Tenant full name",
		"{{tenant_email}}":     "Tenant email address",
		"{{property_name}}":    "Property name",
		"{{unit_number}}":      "Unit number",
		"{{property_address}}": "Property full address",
	}
	switch typ {
	case TypePaymentDue, TypePaymentOverdue:
		vars["{{invoice_number}}"] = "Invoice number"
		vars["{{invoice_date}}"] = "Invoice date"
		vars["{{due_date}}"] = "Due date"
		vars["{{amount_due}}"] = "Amount due (formatted)"
		vars["{{amount_balance}}"] = "Outstanding balance (formatted)"
		vars["{{days_until_due}}"] = "Days until due date"
		vars["{{days_overdue}}"] = "Days overdue"
	case TypeLeaseExpiry:
		vars["{{lease_start_date}}"] = "Lease start date"
		vars["{{lease_end_date}}"] = "Lease end date"
		vars["{{monthly_rent}}"] = "Monthly rent amount (formatted)"
		vars["{{days_until_expiry}}"] = "Days until lease expiry"
	}
	return vars
}

const defaultDueMessage = "Dear {{tenant_name}},\n\nThis is a friendly reminder that your rent payment is due in {{days_until_due}} day(s).\n\n" +
	"Invoice Details:\nInvoice Number: {{invoice_number}}\nProperty: {{property_name}}\nUnit: {{unit_number}}\nAmount Due: {{amount_balance}}\nDue Date: {{due_date}}\n\n" +
	"Please ensure payment is made before the due date to avoid any late fees.\n\nThank you for your prompt attention to this matter.\n\n" + signOff

const defaultOverdueMessage = "Dear {{tenant_name}},\n\nURGENT: Your rent payment is now {{days_overdue}} day(s) overdue.\n\n" +
	"Invoice Details:\nInvoice Number: {{invoice_number}}\nProperty: {{property_name}}\nUnit: {{unit_number}}\nAmount Overdue: {{amount_balance}}\nDue Date: {{due_date}}\n\n" +
	"Please make payment immediately to avoid further action. Late fees may apply.\n\nIf you have already made this payment, please contact us immediately.\n\n" + signOff

const defaultLeaseMessage = "Dear {{tenant_name}},\n\nThis is a reminder that your lease agreement will expire in {{days_until_expiry}} day(s).\n\n" +
	"Lease Details:\nProperty: {{property_name}}\nUnit: {{unit_number}}\nLease End Date: {{lease_end_date}}\nMonthly Rent: {{monthly_rent}}\n\n" +
	"Please contact us to discuss lease renewal or move-out procedures.\n\n" + signOff

// DefaultTemplates returns the stock templates seeded into a new install.
func DefaultTemplates() []Template {
	three, thirty := 3, 30
	return []Template{
		{
			Name:          "Default Payment Due Reminder",
			Type:          TypePaymentDue,
			Subject:       "Payment Reminder: Invoice {{invoice_number}} Due Soon",
			Message:       defaultDueMessage,
			IsActive:      true,
			DaysBefore:    &three,
			VariablesHelp: AvailableVariables(TypePaymentDue),
		},
		{
			Name:          "Default Payment Overdue Reminder",
			Type:          TypePaymentOverdue,
			Subject:       "URGENT: Overdue Payment - Invoice {{invoice_number}}",
			Message:       defaultOverdueMessage,
			IsActive:      true,
			VariablesHelp: AvailableVariables(TypePaymentOverdue),
		},
		{
			Name:          "Default Lease Expiry Reminder",
			Type:          TypeLeaseExpiry,
			Subject:       "Lease Expiry Reminder - {{property_name}}",
			Message:       defaultLeaseMessage,
			IsActive:      true,
			DaysBefore:    &thirty,
			VariablesHelp: AvailableVariables(TypeLeaseExpiry),
		},
	}
}
