package reminders

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/money"
	"github.com/odyssey-erp/odyssey-rent/internal/tenants"
)

// Texts used when no active template matches.

const signOff = "Best regards,\nProperty Management Team"

func fallbackPaymentDue(inv billing.Invoice, tenant tenants.Tenant, daysBeforeDue int) Rendered {
	return Rendered{
		Subject: fmt.Sprintf("Payment Reminder: Invoice %s Due Soon", inv.InvoiceNumber),
		Message: fmt.Sprintf("Dear %s,\n\n"+
			"This is a friendly reminder that your rent payment is due in %d day(s).\n\n"+
			"Invoice Details:\n"+
			"Invoice Number: %s\n"+
			"Property: %s\n"+
			"Unit: %s\n"+
			"Amount Due: %s\n"+
			"Due Date: %s\n\n"+
			"Please ensure payment is made before the due date to avoid any late fees.\n\n"+
			"Thank you for your prompt attention to this matter.\n\n"+signOff,
			tenant.Name(), daysBeforeDue, inv.InvoiceNumber, tenant.PropertyName(), tenant.UnitNumber(),
			money.Naira(inv.Balance), money.FormatLong(inv.DueDate)),
	}
}

func fallbackOverdue(inv billing.Invoice, tenant tenants.Tenant, daysOverdue int) Rendered {
	return Rendered{
		Subject: fmt.Sprintf("URGENT: Overdue Payment - Invoice %s", inv.InvoiceNumber),
		Message: fmt.Sprintf("Dear %s,\n\n"+
			"URGENT: Your rent payment is now %d day(s) overdue.\n\n"+
			"Invoice Details:\n"+
			"Invoice Number: %s\n"+
			"Property: %s\n"+
			"Unit: %s\n"+
			"Amount Overdue: %s\n"+
			"Due Date: %s\n\n"+
			"Please make payment immediately to avoid further action. Late fees may apply.\n\n"+
			"If you have already made this payment, please contact us immediately.\n\n"+signOff,
			tenant.Name(), daysOverdue, inv.InvoiceNumber, tenant.PropertyName(), tenant.UnitNumber(),
			money.Naira(inv.Balance), money.FormatLong(inv.DueDate)),
	}
}

func fallbackLeaseExpiry(tenant tenants.Tenant, daysBeforeExpiry int) Rendered {
	end := "N/A"
	if tenant.LeaseEndDate != nil {
		end = money.FormatLong(*tenant.LeaseEndDate)
	}
	return Rendered{
		Subject: "Lease Expiry Reminder - " + tenant.PropertyName(),
		Message: fmt.Sprintf("Dear %s,\n\n"+
			"This is a reminder that your lease agreement will expire in %d day(s).\n\n"+
			"Lease Details:\n"+
			"Property: %s\n"+
			"Unit: %s\n"+
			"Lease End Date: %s\n\n"+
			"Please contact us to discuss lease renewal or move-out procedures.\n\n"+signOff,
			tenant.Name(), daysBeforeExpiry, tenant.PropertyName(), tenant.UnitNumber(), end),
	}
}
