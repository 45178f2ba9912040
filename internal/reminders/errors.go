package reminders

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-rent/internal/platform/httpx"
)

var (
	ErrNotFound         = fmt.Errorf("reminders: reminder %w", httpx.ErrNotFound)
	ErrTemplateNotFound = fmt.Errorf("reminders: template %w", httpx.ErrNotFound)
	// ErrTenantUserMissing is returned when the tenant has no account to notify.
	ErrTenantUserMissing = errors.New("reminders: tenant user not found")
	// ErrSMSUnsupported is returned for reminders that can only go out by SMS.
	ErrSMSUnsupported = errors.New("reminders: sms delivery is not available")
	// ErrNotPending is returned when another dispatcher already claimed the reminder.
	ErrNotPending = errors.New("reminders: reminder is not pending")
)
