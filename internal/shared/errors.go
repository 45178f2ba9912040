package shared

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-rent/internal/platform/httpx"
)

var (
	// ErrCSRFTokenMissing occurs when no CSRF token was supplied.
	ErrCSRFTokenMissing = fmt.Errorf("csrf token missing: %w", httpx.ErrForbidden)
	// ErrCSRFTokenMismatch occurs when the supplied token is wrong.
	ErrCSRFTokenMismatch = fmt.Errorf("csrf token mismatch: %w", httpx.ErrForbidden)
	// ErrNotSignedIn occurs when an action needs a session user.
	ErrNotSignedIn = fmt.Errorf("sign in required: %w", httpx.ErrUnauthorized)
)
