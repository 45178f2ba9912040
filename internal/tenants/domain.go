package tenants

import (
	"time"

	"github.com/shopspring/decimal"
)

// LeaseStatus enumerates the lifecycle of a tenancy.
type LeaseStatus string

const (
	LeaseActive     LeaseStatus = "active"
	LeaseExpired    LeaseStatus = "expired"
	LeaseTerminated LeaseStatus = "terminated"
)

// RoleTenant marks user accounts that belong to a renter.
const RoleTenant = "tenant"

// User is the login account attached to a tenant.
type User struct {
	ID    int64
	Name  string
	Email string
	Phone string
	Role  string
}

// Property groups units under one address.
type Property struct {
	ID      int64
	Name    string
	Address string
}

// Unit is a rentable space inside a property.
type Unit struct {
	ID         int64
	UnitNumber string
	Property   Property
}

// Tenant is a lease held by a user on a unit.
type Tenant struct {
	ID             int64
	UserID         *int64
	UnitID         int64
	LeaseStartDate time.Time
	LeaseEndDate   *time.Time
	MonthlyRent    decimal.Decimal
	LeaseStatus    LeaseStatus
	User           *User
	Unit           *Unit
}

// IsActive reports whether the lease is currently running.
func (t Tenant) IsActive() bool {
	return t.LeaseStatus == LeaseActive
}

// Name returns the account holder name or "Tenant" when no account is linked.
func (t Tenant) Name() string {
	if t.User != nil && t.User.Name != "" {
		return t.User.Name
	}
	return "Tenant"
}

// Email returns the account email, empty when unknown.
func (t Tenant) Email() string {
	if t.User == nil {
		return ""
	}
	return t.User.Email
}

// PropertyName returns the property label or "Property".
func (t Tenant) PropertyName() string {
	if t.Unit != nil && t.Unit.Property.Name != "" {
		return t.Unit.Property.Name
	}
	return "Property"
}

// UnitNumber returns the unit label, empty when unknown.
func (t Tenant) UnitNumber() string {
	if t.Unit == nil {
		return ""
	}
	return t.Unit.UnitNumber
}

// PropertyAddress returns the property address, empty when unknown.
func (t Tenant) PropertyAddress() string {
	if t.Unit == nil {
		return ""
	}
	return t.Unit.Property.Address
}

// OwnedBy reports whether the tenancy belongs to the given user account.
func (t Tenant) OwnedBy(userID int64) bool {
	return t.UserID != nil && *t.UserID == userID
}
