package tenants

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTenantContextDefaults(t *testing.T) {
	var bare Tenant
	require.Equal(t, "Tenant", bare.Name())
	require.Equal(t, "Property", bare.PropertyName())
	require.Empty(t, bare.Email())
	require.Empty(t, bare.UnitNumber())
	require.False(t, bare.OwnedBy(1))

	uid := int64(9)
	full := Tenant{
		UserID:      &uid,
		LeaseStatus: LeaseActive,
		User:        &User{ID: 9, Name: "Ada Obi", Email: "ada@example.com"},
		Unit:        &Unit{UnitNumber: "B2", Property: Property{Name: "Palm Court", Address: "12 Allen Ave"}},
	}
	require.True(t, full.IsActive())
	require.True(t, full.OwnedBy(9))
	require.Equal(t, "Ada Obi", full.Name())
	require.Equal(t, "Palm Court", full.PropertyName())
	require.Equal(t, "12 Allen Ave", full.PropertyAddress())
}
