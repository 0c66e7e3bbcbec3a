package storage

import (
	"strings"

	"github.com/dshills/recordindex/pkg/types"
)

// TenantFilter scopes a query to exactly one tenant. The zero value is
// invalid; build one with NewTenantFilter.
type TenantFilter struct {
	tenant      string
	recordTypes []types.RecordType
}

// NewTenantFilter returns a filter for tenant, or ErrTenantRequired when it is empty
func NewTenantFilter(tenant string, recordTypes ...types.RecordType) (TenantFilter, error) {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return TenantFilter{}, types.ErrTenantRequired
	}
	for _, t := range recordTypes {
		if !t.Valid() {
			return TenantFilter{}, types.ErrUnknownRecordType
		}
	}
	return TenantFilter{tenant: tenant, recordTypes: recordTypes}, nil
}

// MustTenantFilter is NewTenantFilter for known-good constant tenants
func MustTenantFilter(tenant string, recordTypes ...types.RecordType) TenantFilter {
	f, err := NewTenantFilter(tenant, recordTypes...)
	if err != nil {
		panic(err)
	}
	return f
}

// Tenant returns the scoped tenant ID
func (f TenantFilter) Tenant() string { return f.tenant }

// RecordTypes returns the optional record type restriction
func (f TenantFilter) RecordTypes() []types.RecordType { return f.recordTypes }

func (f TenantFilter) validate() error {
	if f.tenant == "" {
		return types.ErrTenantRequired
	}
	return nil
}

// filterKey enumerates the columns a predicate may reference. Values are
// always bound as parameters.
type filterKey int

const (
	keyTenant filterKey = iota
	keyRecordType
)

var filterColumns = map[filterKey]string{
	keyTenant:     "tenant_id",
	keyRecordType: "record_type",
}

type predicate struct {
	key    filterKey
	values []any
}

// where renders the filter as a SQL condition using ? placeholders, with
// columns qualified by alias. Callers rebind for their driver.
func (f TenantFilter) where(alias string) (string, []any, error) {
	if err := f.validate(); err != nil {
		return "", nil, err
	}

	preds := []predicate{{key: keyTenant, values: []any{f.tenant}}}
	if len(f.recordTypes) > 0 {
		values := make([]any, len(f.recordTypes))
		for i, t := range f.recordTypes {
			values[i] = string(t)
		}
		preds = append(preds, predicate{key: keyRecordType, values: values})
	}

	var b strings.Builder
	var args []any
	for i, p := range preds {
		if i > 0 {
			b.WriteString(" AND ")
		}
		if alias != "" {
			b.WriteString(alias)
			b.WriteByte('.')
		}
		b.WriteString(filterColumns[p.key])
		if len(p.values) == 1 {
			b.WriteString(" = ?")
		} else {
			b.WriteString(" IN (")
			b.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(p.values)), ", "))
			b.WriteByte(')')
		}
		args = append(args, p.values...)
	}
	return b.String(), args, nil
}
