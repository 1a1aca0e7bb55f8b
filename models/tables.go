package models

import "fmt"

// TableIdentity names one of the owner-scoped backend tables the engine
// synchronises. It is used as an explicit routing key everywhere; callers
// must always pass it, it is never inferred from a payload.
type TableIdentity string

const (
	TableCustomers        TableIdentity = "customers"
	TableSuppliers        TableIdentity = "suppliers"
	TableTransactions     TableIdentity = "transactions"
	TableInvoices         TableIdentity = "invoices"
	TableCashEntries      TableIdentity = "cash_entries"
	TableStaff            TableIdentity = "staff"
	TableAttendance       TableIdentity = "attendance"
	TableBusinessSettings TableIdentity = "business_settings"
	TableUserProfile      TableIdentity = "user_profile"
)

// AllTables lists every table the engine knows about, in a stable order.
func AllTables() []TableIdentity {
	return []TableIdentity{
		TableCustomers,
		TableSuppliers,
		TableTransactions,
		TableInvoices,
		TableCashEntries,
		TableStaff,
		TableAttendance,
		TableBusinessSettings,
		TableUserProfile,
	}
}

// Valid reports whether t names a known table.
func (t TableIdentity) Valid() bool {
	switch t {
	case TableCustomers, TableSuppliers, TableTransactions, TableInvoices,
		TableCashEntries, TableStaff, TableAttendance,
		TableBusinessSettings, TableUserProfile:
		return true
	}
	return false
}

// Validate returns an error when t does not name a known table.
func (t TableIdentity) Validate() error {
	if !t.Valid() {
		return fmt.Errorf("unknown table identity %q", string(t))
	}
	return nil
}
