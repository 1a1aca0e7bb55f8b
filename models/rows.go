package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RowFields is the tagged union of per-table payloads. Each variant carries
// only the fields valid for its table, so a malformed payload for the wrong
// table fails at decode time instead of travelling through the engine as an
// open-ended dynamic record.
type RowFields interface {
	// Table returns the TableIdentity the variant belongs to.
	Table() TableIdentity
}

// Customer represents a party the business sells to on credit.
type Customer struct {
	Name    string  `json:"name"`
	Phone   string  `json:"phone,omitempty"`
	Email   string  `json:"email,omitempty"`
	Address string  `json:"address,omitempty"`
	Balance float64 `json:"balance"`
	Notes   string  `json:"notes,omitempty"`
}

func (Customer) Table() TableIdentity { return TableCustomers }

// Supplier represents a party the business buys from.
type Supplier struct {
	Name    string  `json:"name"`
	Phone   string  `json:"phone,omitempty"`
	Email   string  `json:"email,omitempty"`
	Address string  `json:"address,omitempty"`
	Balance float64 `json:"balance"`
	Notes   string  `json:"notes,omitempty"`
}

func (Supplier) Table() TableIdentity { return TableSuppliers }

// Transaction is a single ledger movement against a customer or supplier.
type Transaction struct {
	PartyID     string    `json:"party_id"`
	PartyTable  string    `json:"party_table,omitempty"`
	Amount      float64   `json:"amount"`
	Direction   string    `json:"direction"` // "credit" or "debit"
	Description string    `json:"description,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (Transaction) Table() TableIdentity { return TableTransactions }

// Invoice is a billed document with totals computed by the caller.
type Invoice struct {
	CustomerID string    `json:"customer_id"`
	Number     string    `json:"number"`
	Amount     float64   `json:"amount"`
	TaxAmount  float64   `json:"tax_amount,omitempty"`
	Status     string    `json:"status"` // "draft", "sent", "paid"
	IssuedAt   time.Time `json:"issued_at"`
	DueAt      time.Time `json:"due_at,omitempty"`
}

func (Invoice) Table() TableIdentity { return TableInvoices }

// CashEntry is one line of the cash book.
type CashEntry struct {
	Amount      float64   `json:"amount"`
	Kind        string    `json:"kind"` // "in" or "out"
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description,omitempty"`
	EntryDate   time.Time `json:"entry_date"`
}

func (CashEntry) Table() TableIdentity { return TableCashEntries }

// StaffMember is an employee record used by payroll and attendance flows.
type StaffMember struct {
	Name       string  `json:"name"`
	Phone      string  `json:"phone,omitempty"`
	Role       string  `json:"role,omitempty"`
	MonthlyPay float64 `json:"monthly_pay,omitempty"`
	Active     bool    `json:"active"`
	JoinedAt   string  `json:"joined_at,omitempty"`
}

func (StaffMember) Table() TableIdentity { return TableStaff }

// AttendanceEntry marks one staff member's presence for one day.
type AttendanceEntry struct {
	StaffID string `json:"staff_id"`
	Day     string `json:"day"` // "2006-01-02"
	Status  string `json:"status"`
}

func (AttendanceEntry) Table() TableIdentity { return TableAttendance }

// BusinessSettings holds the per-owner business profile.
type BusinessSettings struct {
	BusinessName string `json:"business_name"`
	Currency     string `json:"currency,omitempty"`
	TaxNumber    string `json:"tax_number,omitempty"`
	Address      string `json:"address,omitempty"`
}

func (BusinessSettings) Table() TableIdentity { return TableBusinessSettings }

// UserProfile holds the owner's own account profile.
type UserProfile struct {
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	Language    string `json:"language,omitempty"`
}

func (UserProfile) Table() TableIdentity { return TableUserProfile }

// DecodeRowFields decodes raw JSON into the payload variant for table.
// Returns an error for unknown tables or payloads that do not match the
// variant's shape.
func DecodeRowFields(table TableIdentity, raw json.RawMessage) (RowFields, error) {
	var (
		fields RowFields
		err    error
	)

	switch table {
	case TableCustomers:
		var v Customer
		err = json.Unmarshal(raw, &v)
		fields = v
	case TableSuppliers:
		var v Supplier
		err = json.Unmarshal(raw, &v)
		fields = v
	case TableTransactions:
		var v Transaction
		err = json.Unmarshal(raw, &v)
		fields = v
	case TableInvoices:
		var v Invoice
		err = json.Unmarshal(raw, &v)
		fields = v
	case TableCashEntries:
		var v CashEntry
		err = json.Unmarshal(raw, &v)
		fields = v
	case TableStaff:
		var v StaffMember
		err = json.Unmarshal(raw, &v)
		fields = v
	case TableAttendance:
		var v AttendanceEntry
		err = json.Unmarshal(raw, &v)
		fields = v
	case TableBusinessSettings:
		var v BusinessSettings
		err = json.Unmarshal(raw, &v)
		fields = v
	case TableUserProfile:
		var v UserProfile
		err = json.Unmarshal(raw, &v)
		fields = v
	default:
		return nil, fmt.Errorf("decode row fields: unknown table %q", string(table))
	}

	if err != nil {
		return nil, fmt.Errorf("decode row fields for table %s: %w", table, err)
	}
	return fields, nil
}

// EncodeRowFields serialises a payload variant for persistence or the wire.
func EncodeRowFields(fields RowFields) (json.RawMessage, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode row fields for table %s: %w", fields.Table(), err)
	}
	return raw, nil
}

// Row is the envelope shared by every synchronised record: identity, owner
// scope, lifecycle timestamps, and the table-specific payload. A non-nil
// DeletedAt is a tombstone; soft-deleted rows are retained so that other
// devices' optimistic caches can observe the deletion.
type Row struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"owner_id"`
	Table     TableIdentity `json:"table"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	DeletedAt *time.Time    `json:"deleted_at,omitempty"`
	Fields    RowFields     `json:"fields,omitempty"`
}

// Deleted reports whether the row carries a tombstone.
func (r Row) Deleted() bool { return r.DeletedAt != nil }

// DecodeRow decodes raw JSON into a Row, defaulting the table discriminant
// to fallback when the payload omits it. Change feeds scope their payloads
// per table, so the envelope's own discriminant is optional there.
func DecodeRow(fallback TableIdentity, raw json.RawMessage) (Row, error) {
	var env rowEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Row{}, fmt.Errorf("decode row envelope: %w", err)
	}
	if env.Table == "" {
		env.Table = fallback
	}

	row := Row{
		ID:        env.ID,
		OwnerID:   env.OwnerID,
		Table:     env.Table,
		CreatedAt: env.CreatedAt,
		UpdatedAt: env.UpdatedAt,
		DeletedAt: env.DeletedAt,
	}

	if len(env.Fields) == 0 || string(env.Fields) == "null" {
		return row, nil
	}

	fields, err := DecodeRowFields(env.Table, env.Fields)
	if err != nil {
		return Row{}, err
	}
	row.Fields = fields
	return row, nil
}

type rowEnvelope struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Table     TableIdentity   `json:"table"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
	Fields    json.RawMessage `json:"fields,omitempty"`
}

// UnmarshalJSON decodes the envelope first, then dispatches the payload to
// the variant named by the table discriminant.
func (r *Row) UnmarshalJSON(data []byte) error {
	var env rowEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode row envelope: %w", err)
	}

	r.ID = env.ID
	r.OwnerID = env.OwnerID
	r.Table = env.Table
	r.CreatedAt = env.CreatedAt
	r.UpdatedAt = env.UpdatedAt
	r.DeletedAt = env.DeletedAt
	r.Fields = nil

	if len(env.Fields) == 0 || string(env.Fields) == "null" {
		return nil
	}

	fields, err := DecodeRowFields(env.Table, env.Fields)
	if err != nil {
		return err
	}
	r.Fields = fields
	return nil
}
