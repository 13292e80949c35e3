package enums

// InvoiceStatus is the state recorded on invoice ledger rows.
type InvoiceStatus string

// Ledger rows are written once the provider reports the invoice as paid.
const InvoiceStatusPaid InvoiceStatus = "PAID"

// String implements fmt.Stringer.
func (s InvoiceStatus) String() string {
	return string(s)
}
