package email

import "time"

// EmailTemplate defines the interface for email templates
type EmailTemplate interface {
	Subject() string
	TemplateName() string
}

// InvoiceEmail is the invoice for one order.
type InvoiceEmail struct {
	OrderID       string
	CustomerName  string
	CustomerEmail string
	OrderedAt     time.Time
	Status        string
	PaymentMethod string
	PaymentStatus string
	Address       string
	Items         []InvoiceLine
	Total         string // rupees, two decimals
}

func (e InvoiceEmail) Subject() string {
	return "HoverSale - Invoice for order " + e.OrderID
}

func (e InvoiceEmail) TemplateName() string {
	return "invoice.html"
}

// InvoiceLine is one row of the invoice table.
type InvoiceLine struct {
	ProductName string
	Quantity    int32
	UnitPrice   string
	LineTotal   string
}
