package domain

import "strings"

// Client is a contact record. Template variables are looked up by field
// name; the well known fields are typed and everything else lives in Extra.
type Client struct {
	ID          int64
	Name        string
	Phone       string
	Email       string
	Amount      string
	DueDate     string
	AccountCode string
	Manager     string
	Extra       map[string]string
}

// Field returns the value of the named field and whether the client has it.
// Aliases cover the column names used by the collections spreadsheets.
func (c Client) Field(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "name", "nombre":
		return c.Name, true
	case "phone", "celular":
		return c.Phone, true
	case "email", "correo", "email_cliente":
		return c.Email, true
	case "amount", "monto":
		return c.Amount, true
	case "due_date", "duedate", "feccuota":
		return c.DueDate, true
	case "account_code", "accountcode", "codigo_cuenta":
		return c.AccountCode, true
	case "manager", "gestor":
		return c.Manager, true
	}
	v, ok := c.Extra[name]
	return v, ok
}
