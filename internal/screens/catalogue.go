package screens

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"gestionale/internal/auth"
	"gestionale/internal/core"
	"gestionale/internal/menu"
)

// Catalogue is the ordered set of screen definitions.
type Catalogue struct {
	defs   []Definition
	byName map[string]Definition
}

// NewCatalogue indexes defs by name. Names must be unique.
func NewCatalogue(defs ...Definition) (*Catalogue, error) {
	c := &Catalogue{byName: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if _, dup := c.byName[d.Name()]; dup {
			return nil, fmt.Errorf("duplicate screen %q", d.Name())
		}
		c.byName[d.Name()] = d
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// Lookup returns the definition named name.
func (c *Catalogue) Lookup(name string) (Definition, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// All returns the definitions in catalogue order.
func (c *Catalogue) All() []Definition {
	return append([]Definition(nil), c.defs...)
}

// ScreenPath is the console URL of a screen.
func ScreenPath(name string) string { return "/app/" + name }

func (c *Catalogue) leaf(name string) menu.Spec {
	d := c.byName[name]
	return menu.Spec{Label: d.Title(), Path: ScreenPath(name), Permission: d.Permissions().List}
}

// Nav is the declarative sidebar structure.
func (c *Catalogue) Nav() []menu.Spec {
	return []menu.Spec{
		{Label: "Dashboard", Path: "/", Permission: auth.PermDashboardView},
		{Label: "Expenses", Children: []menu.Spec{
			c.leaf("expenses"),
			c.leaf("hotel-expenses"),
			c.leaf("expense-categories"),
		}},
		{Label: "Products", Children: []menu.Spec{
			c.leaf("product-categories"),
		}},
		{Label: "Human Resources", Children: []menu.Spec{
			c.leaf("salaries"),
		}},
		{Label: "Administration", Children: []menu.Spec{
			c.leaf("roles"),
			{Label: "Access Control", Children: []menu.Spec{
				c.leaf("permissions"),
			}},
		}},
		{Label: "Support", Children: []menu.Spec{
			c.leaf("tickets"),
		}},
	}
}

func idOf(id int64) string { return strconv.FormatInt(id, 10) }

func optionName(o *core.Option) string {
	if o == nil {
		return ""
	}
	return o.Name
}

func choices(names ...string) []core.Option {
	out := make([]core.Option, len(names))
	for i, n := range names {
		out[i] = core.Option{ID: int64(i + 1), Name: n}
	}
	return out
}

var (
	ticketStatuses   = choices("open", "in_progress", "resolved", "closed")
	ticketPriorities = choices("low", "medium", "high", "urgent")
)

// choiceValue maps a stored status/priority name to its option id.
func choiceValue(opts []core.Option, name string) string {
	for _, o := range opts {
		if strings.EqualFold(o.Name, name) {
			return idOf(o.ID)
		}
	}
	return ""
}

func categoryResource(slug, title, endpoint string, perms Perms) *Resource[core.Category] {
	return &Resource[core.Category]{
		Slug:  slug,
		Label: title,
		Path:  endpoint,
		Perm:  perms,
		Columns: []Column[core.Category]{
			{Header: "Name", Value: func(c core.Category) string { return c.Name }},
			{Header: "Description", Value: func(c core.Category) string { return c.Description }},
		},
		Inputs: []Field{
			{Name: "name", Label: "Name", Kind: Text, Required: true},
			{Name: "description", Label: "Description", Kind: Textarea},
		},
		ID:       func(c core.Category) string { return idOf(c.ID) },
		Describe: func(c core.Category) string { return c.Name },
		Values: func(c core.Category) url.Values {
			return url.Values{"name": {c.Name}, "description": {c.Description}}
		},
	}
}

// Default returns the console's screens.
func Default() *Catalogue {
	expenses := &Resource[core.Expense]{
		Slug:  "expenses",
		Label: "Expenses",
		Path:  "expenses",
		Perm:  Perms{auth.PermExpenseList, auth.PermExpenseCreate, auth.PermExpenseEdit, auth.PermExpenseDelete},
		Columns: []Column[core.Expense]{
			{Header: "Date", Value: func(e core.Expense) string { return e.Date.String() }},
			{Header: "Title", Value: func(e core.Expense) string { return e.Title }},
			{Header: "Category", Value: func(e core.Expense) string { return optionName(e.Category) }},
			{Header: "Amount", Value: func(e core.Expense) string { return e.Amount.String() }},
		},
		Inputs: []Field{
			{Name: "title", Label: "Title", Kind: Text, Required: true},
			{Name: "description", Label: "Description", Kind: Textarea},
			{Name: "amount", Label: "Amount", Kind: Amount, Required: true},
			{Name: "date", Label: "Date", Kind: Date, Required: true},
			{Name: "category_id", Label: "Category", Kind: Select, Required: true, OptionsEndpoint: "expense-categories"},
			{Name: "receipt", Label: "Receipt", Kind: File, Accept: "image/*,application/pdf"},
		},
		ID:       func(e core.Expense) string { return idOf(e.ID) },
		Describe: func(e core.Expense) string { return e.Title },
		Values: func(e core.Expense) url.Values {
			return url.Values{
				"title":       {e.Title},
				"description": {e.Description},
				"amount":      {e.Amount.Decimal()},
				"date":        {e.Date.String()},
				"category_id": {idOf(e.CategoryID)},
			}
		},
	}

	hotels := &Resource[core.HotelExpense]{
		Slug:  "hotel-expenses",
		Label: "Hotel Expenses",
		Path:  "hotel-expenses",
		Perm:  Perms{auth.PermHotelExpenseList, auth.PermHotelExpenseCreate, auth.PermHotelExpenseEdit, auth.PermHotelExpenseDelete},
		Columns: []Column[core.HotelExpense]{
			{Header: "Hotel", Value: func(h core.HotelExpense) string { return h.HotelName }},
			{Header: "City", Value: func(h core.HotelExpense) string { return h.City }},
			{Header: "Check-in", Value: func(h core.HotelExpense) string { return h.CheckIn.String() }},
			{Header: "Check-out", Value: func(h core.HotelExpense) string { return h.CheckOut.String() }},
			{Header: "Amount", Value: func(h core.HotelExpense) string { return h.Amount.String() }},
		},
		Inputs: []Field{
			{Name: "hotel_name", Label: "Hotel", Kind: Text, Required: true},
			{Name: "city", Label: "City", Kind: Text, Required: true},
			{Name: "check_in", Label: "Check-in", Kind: Date, Required: true},
			{Name: "check_out", Label: "Check-out", Kind: Date, Required: true},
			{Name: "amount", Label: "Amount", Kind: Amount, Required: true},
			{Name: "notes", Label: "Notes", Kind: Textarea},
			{Name: "image", Label: "Invoice image", Kind: File, Accept: "image/*"},
		},
		ID:       func(h core.HotelExpense) string { return idOf(h.ID) },
		Describe: func(h core.HotelExpense) string { return h.HotelName + ", " + h.City },
		Values: func(h core.HotelExpense) url.Values {
			return url.Values{
				"hotel_name": {h.HotelName},
				"city":       {h.City},
				"check_in":   {h.CheckIn.String()},
				"check_out":  {h.CheckOut.String()},
				"amount":     {h.Amount.Decimal()},
				"notes":      {h.Notes},
			}
		},
	}

	salaries := &Resource[core.Salary]{
		Slug:  "salaries",
		Label: "Salaries",
		Path:  "salaries",
		Perm:  Perms{auth.PermSalaryList, auth.PermSalaryCreate, auth.PermSalaryEdit, auth.PermSalaryDelete},
		Columns: []Column[core.Salary]{
			{Header: "Employee", Value: func(s core.Salary) string { return optionName(s.Employee) }},
			{Header: "Month", Value: func(s core.Salary) string { return s.Month }},
			{Header: "Amount", Value: func(s core.Salary) string { return s.Amount.String() }},
			{Header: "Paid at", Value: func(s core.Salary) string { return s.PaidAt.String() }},
		},
		Inputs: []Field{
			{Name: "employee_id", Label: "Employee", Kind: Select, Required: true, OptionsEndpoint: "users"},
			{Name: "month", Label: "Month", Kind: Month, Required: true},
			{Name: "amount", Label: "Amount", Kind: Amount, Required: true},
			{Name: "paid_at", Label: "Paid at", Kind: Date},
		},
		ID: func(s core.Salary) string { return idOf(s.ID) },
		Describe: func(s core.Salary) string {
			return strings.TrimSpace(optionName(s.Employee) + " " + s.Month)
		},
		Values: func(s core.Salary) url.Values {
			return url.Values{
				"employee_id": {idOf(s.EmployeeID)},
				"month":       {s.Month},
				"amount":      {s.Amount.Decimal()},
				"paid_at":     {s.PaidAt.String()},
			}
		},
	}

	roles := &Resource[core.Role]{
		Slug:  "roles",
		Label: "Roles",
		Path:  "roles",
		Perm:  Perms{auth.PermRoleList, auth.PermRoleCreate, auth.PermRoleEdit, auth.PermRoleDelete},
		Columns: []Column[core.Role]{
			{Header: "Name", Value: func(r core.Role) string { return r.Name }},
			{Header: "Permissions", Value: func(r core.Role) string { return strings.Join(r.PermissionNames(), ", ") }},
		},
		Inputs: []Field{
			{Name: "name", Label: "Name", Kind: Text, Required: true},
			{Name: "permissions", Label: "Permissions", Kind: MultiSelect, OptionsEndpoint: "permissions"},
		},
		ID:       func(r core.Role) string { return idOf(r.ID) },
		Describe: func(r core.Role) string { return r.Name },
		Values: func(r core.Role) url.Values {
			v := url.Values{"name": {r.Name}}
			for _, p := range r.Permissions {
				v.Add("permissions", idOf(p.ID))
			}
			return v
		},
	}

	permissions := &Resource[core.Permission]{
		Slug:  "permissions",
		Label: "Permissions",
		Path:  "permissions",
		Perm:  Perms{auth.PermPermissionList, auth.PermPermissionCreate, auth.PermPermissionEdit, auth.PermPermissionDelete},
		Columns: []Column[core.Permission]{
			{Header: "Name", Value: func(p core.Permission) string { return p.Name }},
		},
		Inputs: []Field{
			{Name: "name", Label: "Name", Kind: Text, Required: true},
		},
		ID:       func(p core.Permission) string { return idOf(p.ID) },
		Describe: func(p core.Permission) string { return p.Name },
		Values:   func(p core.Permission) url.Values { return url.Values{"name": {p.Name}} },
	}

	tickets := &Resource[core.Ticket]{
		Slug:  "tickets",
		Label: "Tickets",
		Path:  "tickets",
		Perm:  Perms{auth.PermTicketList, auth.PermTicketCreate, auth.PermTicketEdit, auth.PermTicketDelete},
		Columns: []Column[core.Ticket]{
			{Header: "Subject", Value: func(t core.Ticket) string { return t.Subject }},
			{Header: "Status", Value: func(t core.Ticket) string { return t.Status }},
			{Header: "Priority", Value: func(t core.Ticket) string { return t.Priority }},
			{Header: "Opened", Value: func(t core.Ticket) string { return t.CreatedAt.String() }},
		},
		Inputs: []Field{
			{Name: "subject", Label: "Subject", Kind: Text, Required: true},
			{Name: "description", Label: "Description", Kind: Textarea, Required: true},
			{Name: "status", Label: "Status", Kind: Select, Required: true, Choices: ticketStatuses},
			{Name: "priority", Label: "Priority", Kind: Select, Required: true, Choices: ticketPriorities},
		},
		ID:       func(t core.Ticket) string { return idOf(t.ID) },
		Describe: func(t core.Ticket) string { return t.Subject },
		Values: func(t core.Ticket) url.Values {
			return url.Values{
				"subject":     {t.Subject},
				"description": {t.Description},
				"status":      {choiceValue(ticketStatuses, t.Status)},
				"priority":    {choiceValue(ticketPriorities, t.Priority)},
			}
		},
	}

	c, err := NewCatalogue(
		expenses,
		hotels,
		categoryResource("expense-categories", "Expense Categories", "expense-categories", Perms{
			auth.PermExpenseCategoryList, auth.PermExpenseCategoryCreate, auth.PermExpenseCategoryEdit, auth.PermExpenseCategoryDelete,
		}),
		categoryResource("product-categories", "Product Categories", "product-categories", Perms{
			auth.PermProductCategoryList, auth.PermProductCategoryCreate, auth.PermProductCategoryEdit, auth.PermProductCategoryDelete,
		}),
		salaries,
		roles,
		permissions,
		tickets,
	)
	if err != nil {
		panic(err)
	}
	return c
}
