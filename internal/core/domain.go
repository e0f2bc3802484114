package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type (
	// Date is a calendar day as exchanged with the backend ("2006-01-02").
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Option is an id/name pair used for nested references and select lists.
	Option struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	Expense struct {
		ID          int64   `json:"id"`
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Amount      Money   `json:"amount"`
		Date        Date    `json:"date"`
		CategoryID  int64   `json:"category_id"`
		Category    *Option `json:"category,omitempty"`
		Receipt     string  `json:"receipt,omitempty"`
	}

	HotelExpense struct {
		ID        int64  `json:"id"`
		HotelName string `json:"hotel_name"`
		City      string `json:"city"`
		CheckIn   Date   `json:"check_in"`
		CheckOut  Date   `json:"check_out"`
		Amount    Money  `json:"amount"`
		Notes     string `json:"notes,omitempty"`
		Image     string `json:"image,omitempty"`
	}

	Category struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}

	Salary struct {
		ID         int64   `json:"id"`
		EmployeeID int64   `json:"employee_id"`
		Employee   *Option `json:"employee,omitempty"`
		Amount     Money   `json:"amount"`
		Month      string  `json:"month"`
		PaidAt     Date    `json:"paid_at"`
	}

	Permission struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	Role struct {
		ID          int64        `json:"id"`
		Name        string       `json:"name"`
		Permissions []Permission `json:"permissions"`
	}

	Ticket struct {
		ID          int64  `json:"id"`
		Subject     string `json:"subject"`
		Description string `json:"description"`
		Status      string `json:"status"`
		Priority    string `json:"priority"`
		CreatedAt   Date   `json:"created_at"`
	}

	User struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  *Role  `json:"role,omitempty"`
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts "2006-01-02" or an RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Date{Time: t}, nil
	}
	// Laravel style "2006-01-02 15:04:05"
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return Date{Time: t}, nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// String renders the date in form-input format, or "" when unset.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, data)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a JSON number, a decimal string or null.
func (m *Money) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*m = Money{}
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidAmount, data)
		}
	}
	cents, err := parseSignedCents(raw)
	if err != nil {
		return err
	}
	m.Cents = cents
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal()), nil
}

func parseSignedCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if strings.Trim(s, "0.,") == "" && s != "" {
		return 0, nil
	}
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if neg {
		cents = -cents
	}
	return cents, nil
}

// Decimal renders the amount with a dot separator, e.g. "12.50".
func (m Money) Decimal() string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + strconv.FormatInt(cents/100, 10) + "." + fmt.Sprintf("%02d", cents%100)
}

// PermissionNames flattens the role's permission list.
func (r *Role) PermissionNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		names = append(names, p.Name)
	}
	return names
}

// RoleName returns the user's role name or "" when none is attached.
func (u User) RoleName() string {
	if u.Role == nil {
		return ""
	}
	return u.Role.Name
}
