package core

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	TransactionType string

	Money struct {
		Cents int64
	}

	// Transaction is a single ledger entry. Immutable once created; there is
	// no edit operation, only append and delete.
	Transaction struct {
		ID          string          `json:"id"`
		Type        TransactionType `json:"type"`
		Amount      Money           `json:"amount"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
		Date        time.Time       `json:"date"`
	}

	// Ledger is the ordered transaction history of one user.
	// Insertion order is append order; ids are unique within a ledger.
	Ledger []Transaction

	User struct {
		Username     string    `json:"username"`
		Email        string    `json:"email"`
		Password     string    `json:"password,omitempty"` // stored in clear, matching the legacy data
		CreatedAt    time.Time `json:"createdAt"`
		LastModified time.Time `json:"lastModified"`
		DeviceID     string    `json:"deviceId,omitempty"`
	}
)

// Fixed taxonomies, validated at entry time only. Stored categories are
// never re-checked on read.
var (
	IncomeCategories  = []string{"Зарплата", "Подработка", "Инвестиции", "Подарки", "Другое"}
	ExpenseCategories = []string{"Продукты", "Транспорт", "Жилье", "Развлечения", "Здоровье", "Одежда", "Образование", "Другое"}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyDescription = errors.New("empty description")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrUsernameTooShort = errors.New("username must be at least 3 characters")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrWeakPassword     = errors.New("password must be at least 6 characters with one upper-case letter and one digit")
)

func (tt TransactionType) Valid() bool {
	return tt == Income || tt == Expense
}

// Categories returns the taxonomy for the transaction type.
func (tt TransactionType) Categories() []string {
	if tt == Income {
		return IncomeCategories
	}
	return ExpenseCategories
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	found := false
	for _, c := range t.Type.Categories() {
		if c == t.Category {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownCategory
	}
	return nil
}

// NewTransactionID builds an id from the creation instant plus a random
// suffix. Collisions are possible but treated as negligible, same as the
// stored data this replaces.
func NewTransactionID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "_" + randomSuffix(4)
}

// NewDeviceID generates an opaque per-device identifier.
func NewDeviceID(now time.Time) string {
	return "device_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + randomSuffix(5)
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms; keep id
		// generation total anyway.
		return strings.Repeat("0", n*2)
	}
	return hex.EncodeToString(b)
}

// Find returns the transaction with the given id, if present.
func (l Ledger) Find(id string) (Transaction, bool) {
	for _, t := range l {
		if t.ID == id {
			return t, true
		}
	}
	return Transaction{}, false
}

// IDs returns the set of transaction ids in the ledger.
func (l Ledger) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(l))
	for _, t := range l {
		ids[t.ID] = struct{}{}
	}
	return ids
}

// ValidateRegistration checks the fields a new account is created from.
func ValidateRegistration(username, email, password string) error {
	if len(strings.TrimSpace(username)) < 3 {
		return ErrUsernameTooShort
	}
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return ErrInvalidEmail
	}
	return ValidatePassword(password)
}

// ValidatePassword enforces the legacy policy: minimum six characters,
// at least one upper-case letter and one digit.
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return ErrWeakPassword
	}
	hasUpper, hasDigit := false, false
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasUpper || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}

// Public returns a copy of the user without the password, the shape stored
// in the session record.
func (u User) Public() User {
	return User{
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}
