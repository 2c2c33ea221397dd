package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stockwatch/stockwatch/internal/models"

	"github.com/shopspring/decimal"
)

type fakeStore struct {
	users  map[int64]*models.User
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[int64]*models.User)}
}

func (s *fakeStore) CreateUser(_ context.Context, username string) (*models.User, error) {
	s.nextID++
	u := &models.User{ID: s.nextID, Username: username, Balance: decimal.Zero}
	s.users[u.ID] = u
	out := *u
	return &out, nil
}

func (s *fakeStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", models.ErrNotFound)
	}
	out := *u
	return &out, nil
}

func (s *fakeStore) ListUsers(_ context.Context) ([]models.User, error) {
	var out []models.User
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, nil
}

func (s *fakeStore) AddToBalance(_ context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	u, ok := s.users[userID]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("add to balance: %w", models.ErrNotFound)
	}
	u.Balance = u.Balance.Add(amount)
	return u.Balance, nil
}

func (s *fakeStore) SetUserBalance(_ context.Context, userID int64, balance decimal.Decimal) (decimal.Decimal, error) {
	u, ok := s.users[userID]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("set balance: %w", models.ErrNotFound)
	}
	u.Balance = balance
	return u.Balance, nil
}

func (s *fakeStore) ChargeBalance(_ context.Context, userID int64, amount decimal.Decimal) error {
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("charge balance: %w", models.ErrNotFound)
	}
	if u.Balance.LessThan(amount) {
		return fmt.Errorf("charge balance: %w", models.ErrInsufficientBalance)
	}
	u.Balance = u.Balance.Sub(amount)
	return nil
}

func TestService_AddBalance(t *testing.T) {
	svc := NewService(newFakeStore())
	user, err := svc.CreateUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := svc.AddBalance(context.Background(), user.ID, decimal.RequireFromString("10.00")); err != nil {
		t.Fatalf("add 10.00: %v", err)
	}
	balance, err := svc.AddBalance(context.Background(), user.ID, decimal.RequireFromString("5.00"))
	if err != nil {
		t.Fatalf("add 5.00: %v", err)
	}
	if want := decimal.RequireFromString("15.00"); !balance.Equal(want) {
		t.Errorf("expected balance %s, got %s", want, balance)
	}

	if _, err := svc.AddBalance(context.Background(), user.ID, decimal.Zero); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error for zero amount, got %v", err)
	}
	if _, err := svc.AddBalance(context.Background(), user.ID, decimal.RequireFromString("-1")); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error for negative amount, got %v", err)
	}
	if _, err := svc.AddBalance(context.Background(), 999, decimal.RequireFromString("1")); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found for unknown user, got %v", err)
	}
}

// Repeated small additions must sum exactly: ten additions of 0.10 give
// precisely 1.00, with no float drift anywhere in the money path.
func TestService_AddBalance_NoDrift(t *testing.T) {
	svc := NewService(newFakeStore())
	user, err := svc.CreateUser(context.Background(), "bob")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	tenCents := decimal.RequireFromString("0.10")
	var balance decimal.Decimal
	for i := 0; i < 10; i++ {
		balance, err = svc.AddBalance(context.Background(), user.ID, tenCents)
		if err != nil {
			t.Fatalf("add #%d: %v", i+1, err)
		}
	}

	if want := decimal.RequireFromString("1.00"); !balance.Equal(want) {
		t.Errorf("expected exactly %s, got %s", want, balance)
	}
	if balance.String() != "1" && balance.StringFixed(2) != "1.00" {
		t.Errorf("unexpected representation: %s", balance)
	}
}

func TestService_SetBalance(t *testing.T) {
	svc := NewService(newFakeStore())
	user, err := svc.CreateUser(context.Background(), "carol")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	balance, err := svc.SetBalance(context.Background(), user.ID, decimal.RequireFromString("42.42"))
	if err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if want := decimal.RequireFromString("42.42"); !balance.Equal(want) {
		t.Errorf("expected %s, got %s", want, balance)
	}

	// Zero is allowed, negative is not.
	if _, err := svc.SetBalance(context.Background(), user.ID, decimal.Zero); err != nil {
		t.Errorf("setting zero balance should succeed, got %v", err)
	}
	if _, err := svc.SetBalance(context.Background(), user.ID, decimal.RequireFromString("-0.01")); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error for negative balance, got %v", err)
	}
	if _, err := svc.SetBalance(context.Background(), 999, decimal.Zero); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found for unknown user, got %v", err)
	}
}

func TestService_Charge(t *testing.T) {
	svc := NewService(newFakeStore())
	user, err := svc.CreateUser(context.Background(), "dave")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := svc.AddBalance(context.Background(), user.ID, decimal.RequireFromString("20.00")); err != nil {
		t.Fatalf("fund user: %v", err)
	}

	if err := svc.Charge(context.Background(), user.ID, decimal.RequireFromString("15.00")); err != nil {
		t.Fatalf("charge: %v", err)
	}
	err = svc.Charge(context.Background(), user.ID, decimal.RequireFromString("15.00"))
	if !errors.Is(err, models.ErrInsufficientBalance) {
		t.Errorf("expected insufficient balance, got %v", err)
	}

	got, err := svc.GetUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if want := decimal.RequireFromString("5.00"); !got.Balance.Equal(want) {
		t.Errorf("expected remaining balance %s, got %s", want, got.Balance)
	}
}

func TestService_CreateUser_Validation(t *testing.T) {
	svc := NewService(newFakeStore())

	if _, err := svc.CreateUser(context.Background(), "   "); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error for blank username, got %v", err)
	}

	long := make([]byte, 51)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := svc.CreateUser(context.Background(), string(long)); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error for long username, got %v", err)
	}
}
