package memory

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/customer"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository.
type CustomerRepository struct {
	db  db
	now func() time.Time
}

func (r *CustomerRepository) FindByID(_ context.Context, id string) (*customer.Customer, error) {
	var out *customer.Customer
	err := r.db.with(func(st *state) error {
		c, ok := st.customers[id]
		if !ok {
			return customer.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *CustomerRepository) FindByUserID(_ context.Context, userID string) (*customer.Customer, error) {
	var out *customer.Customer
	err := r.db.with(func(st *state) error {
		for _, c := range st.customers {
			if c.UserID == userID {
				out = &c
				return nil
			}
		}
		return customer.ErrNotFound
	})
	return out, err
}

func findByEmail(st *state, email string, guest bool) (customer.Customer, bool) {
	for _, c := range st.customers {
		if c.IsGuest == guest && c.Email == email {
			return c, true
		}
	}
	return customer.Customer{}, false
}

func (r *CustomerRepository) UpsertGuest(_ context.Context, contact customer.Contact) (*customer.Customer, error) {
	email := customer.NormalizeEmail(contact.Email)
	var out customer.Customer
	err := r.db.with(func(st *state) error {
		now := r.now()
		c, ok := findByEmail(st, email, true)
		if !ok {
			c = customer.Customer{
				ID:         uuid.NewString(),
				IsGuest:    true,
				Email:      email,
				GroupID:    customer.GuestGroup,
				TotalSpent: decimal.Zero,
				CreatedAt:  now,
			}
		}
		c.FirstName, c.LastName, c.Phone = contact.FirstName, contact.LastName, contact.Phone
		c.UpdatedAt = now
		st.customers[c.ID] = c
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *CustomerRepository) CreateAccount(_ context.Context, a customer.Account) (*customer.Account, error) {
	a.Email = customer.NormalizeEmail(a.Email)
	err := r.db.with(func(st *state) error {
		for _, existing := range st.accounts {
			if existing.Email == a.Email {
				return customer.ErrEmailTaken
			}
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = r.now()
		}
		st.accounts[a.ID] = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *CustomerRepository) AttachAccount(_ context.Context, contact customer.Contact, userID string) (*customer.Customer, error) {
	email := customer.NormalizeEmail(contact.Email)
	var out customer.Customer
	err := r.db.with(func(st *state) error {
		now := r.now()
		for _, c := range st.customers {
			if c.UserID == userID {
				out = c
				return nil
			}
		}

		c, ok := findByEmail(st, email, false)
		if !ok {
			c, ok = findByEmail(st, email, true)
		}
		if !ok {
			c = customer.Customer{
				ID:         uuid.NewString(),
				Email:      email,
				FirstName:  contact.FirstName,
				LastName:   contact.LastName,
				Phone:      contact.Phone,
				TotalSpent: decimal.Zero,
				CreatedAt:  now,
			}
		}
		if c.UserID != "" && c.UserID != userID {
			return errors.Wrapf(customer.ErrEmailTaken, "customer %s", c.ID)
		}
		c.UserID = userID
		c.IsGuest = false
		if c.GroupID == customer.GuestGroup {
			c.GroupID = ""
		}
		c.UpdatedAt = now
		st.customers[c.ID] = c
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *CustomerRepository) RecordOrder(_ context.Context, id string, total decimal.Decimal) error {
	return r.db.with(func(st *state) error {
		c, ok := st.customers[id]
		if !ok {
			return customer.ErrNotFound
		}
		c.TotalOrders++
		c.TotalSpent = c.TotalSpent.Add(total)
		c.UpdatedAt = r.now()
		st.customers[id] = c
		return nil
	})
}

func (r *CustomerRepository) HasAddresses(_ context.Context, id string) (bool, error) {
	var has bool
	err := r.db.with(func(st *state) error {
		has = len(st.addresses[id]) > 0
		return nil
	})
	return has, err
}

func (r *CustomerRepository) SaveAddresses(_ context.Context, id string, addrs []order.Address) error {
	return r.db.with(func(st *state) error {
		st.addresses[id] = append([]order.Address(nil), addrs...)
		return nil
	})
}

func (r *CustomerRepository) Profile(_ context.Context, id string) (*customer.Profile, error) {
	var out *customer.Profile
	err := r.db.with(func(st *state) error {
		c, ok := st.customers[id]
		if !ok {
			return customer.ErrNotFound
		}
		p := customer.Profile{CustomerID: c.ID, GroupID: c.GroupID, CreatedAt: c.CreatedAt}
		for _, o := range st.orders {
			if o.CustomerID == id && o.Status != order.StatusCancelled {
				p.OrderCount++
			}
		}
		out = &p
		return nil
	})
	return out, err
}
