package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/customer"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

const (
	customerColumns = `id, COALESCE(user_id, ''), is_guest, email, first_name, last_name, phone,
		group_id, total_orders, total_spent, created_at, updated_at`

	getCustomerByIDSQL = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	getCustomerByUserIDSQL = `SELECT ` + customerColumns + ` FROM customers WHERE user_id = $1`

	// The unique (email, is_guest) index makes concurrent guest checkouts
	// for one email converge on a single row.
	upsertGuestSQL = `INSERT INTO customers
			(id, is_guest, email, first_name, last_name, phone, group_id, created_at, updated_at)
		VALUES ($1, TRUE, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (email, is_guest) DO UPDATE SET
			first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			phone = EXCLUDED.phone, updated_at = EXCLUDED.updated_at
		RETURNING ` + customerColumns

	createAccountSQL = `INSERT INTO users (id, email, password_hash, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING
		RETURNING id`

	// Prefer the row already linked to the user, then a registered row for
	// the email, then the guest row.
	lockAccountCandidateSQL = `SELECT ` + customerColumns + ` FROM customers
		WHERE user_id = $1 OR email = $2
		ORDER BY (user_id = $1) IS TRUE DESC, is_guest ASC
		LIMIT 1
		FOR UPDATE`

	linkCustomerSQL = `UPDATE customers
		SET user_id = COALESCE(user_id, $2), is_guest = FALSE,
			group_id = CASE WHEN group_id = $3 THEN '' ELSE group_id END, updated_at = $4
		WHERE id = $1
		RETURNING ` + customerColumns

	insertRegisteredSQL = `INSERT INTO customers
			(id, user_id, is_guest, email, first_name, last_name, phone, created_at, updated_at)
		VALUES ($1, $2, FALSE, $3, $4, $5, $6, $7, $7)
		RETURNING ` + customerColumns

	recordCustomerOrderSQL = `UPDATE customers
		SET total_orders = total_orders + 1, total_spent = total_spent + $2, updated_at = $3
		WHERE id = $1`

	hasAddressesSQL = `SELECT EXISTS (SELECT 1 FROM customer_addresses WHERE customer_id = $1)`

	insertCustomerAddressSQL = `INSERT INTO customer_addresses
			(customer_id, type, first_name, last_name, company, line1, line2, city, state,
			postal_code, country, phone, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	customerProfileSQL = `SELECT c.id, c.group_id, c.created_at,
			(SELECT count(*) FROM orders o WHERE o.customer_id = c.id AND o.status <> 'cancelled')
		FROM customers c WHERE c.id = $1`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	db  DBTX
	now func() time.Time
}

func (r *CustomerRepository) FindByID(ctx context.Context, id string) (*customer.Customer, error) {
	return r.one(ctx, getCustomerByIDSQL, id)
}

func (r *CustomerRepository) FindByUserID(ctx context.Context, userID string) (*customer.Customer, error) {
	return r.one(ctx, getCustomerByUserIDSQL, userID)
}

func (r *CustomerRepository) UpsertGuest(ctx context.Context, c customer.Contact) (*customer.Customer, error) {
	email := customer.NormalizeEmail(c.Email)
	return r.one(ctx, upsertGuestSQL,
		uuid.NewString(), email, c.FirstName, c.LastName, c.Phone, customer.GuestGroup, r.now(),
	)
}

func (r *CustomerRepository) CreateAccount(ctx context.Context, a customer.Account) (*customer.Account, error) {
	a.Email = customer.NormalizeEmail(a.Email)
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}

	var id string
	err := r.db.QueryRow(ctx, createAccountSQL, a.ID, a.Email, a.PasswordHash, a.Name, a.CreatedAt).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrEmailTaken
		}
		return nil, fmt.Errorf("creating account for %q: %w", a.Email, err)
	}
	return &a, nil
}

func (r *CustomerRepository) AttachAccount(ctx context.Context, c customer.Contact, userID string) (*customer.Customer, error) {
	email := customer.NormalizeEmail(c.Email)
	now := r.now()

	existing, err := r.one(ctx, lockAccountCandidateSQL, userID, email)
	switch {
	case err == nil:
		if existing.UserID == userID && !existing.IsGuest {
			return existing, nil
		}
		if existing.UserID != "" && existing.UserID != userID {
			return nil, fmt.Errorf("linking customer %q: %w", existing.ID, customer.ErrEmailTaken)
		}
		return r.one(ctx, linkCustomerSQL, existing.ID, userID, customer.GuestGroup, now)
	case errors.Is(err, customer.ErrNotFound):
		return r.one(ctx, insertRegisteredSQL,
			uuid.NewString(), userID, email, c.FirstName, c.LastName, c.Phone, now,
		)
	default:
		return nil, err
	}
}

func (r *CustomerRepository) RecordOrder(ctx context.Context, id string, total decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, recordCustomerOrderSQL, id, total, r.now())
	if err != nil {
		return fmt.Errorf("recording order for customer %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

func (r *CustomerRepository) HasAddresses(ctx context.Context, id string) (bool, error) {
	var has bool
	if err := r.db.QueryRow(ctx, hasAddressesSQL, id).Scan(&has); err != nil {
		return false, fmt.Errorf("checking addresses for customer %q: %w", id, err)
	}
	return has, nil
}

func (r *CustomerRepository) SaveAddresses(ctx context.Context, id string, addrs []order.Address) error {
	batch := &pgx.Batch{}
	for _, a := range addrs {
		batch.Queue(insertCustomerAddressSQL,
			id, a.Type, a.FirstName, a.LastName, a.Company, a.Line1, a.Line2, a.City, a.State,
			a.PostalCode, a.Country, a.Phone, true,
		)
	}
	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving addresses for customer %q: %w", id, err)
	}
	return nil
}

func (r *CustomerRepository) Profile(ctx context.Context, id string) (*customer.Profile, error) {
	var p customer.Profile
	err := r.db.QueryRow(ctx, customerProfileSQL, id).Scan(&p.CustomerID, &p.GroupID, &p.CreatedAt, &p.OrderCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("loading profile for customer %q: %w", id, err)
	}
	return &p, nil
}

func (r *CustomerRepository) one(ctx context.Context, sql string, args ...any) (*customer.Customer, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying customer: %w", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("querying customer: %w", err)
	}
	return &c, nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(
		&c.ID, &c.UserID, &c.IsGuest, &c.Email, &c.FirstName, &c.LastName, &c.Phone,
		&c.GroupID, &c.TotalOrders, &c.TotalSpent, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}
