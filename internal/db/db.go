package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stockwatch/stockwatch/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// wrap maps driver errors onto the shared taxonomy so callers can classify
// with errors.Is without importing pgx.
func wrap(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
}

// CreateUser inserts a new user with a zero balance.
func (db *DB) CreateUser(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username) VALUES ($1) RETURNING id, username, balance, created_at",
		username).Scan(&user.ID, &user.Username, &user.Balance, &user.CreatedAt)
	if err != nil {
		return nil, wrap("create user", err)
	}
	return user, nil
}

// GetUser retrieves a user by id
func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, balance, created_at FROM users WHERE id = $1",
		id).Scan(&user.ID, &user.Username, &user.Balance, &user.CreatedAt)
	if err != nil {
		return nil, wrap("get user", err)
	}
	return user, nil
}

// ListUsers retrieves all users, newest first
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, username, balance, created_at FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, wrap("list users", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Balance, &u.CreatedAt); err != nil {
			return nil, wrap("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list users", err)
	}
	return users, nil
}

// AddToBalance atomically increments a user's balance and returns the new value.
func (db *DB) AddToBalance(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := db.Pool.QueryRow(ctx,
		"UPDATE users SET balance = balance + $1 WHERE id = $2 RETURNING balance",
		amount, userID).Scan(&balance)
	if err != nil {
		return decimal.Decimal{}, wrap("add to balance", err)
	}
	return balance, nil
}

// SetUserBalance overwrites a user's balance.
func (db *DB) SetUserBalance(ctx context.Context, userID int64, balance decimal.Decimal) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := db.Pool.QueryRow(ctx,
		"UPDATE users SET balance = $1 WHERE id = $2 RETURNING balance",
		balance, userID).Scan(&out)
	if err != nil {
		return decimal.Decimal{}, wrap("set balance", err)
	}
	return out, nil
}

// ChargeBalance debits a user inside a transaction, locking the row so a
// concurrent charge cannot overdraw. Fails with ErrInsufficientBalance
// when the balance does not cover the amount.
func (db *DB) ChargeBalance(ctx context.Context, userID int64, amount decimal.Decimal) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return wrap("charge balance", err)
	}
	defer tx.Rollback(ctx)

	var balance decimal.Decimal
	err = tx.QueryRow(ctx,
		"SELECT balance FROM users WHERE id = $1 FOR UPDATE",
		userID).Scan(&balance)
	if err != nil {
		return wrap("charge balance", err)
	}

	if balance.LessThan(amount) {
		return fmt.Errorf("charge balance: have %s, need %s: %w",
			balance.StringFixed(2), amount.StringFixed(2), models.ErrInsufficientBalance)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE users SET balance = balance - $1 WHERE id = $2",
		amount, userID); err != nil {
		return wrap("charge balance", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrap("charge balance", err)
	}
	return nil
}

// CreateProduct inserts a new product
func (db *DB) CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	out := &models.Product{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO products (name, price, global_link, au_link) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, name, price, global_link, au_link, created_at",
		p.Name, p.Price, p.GlobalLink, p.AULink).Scan(
		&out.ID, &out.Name, &out.Price, &out.GlobalLink, &out.AULink, &out.CreatedAt)
	if err != nil {
		return nil, wrap("create product", err)
	}
	return out, nil
}

// GetProduct retrieves a product by id
func (db *DB) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p := &models.Product{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, name, price, global_link, au_link, created_at FROM products WHERE id = $1",
		id).Scan(&p.ID, &p.Name, &p.Price, &p.GlobalLink, &p.AULink, &p.CreatedAt)
	if err != nil {
		return nil, wrap("get product", err)
	}
	return p, nil
}

// ListProducts retrieves all products ordered by name
func (db *DB) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, name, price, global_link, au_link, created_at FROM products ORDER BY name")
	if err != nil {
		return nil, wrap("list products", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.GlobalLink, &p.AULink, &p.CreatedAt); err != nil {
			return nil, wrap("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list products", err)
	}
	return products, nil
}

// UpdateProduct overwrites every mutable product field. Field merging is
// the catalog service's job; the store writes the full row.
func (db *DB) UpdateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	out := &models.Product{}
	err := db.Pool.QueryRow(ctx,
		"UPDATE products SET name = $1, price = $2, global_link = $3, au_link = $4 WHERE id = $5 "+
			"RETURNING id, name, price, global_link, au_link, created_at",
		p.Name, p.Price, p.GlobalLink, p.AULink, p.ID).Scan(
		&out.ID, &out.Name, &out.Price, &out.GlobalLink, &out.AULink, &out.CreatedAt)
	if err != nil {
		return nil, wrap("update product", err)
	}
	return out, nil
}

// OpenMonitor charges the product price and inserts the subscription in
// a single transaction. The user row is locked first, so concurrent
// subscribes for the same user serialize: the duplicate re-check and the
// balance check both see committed state, and a failed insert rolls the
// debit back.
func (db *DB) OpenMonitor(ctx context.Context, userID, productID int64, price decimal.Decimal, expiry time.Time) (*models.MonitorSubscription, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, wrap("open monitor", err)
	}
	defer tx.Rollback(ctx)

	var balance decimal.Decimal
	err = tx.QueryRow(ctx,
		"SELECT balance FROM users WHERE id = $1 FOR UPDATE",
		userID).Scan(&balance)
	if err != nil {
		return nil, wrap("open monitor", err)
	}

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM monitoring WHERE user_id = $1 AND product_id = $2 AND active AND expiry_date > now())",
		userID, productID).Scan(&exists)
	if err != nil {
		return nil, wrap("open monitor", err)
	}
	if exists {
		return nil, fmt.Errorf("open monitor: %w", models.ErrConflict)
	}

	if balance.LessThan(price) {
		return nil, fmt.Errorf("open monitor: have %s, need %s: %w",
			balance.StringFixed(2), price.StringFixed(2), models.ErrInsufficientBalance)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE users SET balance = balance - $1 WHERE id = $2",
		price, userID); err != nil {
		return nil, wrap("open monitor", err)
	}

	m := &models.MonitorSubscription{}
	err = tx.QueryRow(ctx,
		"INSERT INTO monitoring (user_id, product_id, expiry_date) VALUES ($1, $2, $3) "+
			"RETURNING id, user_id, product_id, active, expiry_date, created_at",
		userID, productID, expiry).Scan(
		&m.ID, &m.UserID, &m.ProductID, &m.Active, &m.ExpiryDate, &m.CreatedAt)
	if err != nil {
		return nil, wrap("open monitor", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrap("open monitor", err)
	}
	return m, nil
}

// CreateMonitor inserts an active monitoring subscription.
func (db *DB) CreateMonitor(ctx context.Context, userID, productID int64, expiry time.Time) (*models.MonitorSubscription, error) {
	m := &models.MonitorSubscription{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO monitoring (user_id, product_id, expiry_date) VALUES ($1, $2, $3) "+
			"RETURNING id, user_id, product_id, active, expiry_date, created_at",
		userID, productID, expiry).Scan(
		&m.ID, &m.UserID, &m.ProductID, &m.Active, &m.ExpiryDate, &m.CreatedAt)
	if err != nil {
		return nil, wrap("create monitor", err)
	}
	return m, nil
}

// GetMonitor retrieves a subscription by id, expired or not.
func (db *DB) GetMonitor(ctx context.Context, id int64) (*models.MonitorSubscription, error) {
	m := &models.MonitorSubscription{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, user_id, product_id, active, expiry_date, created_at FROM monitoring WHERE id = $1",
		id).Scan(&m.ID, &m.UserID, &m.ProductID, &m.Active, &m.ExpiryDate, &m.CreatedAt)
	if err != nil {
		return nil, wrap("get monitor", err)
	}
	return m, nil
}

// CancelMonitor soft-cancels a subscription. The row stays for audit.
func (db *DB) CancelMonitor(ctx context.Context, id int64) error {
	tag, err := db.Pool.Exec(ctx,
		"UPDATE monitoring SET active = FALSE WHERE id = $1 AND active", id)
	if err != nil {
		return wrap("cancel monitor", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cancel monitor: %w", models.ErrNotFound)
	}
	return nil
}

// HasActiveMonitor reports whether the user already has a live
// subscription for the product.
func (db *DB) HasActiveMonitor(ctx context.Context, userID, productID int64) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM monitoring WHERE user_id = $1 AND product_id = $2 AND active AND expiry_date > now())",
		userID, productID).Scan(&exists)
	if err != nil {
		return false, wrap("check monitor", err)
	}
	return exists, nil
}

const activeMonitorCols = "id, user_id, product_id, active, expiry_date, created_at"

// ActiveMonitorsForProduct lists live subscriptions for one product.
// Expiry is enforced at read time; expired rows stay for audit history.
func (db *DB) ActiveMonitorsForProduct(ctx context.Context, productID int64) ([]models.MonitorSubscription, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+activeMonitorCols+" FROM monitoring "+
			"WHERE product_id = $1 AND active AND expiry_date > now() ORDER BY expiry_date",
		productID)
	if err != nil {
		return nil, wrap("active monitors for product", err)
	}
	return scanMonitors(rows)
}

// ActiveMonitorsForUser lists live subscriptions for one user.
func (db *DB) ActiveMonitorsForUser(ctx context.Context, userID int64) ([]models.MonitorSubscription, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+activeMonitorCols+" FROM monitoring "+
			"WHERE user_id = $1 AND active AND expiry_date > now() ORDER BY expiry_date",
		userID)
	if err != nil {
		return nil, wrap("active monitors for user", err)
	}
	return scanMonitors(rows)
}

// ActiveMonitors lists every live subscription.
func (db *DB) ActiveMonitors(ctx context.Context) ([]models.MonitorSubscription, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+activeMonitorCols+" FROM monitoring "+
			"WHERE active AND expiry_date > now() ORDER BY expiry_date")
	if err != nil {
		return nil, wrap("active monitors", err)
	}
	return scanMonitors(rows)
}

func scanMonitors(rows pgx.Rows) ([]models.MonitorSubscription, error) {
	defer rows.Close()
	var monitors []models.MonitorSubscription
	for rows.Next() {
		var m models.MonitorSubscription
		if err := rows.Scan(&m.ID, &m.UserID, &m.ProductID, &m.Active, &m.ExpiryDate, &m.CreatedAt); err != nil {
			return nil, wrap("scan monitor", err)
		}
		monitors = append(monitors, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("scan monitors", err)
	}
	return monitors, nil
}

// ActiveMonitorDetails joins live subscriptions with user and product
// names for the admin list view.
func (db *DB) ActiveMonitorDetails(ctx context.Context) ([]models.MonitorDetail, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT m.id, m.user_id, m.product_id, m.active, m.expiry_date, m.created_at,
		       u.username, p.name
		FROM monitoring m
		JOIN users u ON m.user_id = u.id
		JOIN products p ON m.product_id = p.id
		WHERE m.active AND m.expiry_date > now()
		ORDER BY m.expiry_date
	`)
	if err != nil {
		return nil, wrap("monitor details", err)
	}
	defer rows.Close()

	var details []models.MonitorDetail
	for rows.Next() {
		var d models.MonitorDetail
		if err := rows.Scan(&d.ID, &d.UserID, &d.ProductID, &d.Active, &d.ExpiryDate, &d.CreatedAt,
			&d.Username, &d.ProductName); err != nil {
			return nil, wrap("scan monitor detail", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("monitor details", err)
	}
	return details, nil
}

// MonitoredProducts lists products with at least one live subscription,
// the coordinator's per-tick work list.
func (db *DB) MonitoredProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT p.id, p.name, p.price, p.global_link, p.au_link, p.created_at
		FROM products p
		JOIN monitoring m ON m.product_id = p.id
		WHERE m.active AND m.expiry_date > now()
		ORDER BY p.id
	`)
	if err != nil {
		return nil, wrap("monitored products", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.GlobalLink, &p.AULink, &p.CreatedAt); err != nil {
			return nil, wrap("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("monitored products", err)
	}
	return products, nil
}
