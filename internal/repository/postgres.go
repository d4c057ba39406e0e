// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/masatreat/orders-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с занятым email.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrProductExists возвращается при попытке создать товар с занятым названием.
	ErrProductExists = errors.New("product already exists")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateOrderNumber возвращается при коллизии номера заказа.
	// Вызывающая сторона генерирует номер заново.
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, phone_number, roles)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.PhoneNumber, u.Roles,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, first_name, last_name, phone_number, roles, balance_kobo, created_at
		 FROM users
		 WHERE email = $1`,
		email,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.PhoneNumber, &u.Roles, &u.BalanceKobo, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetAdminPhoneNumbers возвращает номера телефонов администраторов для рассылки уведомлений.
func (r *PostgresRepository) GetAdminPhoneNumbers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT phone_number
		 FROM users
		 WHERE 'Admin' = ANY(roles) AND phone_number <> ''
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select admin phones: %w", err)
	}
	defer rows.Close()

	var phones []string
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			return nil, fmt.Errorf("scan phone: %w", err)
		}
		phones = append(phones, phone)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return phones, nil
}

// CreateProduct создаёт позицию каталога.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p *model.Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (name, price_ngn, stock, min_stock, min_order, category, description, image)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		p.Name, p.PriceNGN, p.Stock, p.MinStock, p.MinOrder, p.Category, p.Description, p.Image,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrProductExists, p.Name)
		}
		return 0, fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

// GetProducts возвращает все позиции каталога.
func (r *PostgresRepository) GetProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price_ngn, stock, min_stock, min_order, category, description, image, created_at, updated_at
		 FROM products
		 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceNGN, &p.Stock, &p.MinStock, &p.MinOrder,
			&p.Category, &p.Description, &p.Image, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// GetProductsByIDs возвращает товары по набору идентификаторов.
// Отсутствующие идентификаторы просто не попадают в результат.
func (r *PostgresRepository) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price_ngn, stock, min_stock, min_order, category, description, image, created_at, updated_at
		 FROM products
		 WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select products by ids: %w", err)
	}
	defer rows.Close()

	res := make(map[int64]model.Product, len(ids))
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceNGN, &p.Stock, &p.MinStock, &p.MinOrder,
			&p.Category, &p.Description, &p.Image, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateOrder атомарно сохраняет заказ вместе с позициями. Частично
// записанный заказ снаружи транзакции не наблюдаем.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	var createdAt time.Time
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (order_number, buyer_full_name, buyer_phone_number, buyer_email_address,
		                     total_price_ngn, delivery_type, delivery_address, delivery_fee_ngn,
		                     payment_on_delivery, payment_settled, status,
		                     is_scheduled, scheduled_date, scheduled_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id, created_at`,
		o.Number, o.Buyer.FullName, o.Buyer.PhoneNumber, o.Buyer.EmailAddress,
		o.TotalPriceNGN, string(o.Delivery.Type), o.Delivery.Address, o.Delivery.FeeNGN,
		o.PaymentOnDelivery, o.PaymentSettled, string(o.Status),
		o.IsScheduled, o.ScheduledDate, o.ScheduledTime,
	).Scan(&id, &createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateOrderNumber, o.Number)
		}
		return 0, fmt.Errorf("insert order: %w", err)
	}

	for i, item := range o.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, position) VALUES ($1, $2, $3, $4)`,
			id, item.ProductID, item.Quantity, i,
		)
		if err != nil {
			return 0, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	o.ID = id
	o.CreatedAt = createdAt

	return id, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var deliveryType, status string
	err := row.Scan(&o.ID, &o.Number, &o.Buyer.FullName, &o.Buyer.PhoneNumber, &o.Buyer.EmailAddress,
		&o.TotalPriceNGN, &deliveryType, &o.Delivery.Address, &o.Delivery.FeeNGN,
		&o.PaymentOnDelivery, &o.PaymentSettled, &status,
		&o.IsScheduled, &o.ScheduledDate, &o.ScheduledTime, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Delivery.Type = model.DeliveryType(deliveryType)
	o.Status = model.OrderStatus(status)
	return &o, nil
}

const orderColumns = `id, order_number, buyer_full_name, buyer_phone_number, buyer_email_address,
	 total_price_ngn, delivery_type, delivery_address, delivery_fee_ngn,
	 payment_on_delivery, payment_settled, status,
	 is_scheduled, scheduled_date, scheduled_time, created_at`

// GetOrderByID возвращает заказ с позициями по идентификатору.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, id int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := r.getOrderItems(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]

	return o, nil
}

// GetOrders возвращает заказы, опционально отфильтрованные по статусу.
func (r *PostgresRepository) GetOrders(ctx context.Context, status *model.OrderStatus) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	var ids []int64
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	items, err := r.getOrderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, nil
}

func (r *PostgresRepository) getOrderItems(ctx context.Context, orderIDs []int64) (map[int64][]model.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT order_id, product_id, quantity
		 FROM order_items
		 WHERE order_id = ANY($1)
		 ORDER BY order_id, position`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	res := make(map[int64][]model.OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID int64
		var item model.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		res[orderID] = append(res[orderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateOrderStatus переводит заказ в указанный статус, ставит признак
// оплаты в переданное значение и возвращает обновлённый заказ.
// Решение о зачёте оплаты принимает сервисный слой.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, settled bool) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE orders
		 SET status = $2,
		     payment_settled = $3
		 WHERE id = $1
		 RETURNING `+orderColumns,
		id, string(status), settled,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	items, err := r.getOrderItems(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]

	return o, nil
}

// ApplyTopUp зачисляет подтверждённый платёж на баланс пользователя не
// более одного раза. Повторный референс — это успех без зачисления:
// возвращается текущий баланс и нулевая сумма. Строка пользователя
// блокируется на время транзакции, чтобы параллельные проверки одного
// референса сериализовались.
func (r *PostgresRepository) ApplyTopUp(ctx context.Context, email, reference string, amountKobo int64) (balanceKobo, depositedKobo int64, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID int64
	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT id, balance_kobo FROM users WHERE email = $1 FOR UPDATE`,
		email,
	).Scan(&userID, &balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrUserNotFound
		}
		return 0, 0, fmt.Errorf("lock user for update: %w", err)
	}

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO processed_references (user_id, reference) VALUES ($1, $2)
		 ON CONFLICT (user_id, reference) DO NOTHING`,
		userID, reference,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("insert reference: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		if err := tx.Commit(ctx); err != nil {
			return 0, 0, fmt.Errorf("commit tx: %w", err)
		}
		return balance, 0, nil
	}

	err = tx.QueryRow(ctx,
		`UPDATE users SET balance_kobo = balance_kobo + $2 WHERE id = $1 RETURNING balance_kobo`,
		userID, amountKobo,
	).Scan(&balance)
	if err != nil {
		return 0, 0, fmt.Errorf("update balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit tx: %w", err)
	}

	return balance, amountKobo, nil
}
