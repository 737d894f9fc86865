package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/mindfulmate/mindful/pkg/chat"
	"github.com/mindfulmate/mindful/pkg/observability"
)

// Options configures the database connection pool
type Options struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// Open connects to the database and verifies the connection. SQLite is
// limited to a single open connection since it serializes writers anyway.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	switch opts.Driver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}

	db, err := sql.Open(opts.Driver, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", opts.Driver, err)
	}

	if opts.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	timeout := opts.PingTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", opts.Driver, err)
	}

	return db, nil
}

// SQLStore implements Store over database/sql
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *observability.Logger
	now    func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open database. driver is "postgres" or "sqlite3".
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{
		db:     db,
		driver: driver,
		logger: observability.NewLogger(observability.ErrorLevel, io.Discard),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger sets the store's logger
func (s *SQLStore) WithLogger(logger *observability.Logger) *SQLStore {
	s.logger = logger.WithField("component", "storage")
	return s
}

// DB exposes the underlying handle for health checks
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a user and fills in its ID and creation time
func (s *SQLStore) CreateUser(ctx context.Context, user *User) error {
	if user.Role == "" {
		user.Role = RoleUser
	}
	if user.ChatCount < 0 {
		return fmt.Errorf("chat count must not be negative")
	}
	user.CreatedAt = s.now()

	query := `
		INSERT INTO users (email, name, role, chat_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		user.Email, user.Name, string(user.Role), user.ChatCount, user.CreatedAt,
	).Scan(&user.ID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser returns a user by ID
func (s *SQLStore) GetUser(ctx context.Context, id int64) (*User, error) {
	query := `SELECT id, email, name, role, chat_count, created_at FROM users WHERE id = $1`

	var u User
	var role string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.Name, &role, &u.ChatCount, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = Role(role)
	return &u, nil
}

// ChatCount returns the user's remaining message credits
func (s *SQLStore) ChatCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT chat_count FROM users WHERE id = $1`, userID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get chat count: %w", err)
	}
	return count, nil
}

// ListMessages returns the user's thread in server order
func (s *SQLStore) ListMessages(ctx context.Context, userID int64) ([]chat.Message, error) {
	query := `
		SELECT id, sender_type, content, created_at
		FROM messages
		WHERE user_id = $1
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var m chat.Message
		var sender string
		if err := rows.Scan(&m.ID, &sender, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Sender = chat.Sender(sender)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// SendUserMessage spends one credit and stores the message in a single
// transaction. It returns ErrInsufficientCredits when the balance is zero
// and ErrNotFound when the user does not exist.
func (s *SQLStore) SendUserMessage(ctx context.Context, userID int64, content string) (*chat.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET chat_count = chat_count - 1 WHERE id = $1 AND chat_count > 0`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to spend credit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to spend credit: %w", err)
	}
	if n == 0 {
		if err := userExists(ctx, tx, userID); err != nil {
			return nil, err
		}
		return nil, ErrInsufficientCredits
	}

	msg, err := s.insertMessage(ctx, tx, userID, chat.SenderUser, content)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return msg, nil
}

// AppendExpertMessage stores an expert reply in the user's thread
func (s *SQLStore) AppendExpertMessage(ctx context.Context, userID int64, content string) (*chat.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := userExists(ctx, tx, userID); err != nil {
		return nil, err
	}
	msg, err := s.insertMessage(ctx, tx, userID, chat.SenderExpert, content)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return msg, nil
}

func userExists(ctx context.Context, tx *sql.Tx, userID int64) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = $1`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	return nil
}

func (s *SQLStore) insertMessage(ctx context.Context, tx *sql.Tx, userID int64, sender chat.Sender, content string) (*chat.Message, error) {
	msg := &chat.Message{Sender: sender, Content: content, CreatedAt: s.now()}
	query := `
		INSERT INTO messages (user_id, sender_type, content, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, query, userID, string(sender), content, msg.CreatedAt).Scan(&msg.ID); err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return msg, nil
}

// CreatePurchase inserts a pending purchase
func (s *SQLStore) CreatePurchase(ctx context.Context, p *Purchase) error {
	p.Status = PurchasePending
	p.CreatedAt = s.now()

	query := `
		INSERT INTO purchases (user_id, purchase_order_id, credits, amount_paisa, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		p.UserID, p.OrderID, p.Credits, p.AmountPaisa, string(p.Status), p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	return nil
}

// SetPurchasePidx records the gateway's payment identifier
func (s *SQLStore) SetPurchasePidx(ctx context.Context, purchaseID int64, pidx string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE purchases SET pidx = $1 WHERE id = $2`, pidx, purchaseID)
	if err != nil {
		return fmt.Errorf("failed to set pidx: %w", err)
	}
	return expectOneRow(res)
}

const purchaseColumns = `id, user_id, purchase_order_id, COALESCE(pidx, ''), credits, amount_paisa,
		status, gateway_status, transaction_id, created_at, settled_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPurchase(row rowScanner) (*Purchase, error) {
	var p Purchase
	var status string
	var settledAt sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &p.Pidx, &p.Credits, &p.AmountPaisa,
		&status, &p.GatewayStatus, &p.TransactionID, &p.CreatedAt, &settledAt)
	if err != nil {
		return nil, err
	}
	p.Status = PurchaseStatus(status)
	if settledAt.Valid {
		t := settledAt.Time
		p.SettledAt = &t
	}
	return &p, nil
}

func getPurchaseByPidx(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}, pidx string) (*Purchase, error) {
	p, err := scanPurchase(q.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE pidx = $1`, pidx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return p, nil
}

// GetPurchaseByPidx returns the purchase for a gateway payment identifier
func (s *SQLStore) GetPurchaseByPidx(ctx context.Context, pidx string) (*Purchase, error) {
	return getPurchaseByPidx(ctx, s.db, pidx)
}

// CompletePurchase moves a pending purchase to completed and grants its
// credits in the same transaction
func (s *SQLStore) CompletePurchase(ctx context.Context, pidx, transactionID string) (*Purchase, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	settled, err := s.settle(ctx, tx, pidx, PurchaseCompleted, "Completed", transactionID)
	if err != nil {
		return nil, err
	}
	p, err := getPurchaseByPidx(ctx, tx, pidx)
	if err != nil {
		return nil, err
	}
	if !settled {
		return p, ErrAlreadySettled
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET chat_count = chat_count + $1 WHERE id = $2`,
		p.Credits, p.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to grant credits: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return nil, fmt.Errorf("failed to grant credits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}
	return p, nil
}

// FailPurchase moves a pending purchase to failed, recording the gateway
// status that caused it
func (s *SQLStore) FailPurchase(ctx context.Context, pidx, gatewayStatus string) (*Purchase, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	settled, err := s.settle(ctx, tx, pidx, PurchaseFailed, gatewayStatus, "")
	if err != nil {
		return nil, err
	}
	p, err := getPurchaseByPidx(ctx, tx, pidx)
	if err != nil {
		return nil, err
	}
	if !settled {
		return p, ErrAlreadySettled
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}
	return p, nil
}

// settle performs the guarded pending -> final transition and reports
// whether this call made it
func (s *SQLStore) settle(ctx context.Context, tx *sql.Tx, pidx string, status PurchaseStatus, gatewayStatus, transactionID string) (bool, error) {
	query := `
		UPDATE purchases
		SET status = $1, gateway_status = $2, transaction_id = $3, settled_at = $4
		WHERE pidx = $5 AND status = 'pending'
	`
	res, err := tx.ExecContext(ctx, query, string(status), gatewayStatus, transactionID, s.now(), pidx)
	if err != nil {
		return false, fmt.Errorf("failed to settle purchase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to settle purchase: %w", err)
	}
	return n == 1, nil
}

// ListPendingPurchases returns pending purchases created before the cutoff
// that already have a gateway identifier, oldest first
func (s *SQLStore) ListPendingPurchases(ctx context.Context, createdBefore time.Time, limit int) ([]*Purchase, error) {
	query := `SELECT ` + purchaseColumns + `
		FROM purchases
		WHERE status = 'pending' AND pidx IS NOT NULL AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, createdBefore.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending purchases: %w", err)
	}
	defer rows.Close()

	var purchases []*Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

const chatRequestColumns = `r.id, r.user_id, COALESCE(u.name, ''), r.session_duration, r.status, r.paid, r.requested_at, r.updated_at`

func scanChatRequest(row rowScanner) (*chat.ChatRequest, error) {
	var cr chat.ChatRequest
	var status string
	var updatedAt sql.NullTime
	if err := row.Scan(&cr.ID, &cr.UserID, &cr.UserName, &cr.SessionDuration, &status, &cr.Paid, &cr.RequestedAt, &updatedAt); err != nil {
		return nil, err
	}
	cr.Status = chat.ChatRequestStatus(status)
	if updatedAt.Valid {
		t := updatedAt.Time
		cr.UpdatedAt = &t
	}
	return &cr, nil
}

func (s *SQLStore) getChatRequest(ctx context.Context, tx *sql.Tx, id int64) (*chat.ChatRequest, error) {
	query := `SELECT ` + chatRequestColumns + `
		FROM chat_session_requests r
		LEFT JOIN users u ON u.id = r.user_id
		WHERE r.id = $1`
	cr, err := scanChatRequest(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat request: %w", err)
	}
	return cr, nil
}

// CreateChatRequest records a pending, unpaid session request
func (s *SQLStore) CreateChatRequest(ctx context.Context, userID int64, sessionDuration string) (*chat.ChatRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := userExists(ctx, tx, userID); err != nil {
		return nil, err
	}

	var id int64
	query := `
		INSERT INTO chat_session_requests (user_id, session_duration, status, paid, requested_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, query,
		userID, sessionDuration, string(chat.ChatRequestPending), false, s.now(),
	).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}

	cr, err := s.getChatRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chat request: %w", err)
	}
	return cr, nil
}

// ListChatRequests returns all session requests, newest first
func (s *SQLStore) ListChatRequests(ctx context.Context) ([]*chat.ChatRequest, error) {
	query := `SELECT ` + chatRequestColumns + `
		FROM chat_session_requests r
		LEFT JOIN users u ON u.id = r.user_id
		ORDER BY r.requested_at DESC, r.id DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat requests: %w", err)
	}
	defer rows.Close()

	requests := make([]*chat.ChatRequest, 0)
	for rows.Next() {
		cr, err := scanChatRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat request: %w", err)
		}
		requests = append(requests, cr)
	}
	return requests, rows.Err()
}

// UpdateChatRequest sets the status of a request and, when paid is non-nil,
// its paid flag
func (s *SQLStore) UpdateChatRequest(ctx context.Context, id int64, status chat.ChatRequestStatus, paid *bool) (*chat.ChatRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var res sql.Result
	if paid != nil {
		res, err = tx.ExecContext(ctx,
			`UPDATE chat_session_requests SET status = $1, paid = $2, updated_at = $3 WHERE id = $4`,
			string(status), *paid, s.now(), id)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE chat_session_requests SET status = $1, updated_at = $2 WHERE id = $3`,
			string(status), s.now(), id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update chat request: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}

	cr, err := s.getChatRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chat request: %w", err)
	}
	return cr, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
