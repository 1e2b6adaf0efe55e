package repository

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []struct {
	table string
	ddl   string
}{
	{"users", `
CREATE TABLE IF NOT EXISTS users (
	id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	name VARCHAR(255) NOT NULL DEFAULT '',
	birthday DATE NULL,
	address VARCHAR(512) NOT NULL DEFAULT '',
	email VARCHAR(255) NOT NULL,
	auth_code VARCHAR(255) NOT NULL DEFAULT '',
	no_go_check_opt_out BOOLEAN NOT NULL DEFAULT FALSE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"seat_sales", `
CREATE TABLE IF NOT EXISTS seat_sales (
	id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	sales_status VARCHAR(32) NOT NULL DEFAULT 'before_sale',
	sales_start_at DATETIME NOT NULL,
	sales_end_at DATETIME NOT NULL,
	admission_available_at DATETIME NOT NULL,
	admission_close_at DATETIME NULL,
	refund_at DATETIME NULL,
	refund_end_at DATETIME NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"tickets", `
CREATE TABLE IF NOT EXISTS tickets (
	id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	seat_sale_id BIGINT UNSIGNED NOT NULL,
	status VARCHAR(32) NOT NULL DEFAULT 'available',
	user_id BIGINT UNSIGNED NULL,
	purchase_ticket_reserve_id BIGINT UNSIGNED NULL,
	current_ticket_reserve_id BIGINT UNSIGNED NULL,
	transfer_uuid VARCHAR(64) NULL,
	admission_disabled_at DATETIME NULL,
	qr_code VARCHAR(128) NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY uq_tickets_qr_code (qr_code),
	UNIQUE KEY uq_tickets_transfer_uuid (transfer_uuid),
	KEY idx_tickets_seat_sale (seat_sale_id, status)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"orders", `
CREATE TABLE IF NOT EXISTS orders (
	id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	user_id BIGINT UNSIGNED NOT NULL,
	seat_sale_id BIGINT UNSIGNED NOT NULL,
	order_type VARCHAR(32) NOT NULL,
	total_price INT UNSIGNED NOT NULL DEFAULT 0,
	returned_at DATETIME NULL,
	refund_error_message TEXT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	KEY idx_orders_seat_sale (seat_sale_id, returned_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"payments", `
CREATE TABLE IF NOT EXISTS payments (
	id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	order_id BIGINT UNSIGNED NOT NULL,
	charge_id VARCHAR(255) NOT NULL,
	progress VARCHAR(32) NOT NULL DEFAULT 'requesting_payment',
	captured_at DATETIME NULL,
	refunded_at DATETIME NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY uq_payments_order (order_id),
	KEY idx_payments_progress (progress, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"ticket_reserves", `
CREATE TABLE IF NOT EXISTS ticket_reserves (
	id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	order_id BIGINT UNSIGNED NOT NULL,
	ticket_id BIGINT UNSIGNED NOT NULL,
	seat_type_option_id BIGINT UNSIGNED NULL,
	previous_ticket_reserve_id BIGINT UNSIGNED NULL,
	next_ticket_reserve_id BIGINT UNSIGNED NULL,
	transfer_at DATETIME NULL,
	transfer_from_user_id BIGINT UNSIGNED NULL,
	transfer_to_user_id BIGINT UNSIGNED NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	KEY idx_ticket_reserves_order (order_id),
	KEY idx_ticket_reserves_ticket (ticket_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"ticket_logs", `
CREATE TABLE IF NOT EXISTS ticket_logs (
	id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	ticket_id BIGINT UNSIGNED NOT NULL,
	log_type VARCHAR(32) NOT NULL,
	request_status VARCHAR(32) NOT NULL,
	status VARCHAR(32) NOT NULL,
	result BOOLEAN NOT NULL,
	result_status VARCHAR(32) NOT NULL,
	device_id VARCHAR(255) NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	KEY idx_ticket_logs_ticket (ticket_id, id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"visitor_profiles", `
CREATE TABLE IF NOT EXISTS visitor_profiles (
	id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	ticket_id BIGINT UNSIGNED NOT NULL,
	ticket_log_id BIGINT UNSIGNED NOT NULL,
	user_id BIGINT UNSIGNED NOT NULL,
	name VARCHAR(255) NOT NULL,
	birthday DATE NULL,
	address VARCHAR(512) NOT NULL,
	email VARCHAR(255) NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	KEY idx_visitor_profiles_ticket (ticket_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
}

// InitializeSchema creates the ticketing tables when they do not exist.
func InitializeSchema(ctx context.Context, db *sql.DB) error {
	for _, s := range schema {
		if _, err := db.ExecContext(ctx, s.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", s.table, err)
		}
	}
	return nil
}
