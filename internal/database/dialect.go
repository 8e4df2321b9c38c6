package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type dialect struct {
	driver string
	// numbered placeholders ($1, $2) instead of ?
	numbered     bool
	schema       []string
	insertIgnore string
}

var postgres = dialect{
	driver:   DriverPostgres,
	numbered: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS lots (
			id VARCHAR(255) PRIMARY KEY,
			lot_number INTEGER NOT NULL DEFAULT 0,
			catalog_id VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL,
			auction_type VARCHAR(20) NOT NULL,
			starting_bid DECIMAL(18, 2) NOT NULL,
			current_bid DECIMAL(18, 2) NOT NULL,
			current_bidder_ref VARCHAR(255) NOT NULL DEFAULT '',
			reserve_price DECIMAL(18, 2),
			winner_ref VARCHAR(255) NOT NULL DEFAULT '',
			winner_bid_time TIMESTAMPTZ,
			version BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS lot_details (
			lot_id VARCHAR(255) PRIMARY KEY REFERENCES lots(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			images TEXT NOT NULL DEFAULT '[]',
			estimate VARCHAR(255) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS bids (
			id VARCHAR(64) PRIMARY KEY,
			lot_id VARCHAR(255) NOT NULL REFERENCES lots(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			bidder VARCHAR(255) NOT NULL,
			amount DECIMAL(18, 2) NOT NULL,
			bid_type VARCHAR(20) NOT NULL,
			bid_time TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bids_lot_seq ON bids(lot_id, seq)`,
		`CREATE TABLE IF NOT EXISTS lot_history (
			id VARCHAR(64) PRIMARY KEY,
			lot_id VARCHAR(255) NOT NULL REFERENCES lots(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			kind VARCHAR(20) NOT NULL,
			action_type VARCHAR(32) NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			sender VARCHAR(255) NOT NULL DEFAULT '',
			retracted_bid TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lot_history_lot_seq ON lot_history(lot_id, seq)`,
		`CREATE TABLE IF NOT EXISTS checkouts (
			lot_id VARCHAR(255) PRIMARY KEY,
			winner_ref VARCHAR(255) NOT NULL,
			amount DECIMAL(18, 2) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	insertIgnore: "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
}

var mysqlDialect = dialect{
	driver: DriverMySQL,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS lots (
			id VARCHAR(255) PRIMARY KEY,
			lot_number INT NOT NULL DEFAULT 0,
			catalog_id VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL,
			auction_type VARCHAR(20) NOT NULL,
			starting_bid DECIMAL(18, 2) NOT NULL,
			current_bid DECIMAL(18, 2) NOT NULL,
			current_bidder_ref VARCHAR(255) NOT NULL DEFAULT '',
			reserve_price DECIMAL(18, 2) NULL,
			winner_ref VARCHAR(255) NOT NULL DEFAULT '',
			winner_bid_time DATETIME(6) NULL,
			version BIGINT UNSIGNED NOT NULL DEFAULT 0,
			updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS lot_details (
			lot_id VARCHAR(255) PRIMARY KEY,
			title TEXT NOT NULL,
			images TEXT NOT NULL,
			estimate VARCHAR(255) NOT NULL DEFAULT '',
			FOREIGN KEY (lot_id) REFERENCES lots(id) ON DELETE CASCADE
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS bids (
			id VARCHAR(64) PRIMARY KEY,
			lot_id VARCHAR(255) NOT NULL,
			seq INT NOT NULL,
			bidder VARCHAR(255) NOT NULL,
			amount DECIMAL(18, 2) NOT NULL,
			bid_type VARCHAR(20) NOT NULL,
			bid_time DATETIME(6) NOT NULL,
			INDEX idx_bids_lot_seq (lot_id, seq),
			FOREIGN KEY (lot_id) REFERENCES lots(id) ON DELETE CASCADE
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS lot_history (
			id VARCHAR(64) PRIMARY KEY,
			lot_id VARCHAR(255) NOT NULL,
			seq INT NOT NULL,
			kind VARCHAR(20) NOT NULL,
			action_type VARCHAR(32) NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			sender VARCHAR(255) NOT NULL DEFAULT '',
			retracted_bid TEXT NULL,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_lot_history_lot_seq (lot_id, seq),
			FOREIGN KEY (lot_id) REFERENCES lots(id) ON DELETE CASCADE
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS checkouts (
			lot_id VARCHAR(255) PRIMARY KEY,
			winner_ref VARCHAR(255) NOT NULL,
			amount DECIMAL(18, 2) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
		) ENGINE=InnoDB`,
	},
	insertIgnore: "INSERT IGNORE INTO %s (%s) VALUES (%s)",
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverPostgres:
		return postgres, nil
	case DriverMySQL:
		return mysqlDialect, nil
	}
	return dialect{}, fmt.Errorf("unsupported driver %q", driver)
}

// rebind rewrites ? placeholders for drivers that number them.
// Queries here never contain literal question marks.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) insertIgnoreQuery(table string, columns ...string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return d.rebind(fmt.Sprintf(d.insertIgnore, table, strings.Join(columns, ", "), marks))
}

// normalizeDSN makes the MySQL driver scan DATETIME into time.Time in UTC
func normalizeDSN(driver, dsn string) (string, error) {
	if driver != DriverMySQL {
		return dsn, nil
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}
