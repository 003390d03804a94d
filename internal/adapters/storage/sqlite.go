package storage

// sqlite.go — persistencia durable de pools y posiciones.
//
// Estrategia:
//   - `pools`: una fila por asset (UPSERT). Los uint64 de totales y shares
//     se guardan como TEXT — el INTEGER de SQLite es int64 con signo y no
//     cubre el rango completo.
//   - `positions`: una fila por (owner, asset). Las posiciones persisten
//     incluso a balance cero: re-usarlas es barato y conserva el historial.
//   - Las fracciones de riesgo se guardan como TEXT decimal exacto, nunca
//     como REAL — un threshold que cambia en el bit 52 cambia liquidaciones.

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

const schema = `
-- Un AssetPool por asset soportado
CREATE TABLE IF NOT EXISTS pools (
    asset                    TEXT PRIMARY KEY,
    authority                TEXT NOT NULL,
    total_deposits           TEXT NOT NULL DEFAULT '0',
    total_deposit_shares     TEXT NOT NULL DEFAULT '0',
    total_borrowed           TEXT NOT NULL DEFAULT '0',
    total_borrowed_shares    TEXT NOT NULL DEFAULT '0',
    liquidation_threshold    TEXT NOT NULL,
    max_ltv                  TEXT NOT NULL,
    liquidation_bonus        TEXT NOT NULL,
    liquidation_close_factor TEXT NOT NULL,
    interest_rate            REAL NOT NULL DEFAULT 0,
    last_updated             DATETIME NOT NULL
);

-- Un slot por (owner, asset); last_updated es por owner
CREATE TABLE IF NOT EXISTS positions (
    owner            TEXT NOT NULL,
    asset            TEXT NOT NULL,
    deposited_shares TEXT NOT NULL DEFAULT '0',
    borrowed_shares  TEXT NOT NULL DEFAULT '0',
    last_updated     DATETIME NOT NULL,
    PRIMARY KEY (owner, asset)
);

CREATE INDEX IF NOT EXISTS idx_positions_owner ON positions(owner);
`

// SQLite implementa ports.Store usando SQLite (pure Go, sin CGo).
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLite: apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// GetPool carga el pool del asset.
func (s *SQLite) GetPool(ctx context.Context, asset domain.Asset) (*domain.AssetPool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT asset, authority, total_deposits, total_deposit_shares,
		       total_borrowed, total_borrowed_shares,
		       liquidation_threshold, max_ltv, liquidation_bonus,
		       liquidation_close_factor, interest_rate, last_updated
		FROM pools WHERE asset = ?`, string(asset))

	pool, err := scanPool(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage.GetPool: %s: %w", asset, domain.ErrPoolNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage.GetPool: %s: %w", asset, err)
	}
	return pool, nil
}

// PutPool upserta el pool.
func (s *SQLite) PutPool(ctx context.Context, pool *domain.AssetPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pools
			(asset, authority, total_deposits, total_deposit_shares,
			 total_borrowed, total_borrowed_shares,
			 liquidation_threshold, max_ltv, liquidation_bonus,
			 liquidation_close_factor, interest_rate, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset) DO UPDATE SET
			authority                = excluded.authority,
			total_deposits           = excluded.total_deposits,
			total_deposit_shares     = excluded.total_deposit_shares,
			total_borrowed           = excluded.total_borrowed,
			total_borrowed_shares    = excluded.total_borrowed_shares,
			liquidation_threshold    = excluded.liquidation_threshold,
			max_ltv                  = excluded.max_ltv,
			liquidation_bonus        = excluded.liquidation_bonus,
			liquidation_close_factor = excluded.liquidation_close_factor,
			interest_rate            = excluded.interest_rate,
			last_updated             = excluded.last_updated`,
		string(pool.Asset),
		pool.Authority,
		strconv.FormatUint(pool.TotalDeposits, 10),
		strconv.FormatUint(pool.TotalDepositShares, 10),
		strconv.FormatUint(pool.TotalBorrowed, 10),
		strconv.FormatUint(pool.TotalBorrowedShares, 10),
		pool.Params.LiquidationThreshold.String(),
		pool.Params.MaxLTV.String(),
		pool.Params.LiquidationBonus.String(),
		pool.Params.LiquidationCloseFactor.String(),
		pool.Params.InterestRate,
		pool.LastUpdated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.PutPool: %s: %w", pool.Asset, err)
	}
	return nil
}

// ListPools devuelve todos los pools ordenados por asset.
func (s *SQLite) ListPools(ctx context.Context) ([]*domain.AssetPool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset, authority, total_deposits, total_deposit_shares,
		       total_borrowed, total_borrowed_shares,
		       liquidation_threshold, max_ltv, liquidation_bonus,
		       liquidation_close_factor, interest_rate, last_updated
		FROM pools ORDER BY asset`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListPools: %w", err)
	}
	defer rows.Close()

	var out []*domain.AssetPool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListPools: %w", err)
		}
		out = append(out, pool)
	}
	return out, rows.Err()
}

// GetPosition carga la posición del owner, nil si no existe.
func (s *SQLite) GetPosition(ctx context.Context, owner string) (*domain.UserPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset, deposited_shares, borrowed_shares, last_updated
		FROM positions WHERE owner = ?`, owner)
	if err != nil {
		return nil, fmt.Errorf("storage.GetPosition: %s: %w", owner, err)
	}
	defer rows.Close()

	pos := domain.NewUserPosition(owner)
	found := false
	for rows.Next() {
		var (
			asset       string
			depShares   string
			borShares   string
			lastUpdated time.Time
		)
		if err := rows.Scan(&asset, &depShares, &borShares, &lastUpdated); err != nil {
			return nil, fmt.Errorf("storage.GetPosition: %s: %w", owner, err)
		}
		slot, err := parseSlot(depShares, borShares)
		if err != nil {
			return nil, fmt.Errorf("storage.GetPosition: %s/%s: %w", owner, asset, err)
		}
		pos.SetSlot(domain.Asset(asset), slot)
		pos.LastUpdated = lastUpdated
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.GetPosition: %s: %w", owner, err)
	}
	if !found {
		return nil, nil
	}
	return pos, nil
}

// PutPosition upserta todos los slots de la posición en una transacción.
func (s *SQLite) PutPosition(ctx context.Context, position *domain.UserPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.PutPosition: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions (owner, asset, deposited_shares, borrowed_shares, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner, asset) DO UPDATE SET
			deposited_shares = excluded.deposited_shares,
			borrowed_shares  = excluded.borrowed_shares,
			last_updated     = excluded.last_updated`)
	if err != nil {
		return fmt.Errorf("storage.PutPosition: prepare: %w", err)
	}
	defer stmt.Close()

	for asset, slot := range position.Slots {
		if _, err := stmt.ExecContext(ctx,
			position.Owner,
			string(asset),
			strconv.FormatUint(slot.DepositedShares, 10),
			strconv.FormatUint(slot.BorrowedShares, 10),
			position.LastUpdated.UTC(),
		); err != nil {
			return fmt.Errorf("storage.PutPosition: upsert %s/%s: %w", position.Owner, asset, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.PutPosition: commit: %w", err)
	}
	return nil
}

// ListPositions devuelve todas las posiciones ordenadas por owner.
func (s *SQLite) ListPositions(ctx context.Context) ([]*domain.UserPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, asset, deposited_shares, borrowed_shares, last_updated
		FROM positions ORDER BY owner, asset`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListPositions: %w", err)
	}
	defer rows.Close()

	var (
		out     []*domain.UserPosition
		current *domain.UserPosition
	)
	for rows.Next() {
		var (
			owner       string
			asset       string
			depShares   string
			borShares   string
			lastUpdated time.Time
		)
		if err := rows.Scan(&owner, &asset, &depShares, &borShares, &lastUpdated); err != nil {
			return nil, fmt.Errorf("storage.ListPositions: %w", err)
		}
		if current == nil || current.Owner != owner {
			current = domain.NewUserPosition(owner)
			out = append(out, current)
		}
		slot, err := parseSlot(depShares, borShares)
		if err != nil {
			return nil, fmt.Errorf("storage.ListPositions: %s/%s: %w", owner, asset, err)
		}
		current.SetSlot(domain.Asset(asset), slot)
		current.LastUpdated = lastUpdated
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos limpiamente.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// scanner cubre sql.Row y sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPool(row scanner) (*domain.AssetPool, error) {
	var (
		asset, authority                      string
		totalDep, totalDepShares              string
		totalBor, totalBorShares              string
		threshold, maxLTV, bonus, closeFactor string
		interestRate                          float64
		lastUpdated                           time.Time
	)
	if err := row.Scan(&asset, &authority, &totalDep, &totalDepShares,
		&totalBor, &totalBorShares, &threshold, &maxLTV, &bonus,
		&closeFactor, &interestRate, &lastUpdated); err != nil {
		return nil, err
	}

	pool := &domain.AssetPool{
		Asset:       domain.Asset(asset),
		Authority:   authority,
		LastUpdated: lastUpdated,
	}

	var err error
	if pool.TotalDeposits, err = strconv.ParseUint(totalDep, 10, 64); err != nil {
		return nil, fmt.Errorf("parse total_deposits %q: %w", totalDep, err)
	}
	if pool.TotalDepositShares, err = strconv.ParseUint(totalDepShares, 10, 64); err != nil {
		return nil, fmt.Errorf("parse total_deposit_shares %q: %w", totalDepShares, err)
	}
	if pool.TotalBorrowed, err = strconv.ParseUint(totalBor, 10, 64); err != nil {
		return nil, fmt.Errorf("parse total_borrowed %q: %w", totalBor, err)
	}
	if pool.TotalBorrowedShares, err = strconv.ParseUint(totalBorShares, 10, 64); err != nil {
		return nil, fmt.Errorf("parse total_borrowed_shares %q: %w", totalBorShares, err)
	}

	if pool.Params.LiquidationThreshold, err = decimal.NewFromString(threshold); err != nil {
		return nil, fmt.Errorf("parse liquidation_threshold %q: %w", threshold, err)
	}
	if pool.Params.MaxLTV, err = decimal.NewFromString(maxLTV); err != nil {
		return nil, fmt.Errorf("parse max_ltv %q: %w", maxLTV, err)
	}
	if pool.Params.LiquidationBonus, err = decimal.NewFromString(bonus); err != nil {
		return nil, fmt.Errorf("parse liquidation_bonus %q: %w", bonus, err)
	}
	if pool.Params.LiquidationCloseFactor, err = decimal.NewFromString(closeFactor); err != nil {
		return nil, fmt.Errorf("parse liquidation_close_factor %q: %w", closeFactor, err)
	}
	pool.Params.InterestRate = interestRate

	return pool, nil
}

func parseSlot(depShares, borShares string) (domain.PositionSlot, error) {
	var slot domain.PositionSlot
	var err error
	if slot.DepositedShares, err = strconv.ParseUint(depShares, 10, 64); err != nil {
		return slot, fmt.Errorf("parse deposited_shares %q: %w", depShares, err)
	}
	if slot.BorrowedShares, err = strconv.ParseUint(borShares, 10, 64); err != nil {
		return slot, fmt.Errorf("parse borrowed_shares %q: %w", borShares, err)
	}
	return slot, nil
}
