package repository

import (
	"database/sql"
	"fmt"
	"time"

	"factorsim/internal/backtest"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SimulationRun struct {
	RunID         uuid.UUID
	CreatedAt     time.Time
	InitialCash   decimal.Decimal
	TradeCostRate decimal.Decimal
	NumDays       int
	NumSkipped    int
}

type SimulationDay struct {
	RunID              uuid.UUID
	Date               time.Time
	TotalAssets        decimal.Decimal
	Returns            decimal.Decimal
	TheoreticalReturns decimal.Decimal
	Turnover           decimal.Decimal
	Skipped            bool
	SkipReason         *string
}

type SimulationRunRepository interface {
	AddRun(tx *sql.Tx, run SimulationRun) error
	AddDays(tx *sql.Tx, days []SimulationDay) error
	ListDays(tx *sql.Tx, runID uuid.UUID) ([]SimulationDay, error)
}

func NewSimulationRunRepository() SimulationRunRepository {
	return simulationRunRepositoryHandler{}
}

type simulationRunRepositoryHandler struct{}

func (h simulationRunRepositoryHandler) AddRun(tx *sql.Tx, run SimulationRun) error {
	_, err := tx.Exec(`
		INSERT INTO simulation_run (run_id, created_at, initial_cash, trade_cost_rate, num_days, num_skipped)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.RunID, run.CreatedAt, run.InitialCash, run.TradeCostRate, run.NumDays, run.NumSkipped)
	if err != nil {
		return fmt.Errorf("failed to insert simulation run %s: %w", run.RunID, err)
	}
	return nil
}

func (h simulationRunRepositoryHandler) AddDays(tx *sql.Tx, days []SimulationDay) error {
	stmt, err := tx.Prepare(`
		INSERT INTO simulation_day (run_id, date, total_assets, returns, theoretical_returns, turnover, skipped, skip_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range days {
		_, err := stmt.Exec(d.RunID, d.Date, d.TotalAssets, d.Returns, d.TheoreticalReturns, d.Turnover, d.Skipped, d.SkipReason)
		if err != nil {
			return fmt.Errorf("failed to insert simulation day %s: %w", d.Date.Format("2006-01-02"), err)
		}
	}
	return nil
}

func (h simulationRunRepositoryHandler) ListDays(tx *sql.Tx, runID uuid.UUID) ([]SimulationDay, error) {
	rows, err := tx.Query(`
		SELECT run_id, date, total_assets, returns, theoretical_returns, turnover, skipped, skip_reason
		FROM simulation_day
		WHERE run_id = $1
		ORDER BY date
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list simulation days for %s: %w", runID, err)
	}
	defer rows.Close()

	out := []SimulationDay{}
	for rows.Next() {
		d := SimulationDay{}
		if err := rows.Scan(&d.RunID, &d.Date, &d.TotalAssets, &d.Returns, &d.TheoreticalReturns, &d.Turnover, &d.Skipped, &d.SkipReason); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DaysFromChain flattens a finished chain into persistable day rows.
func DaysFromChain(chain *backtest.SimulationChain) ([]SimulationDay, error) {
	days := []SimulationDay{}
	for _, r := range chain.Results() {
		day := SimulationDay{
			RunID: chain.RunID(),
			Date:  r.Date,
		}
		if r.Skipped() {
			day.Skipped = true
			reason := r.SkipReason.Error()
			day.SkipReason = &reason
			days = append(days, day)
			continue
		}

		total, err := r.Settlement.TotalAssets()
		if err != nil {
			return nil, err
		}
		returns, err := r.Settlement.Returns()
		if err != nil {
			return nil, err
		}
		theoretical, err := r.Settlement.TheoreticalReturns()
		if err != nil {
			return nil, err
		}
		turnover, err := r.Settlement.Turnover()
		if err != nil {
			return nil, err
		}
		day.TotalAssets = decimal.NewFromFloat(total)
		day.Returns = decimal.NewFromFloat(returns)
		day.TheoreticalReturns = decimal.NewFromFloat(theoretical)
		day.Turnover = decimal.NewFromFloat(turnover)
		days = append(days, day)
	}
	return days, nil
}
