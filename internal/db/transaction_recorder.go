// Package db adapts the teacher's GORM/MySQL recorder into a secondary
// durable sink for TradeRecord/BotStatus/LadderState, satisfying the
// same Recorder shape internal/store does so a deployment can run the
// file journal alone or the file journal plus MySQL (spec §4.9, §6).
package db

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hypergrid-bot/hypergrid"
)

// TradeRecordRow is the database model for hypergrid.TradeRecord.
// big.Int/big.Rat fields are stored as decimal strings so no precision
// is lost to a float column.
type TradeRecordRow struct {
	ID             int64     `gorm:"primaryKey"`
	PairID         string    `gorm:"index;not null"`
	GridID         string    `gorm:"not null"`
	Side           int       `gorm:"not null;comment:0=Buy 1=Sell"`
	InToken        string    `gorm:"not null"`
	OutToken       string    `gorm:"not null"`
	AmountIn       string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	AmountOut      string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	ExecutionPrice string    `gorm:"type:varchar(128);not null;comment:big.Rat as string"`
	USDValue       string    `gorm:"type:varchar(128);not null"`
	PoolFeeUSD     string    `gorm:"type:varchar(128)"`
	GasUSD         string    `gorm:"type:varchar(128)"`
	SlippageUSD    string    `gorm:"type:varchar(128)"`
	TotalCostUSD   string    `gorm:"type:varchar(128)"`
	NetProfitUSD   string    `gorm:"type:varchar(128);not null"`
	TxHash         string    `gorm:"index;not null"`
	BlockNumber    uint64    `gorm:"not null"`
	Status         int       `gorm:"not null;comment:0=Success 1=Reverted"`
	Timestamp      time.Time `gorm:"index;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (TradeRecordRow) TableName() string { return "trade_records" }

// BotStatusRow is the database model for a single hypergrid.BotStatus
// snapshot. Only the latest row per run matters for operational
// inspection, but history is kept append-only like the trade journal.
type BotStatusRow struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	GeneratedAt       time.Time `gorm:"index;not null"`
	Draining          bool      `gorm:"not null"`
	RealizedDayPnLUSD string    `gorm:"type:varchar(128)"`
	PairsJSON         string    `gorm:"type:text;not null"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (BotStatusRow) TableName() string { return "bot_statuses" }

// LadderStateRow is the database model for the latest hypergrid.LadderState
// snapshot of a given pair, replaced on every WriteLadder call.
type LadderStateRow struct {
	PairID      string    `gorm:"primaryKey"`
	MinPrice    string    `gorm:"type:varchar(128);not null"`
	MaxPrice    string    `gorm:"type:varchar(128);not null"`
	Mode        int       `gorm:"not null"`
	Count       int       `gorm:"not null"`
	LevelsJSON  string    `gorm:"type:text;not null"`
	GeneratedAt time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (LadderStateRow) TableName() string { return "ladder_states" }

// MySQLRecorder implements the scheduler's Recorder interface using
// GORM and MySQL, mirroring the teacher's recorder wiring.
type MySQLRecorder struct {
	db *gorm.DB
}

// NewMySQLRecorder creates a new MySQLRecorder instance.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewMySQLRecorder(dsn string) (*MySQLRecorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return NewMySQLRecorderWithDB(db)
}

// NewMySQLRecorderWithDB creates a new MySQLRecorder with an existing GORM DB instance.
func NewMySQLRecorderWithDB(db *gorm.DB) (*MySQLRecorder, error) {
	if err := db.AutoMigrate(&TradeRecordRow{}, &BotStatusRow{}, &LadderStateRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &MySQLRecorder{db: db}, nil
}

// AppendTrade persists one TradeRecord row. No ID ordering is checked
// here, and the file journal's own ordering check does not stop this
// sink from being written; a duplicate primary key simply fails the
// insert.
func (r *MySQLRecorder) AppendTrade(rec *hypergrid.TradeRecord) error {
	row := TradeRecordRow{
		ID:             rec.ID,
		PairID:         rec.PairID,
		GridID:         rec.GridID,
		Side:           int(rec.Side),
		InToken:        rec.InToken,
		OutToken:       rec.OutToken,
		AmountIn:       bigIntToString(rec.AmountIn),
		AmountOut:      bigIntToString(rec.AmountOut),
		ExecutionPrice: bigRatToString(rec.ExecutionPrice),
		USDValue:       bigRatToString(rec.USDValue),
		PoolFeeUSD:     bigRatToString(rec.PoolFeeUSD),
		GasUSD:         bigRatToString(rec.GasUSD),
		SlippageUSD:    bigRatToString(rec.SlippageUSD),
		TotalCostUSD:   bigRatToString(rec.TotalCostUSD),
		NetProfitUSD:   bigRatToString(rec.NetProfitUSD),
		TxHash:         rec.TxHash.Hex(),
		BlockNumber:    rec.BlockNumber,
		Status:         int(rec.Status),
		Timestamp:      rec.Timestamp,
	}

	if result := r.db.Create(&row); result.Error != nil {
		return fmt.Errorf("failed to record trade %d: %w", rec.ID, result.Error)
	}
	return nil
}

// WriteStatus appends a BotStatus snapshot row.
func (r *MySQLRecorder) WriteStatus(status hypergrid.BotStatus) error {
	pairsJSON, err := marshalJSON(status.Pairs)
	if err != nil {
		return fmt.Errorf("failed to marshal pair statuses: %w", err)
	}
	row := BotStatusRow{
		GeneratedAt:       status.GeneratedAt,
		Draining:          status.Draining,
		RealizedDayPnLUSD: bigRatToString(status.RealizedDayPnLUSD),
		PairsJSON:         pairsJSON,
	}
	if result := r.db.Create(&row); result.Error != nil {
		return fmt.Errorf("failed to record status: %w", result.Error)
	}
	return nil
}

// WriteLadder upserts the latest LadderState row for ladder.PairID.
func (r *MySQLRecorder) WriteLadder(ladder *hypergrid.LadderState) error {
	levelsJSON, err := marshalJSON(ladder.Levels)
	if err != nil {
		return fmt.Errorf("failed to marshal ladder levels: %w", err)
	}
	row := LadderStateRow{
		PairID:      ladder.PairID,
		MinPrice:    bigRatToString(ladder.MinPrice),
		MaxPrice:    bigRatToString(ladder.MaxPrice),
		Mode:        int(ladder.Mode),
		Count:       ladder.Count,
		LevelsJSON:  levelsJSON,
		GeneratedAt: ladder.GeneratedAt,
	}
	result := r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to record ladder for %s: %w", ladder.PairID, result.Error)
	}
	return nil
}

// GetDB returns the underlying GORM DB instance for advanced queries.
func (r *MySQLRecorder) GetDB() *gorm.DB {
	return r.db
}

// Close closes the database connection.
func (r *MySQLRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

// LatestStatus retrieves the most recently written BotStatusRow.
func (r *MySQLRecorder) LatestStatus() (*BotStatusRow, error) {
	var row BotStatusRow
	result := r.db.Order("generated_at DESC").First(&row)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get latest status: %w", result.Error)
	}
	return &row, nil
}

// TradesByTimeRange retrieves trade rows within a time range.
func (r *MySQLRecorder) TradesByTimeRange(start, end time.Time) ([]TradeRecordRow, error) {
	var rows []TradeRecordRow
	result := r.db.Where("timestamp BETWEEN ? AND ?", start, end).
		Order("timestamp ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get trades by time range: %w", result.Error)
	}
	return rows, nil
}

// CountTrades returns the total number of trade rows recorded.
func (r *MySQLRecorder) CountTrades() (int64, error) {
	var count int64
	result := r.db.Model(&TradeRecordRow{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count trades: %w", result.Error)
	}
	return count, nil
}

// bigIntToString safely converts *big.Int to string, handling nil values.
func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

// bigRatToString safely converts *big.Rat to an exact decimal-free
// rational string ("num/denom"), handling nil values.
func bigRatToString(value *big.Rat) string {
	if value == nil {
		return ""
	}
	return value.RatString()
}

func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
