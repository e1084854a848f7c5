package extract

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/config"
)

// mysqlDatasets are read in this order; names match the tables.
var mysqlDatasets = []sqlDataset{
	{Name: "productos", Table: "productos", Query: "SELECT * FROM productos ORDER BY id"},
	{Name: "ofertas", Table: "ofertas", Query: "SELECT * FROM ofertas ORDER BY id"},
	{Name: "ofertas_detalle", Table: "ofertas_detalle", Query: "SELECT * FROM ofertas_detalle ORDER BY id"},
}

const mysqlTableExists = `SELECT COUNT(*) FROM information_schema.tables
	WHERE table_schema = DATABASE() AND table_name = ?`

// MySQLSource reads the product and offer tables.
type MySQLSource struct {
	db *sqlx.DB
}

// MySQLDSN builds a go-sql-driver DSN. Timestamps are parsed into time.Time
// so they render like PostgreSQL ones.
func MySQLDSN(ds config.DataStore) string {
	cfg := mysql.NewConfig()
	cfg.User = ds.User
	cfg.Passwd = ds.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(ds.Host, ds.Port)
	cfg.DBName = ds.Database
	cfg.ParseTime = true
	cfg.Timeout = 10 * time.Second
	return cfg.FormatDSN()
}

// NewMySQLSource connects to the configured MySQL database.
func NewMySQLSource(ctx context.Context, ds config.DataStore) (*MySQLSource, error) {
	db, err := sqlx.ConnectContext(ctx, "mysql", MySQLDSN(ds))
	if err != nil {
		return nil, fmt.Errorf("connect mysql %s: %w", net.JoinHostPort(ds.Host, ds.Port), err)
	}
	db.SetMaxOpenConns(2)
	return &MySQLSource{db: db}, nil
}

// Datasets implements Source.
func (s *MySQLSource) Datasets() []string {
	return datasetNames(mysqlDatasets)
}

// Extract implements Source.
func (s *MySQLSource) Extract(ctx context.Context, name string) (*Dataset, error) {
	d, ok := findDataset(mysqlDatasets, name)
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q", name)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, mysqlTableExists, d.Table); err != nil {
		return nil, fmt.Errorf("check table %s: %w", d.Table, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("table %s: %w", d.Table, ErrDatasetMissing)
	}

	rows, err := s.db.QueryxContext(ctx, d.Query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records [][]any
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		records = append(records, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	body, err := encodeCSV(columns, records)
	if err != nil {
		return nil, err
	}
	return &Dataset{Name: d.Name, Format: FormatCSV, Records: len(records), Body: body}, nil
}

// Close implements Source.
func (s *MySQLSource) Close(context.Context) error {
	return s.db.Close()
}
