package extract

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/jackc/pgx/v5"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/config"
)

// sqlDataset maps a dataset name to the table it is read from.
type sqlDataset struct {
	Name  string
	Table string
	Query string
}

// postgresDatasets are read in this order. users is projected without its
// password column and published as usuarios.
var postgresDatasets = []sqlDataset{
	{Name: "usuarios", Table: "users", Query: "SELECT id, dni, apellido, distrito, email, nombre, role FROM users ORDER BY id"},
	{Name: "compras", Table: "compras", Query: "SELECT * FROM compras ORDER BY id"},
	{Name: "compra_productos", Table: "compra_productos", Query: "SELECT * FROM compra_productos ORDER BY compra_id"},
	{Name: "compra_cantidades", Table: "compra_cantidades", Query: "SELECT * FROM compra_cantidades ORDER BY compra_id"},
}

const postgresTableExists = `SELECT EXISTS (
	SELECT 1 FROM information_schema.tables
	WHERE table_schema = current_schema() AND table_name = $1
)`

// PostgresSource reads the purchase and user tables.
type PostgresSource struct {
	conn *pgx.Conn
}

// PostgresURL builds a connection URL, escaping credentials.
func PostgresURL(ds config.DataStore) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(ds.Host, ds.Port),
		Path:   "/" + ds.Database,
	}
	if ds.User != "" {
		u.User = url.UserPassword(ds.User, ds.Password)
	}
	return u.String()
}

// NewPostgresSource connects to the configured PostgreSQL database.
func NewPostgresSource(ctx context.Context, ds config.DataStore) (*PostgresSource, error) {
	conn, err := pgx.Connect(ctx, PostgresURL(ds))
	if err != nil {
		return nil, fmt.Errorf("connect postgresql %s: %w", net.JoinHostPort(ds.Host, ds.Port), err)
	}
	return &PostgresSource{conn: conn}, nil
}

// Datasets implements Source.
func (s *PostgresSource) Datasets() []string {
	return datasetNames(postgresDatasets)
}

// Extract implements Source.
func (s *PostgresSource) Extract(ctx context.Context, name string) (*Dataset, error) {
	d, ok := findDataset(postgresDatasets, name)
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q", name)
	}

	var exists bool
	if err := s.conn.QueryRow(ctx, postgresTableExists, d.Table).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check table %s: %w", d.Table, err)
	}
	if !exists {
		return nil, fmt.Errorf("table %s: %w", d.Table, ErrDatasetMissing)
	}

	rows, err := s.conn.Query(ctx, d.Query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var records [][]any
	for rows.Next() {
		values, err := rows.Values()
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
func (s *PostgresSource) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

func datasetNames(ds []sqlDataset) []string {
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name
	}
	return names
}

func findDataset(ds []sqlDataset, name string) (sqlDataset, bool) {
	for _, d := range ds {
		if d.Name == name {
			return d, true
		}
	}
	return sqlDataset{}, false
}
