package batch

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		customer_id INTEGER PRIMARY KEY,
		age         INTEGER NOT NULL,
		region      TEXT NOT NULL,
		segment     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		product_id INTEGER PRIMARY KEY,
		category   TEXT NOT NULL,
		price      NUMERIC(10,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		transaction_id TEXT PRIMARY KEY,
		customer_id    INTEGER NOT NULL REFERENCES customers (customer_id),
		product_id     INTEGER NOT NULL REFERENCES products (product_id),
		quantity       INTEGER NOT NULL,
		price          NUMERIC(10,2) NOT NULL,
		ts             TIMESTAMPTZ NOT NULL
	)`,
	`TRUNCATE sales, products, customers`,
}

// PostgresSink loads the dataset into the lab database so notebooks can read
// it over JDBC. Existing rows are replaced in a single transaction.
type PostgresSink struct {
	DSN string
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, ds *Dataset) error {
	conn, err := pgx.Connect(ctx, s.DSN)
	if err != nil {
		return errors.Wrap(err, "connect postgres")
	}
	defer conn.Close(context.Background())

	tx, err := conn.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback(context.Background()) //nolint:errcheck

	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "prepare tables")
		}
	}

	tables := []struct {
		name    string
		columns []string
		rows    [][]any
	}{
		{"customers", customerHeader, customerValues(ds)},
		{"products", productHeader, productValues(ds)},
		{"sales", []string{"transaction_id", "customer_id", "product_id", "quantity", "price", "ts"}, saleValues(ds)},
	}
	for _, t := range tables {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{t.name}, t.columns, pgx.CopyFromRows(t.rows))
		if err != nil {
			return errors.Wrapf(err, "copy %s", t.name)
		}
		if int(n) != len(t.rows) {
			return errors.Errorf("copy %s: wrote %d of %d rows", t.name, n, len(t.rows))
		}
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

func customerValues(ds *Dataset) [][]any {
	rows := make([][]any, 0, len(ds.Customers))
	for _, c := range ds.Customers {
		rows = append(rows, []any{int32(c.ID), int32(c.Age), c.Region, c.Segment})
	}
	return rows
}

func productValues(ds *Dataset) [][]any {
	rows := make([][]any, 0, len(ds.Products))
	for _, p := range ds.Products {
		rows = append(rows, []any{int32(p.ID), p.Category, p.Price})
	}
	return rows
}

func saleValues(ds *Dataset) [][]any {
	rows := make([][]any, 0, len(ds.Sales))
	for _, s := range ds.Sales {
		rows = append(rows, []any{
			s.TransactionID,
			int32(s.CustomerID),
			int32(s.ProductID),
			int32(s.Quantity),
			s.Price,
			s.Timestamp,
		})
	}
	return rows
}
