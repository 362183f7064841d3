package batch

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Sink persists a generated dataset somewhere the notebooks can read it.
type Sink interface {
	Name() string
	Write(ctx context.Context, ds *Dataset) error
}

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// FileSink writes customers, products and sales to one file each under Dir.
type FileSink struct {
	Dir    string
	Format string
}

func (s *FileSink) Name() string { return "file:" + s.Dir }

// Paths returns the files Write produces, keyed by dataset name.
func (s *FileSink) Paths() map[string]string {
	return map[string]string{
		"customers": filepath.Join(s.Dir, "customers."+s.Format),
		"products":  filepath.Join(s.Dir, "products."+s.Format),
		"sales":     filepath.Join(s.Dir, "sales."+s.Format),
	}
}

func (s *FileSink) Write(_ context.Context, ds *Dataset) error {
	if s.Format != FormatCSV && s.Format != FormatJSON {
		return errors.Errorf("unknown output format %q", s.Format)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "create output dir %s", s.Dir)
	}

	paths := s.Paths()
	if err := s.writeFile(paths["customers"], customerHeader, customerRows(ds), ds.Customers); err != nil {
		return err
	}
	if err := s.writeFile(paths["products"], productHeader, productRows(ds), ds.Products); err != nil {
		return err
	}
	return s.writeFile(paths["sales"], saleHeader, saleRows(ds), ds.Sales)
}

func (s *FileSink) writeFile(path string, header []string, rows [][]string, records any) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}

	w := bufio.NewWriter(f)
	switch s.Format {
	case FormatCSV:
		err = writeCSV(w, header, rows)
	case FormatJSON:
		err = writeJSONLines(w, records)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return errors.Wrapf(err, "write %s", path)
}

func writeCSV(w *bufio.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func writeJSONLines(w *bufio.Writer, records any) error {
	enc := json.NewEncoder(w)
	switch rs := records.(type) {
	case []Customer:
		for _, r := range rs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	case []Product:
		for _, r := range rs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	case []Sale:
		for _, r := range rs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	default:
		return errors.Errorf("unsupported record set %T", records)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Tabular rendering shared by the CSV writer
// ---------------------------------------------------------------------------

var (
	customerHeader = []string{"customer_id", "age", "region", "segment"}
	productHeader  = []string{"product_id", "category", "price"}
	saleHeader     = []string{"transaction_id", "customer_id", "product_id", "quantity", "price", "timestamp"}
)

func customerRows(ds *Dataset) [][]string {
	rows := make([][]string, 0, len(ds.Customers))
	for _, c := range ds.Customers {
		rows = append(rows, []string{strconv.Itoa(c.ID), strconv.Itoa(c.Age), c.Region, c.Segment})
	}
	return rows
}

func productRows(ds *Dataset) [][]string {
	rows := make([][]string, 0, len(ds.Products))
	for _, p := range ds.Products {
		rows = append(rows, []string{strconv.Itoa(p.ID), p.Category, formatPrice(p.Price)})
	}
	return rows
}

func saleRows(ds *Dataset) [][]string {
	rows := make([][]string, 0, len(ds.Sales))
	for _, s := range ds.Sales {
		rows = append(rows, []string{
			s.TransactionID,
			strconv.Itoa(s.CustomerID),
			strconv.Itoa(s.ProductID),
			strconv.Itoa(s.Quantity),
			formatPrice(s.Price),
			s.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}
