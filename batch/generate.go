package batch

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrInvalidOptions = errors.New("invalid generator options")

var (
	regions    = []string{"North", "South", "East", "West", "Central"}
	segments   = []string{"Consumer", "Corporate", "Small Business"}
	categories = []string{"Electronics", "Clothing", "Home", "Books", "Sports", "Toys"}
)

const (
	minAge      = 18
	maxAge      = 75
	minPrice    = 5.0
	maxPrice    = 500.0
	maxQuantity = 5
)

type Options struct {
	Customers int
	Products  int
	Sales     int
	Seed      int64
	// Sale timestamps fall in [Start, Start+Span).
	Start time.Time
	Span  time.Duration
}

func DefaultOptions() Options {
	return Options{
		Customers: 8,
		Products:  8,
		Sales:     1000,
		Seed:      42,
		Start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Span:      90 * 24 * time.Hour,
	}
}

func (o Options) Validate() error {
	if o.Customers < 1 {
		return errors.Wrapf(ErrInvalidOptions, "customers must be at least 1, got %d", o.Customers)
	}
	if o.Products < 1 {
		return errors.Wrapf(ErrInvalidOptions, "products must be at least 1, got %d", o.Products)
	}
	if o.Sales < 0 {
		return errors.Wrapf(ErrInvalidOptions, "sales must not be negative, got %d", o.Sales)
	}
	if o.Span <= 0 {
		return errors.Wrapf(ErrInvalidOptions, "span must be positive, got %s", o.Span)
	}
	return nil
}

// Generate builds a dataset. The output depends only on opts: one generator
// seeded from opts.Seed draws customers, then products, then sales.
func Generate(opts Options) (*Dataset, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	r := rand.New(rand.NewSource(opts.Seed))
	ds := &Dataset{
		Customers: make([]Customer, 0, opts.Customers),
		Products:  make([]Product, 0, opts.Products),
		Sales:     make([]Sale, 0, opts.Sales),
	}

	for id := 1; id <= opts.Customers; id++ {
		ds.Customers = append(ds.Customers, Customer{
			ID:      id,
			Age:     minAge + r.Intn(maxAge-minAge+1),
			Region:  pick(r, regions),
			Segment: pick(r, segments),
		})
	}

	for id := 1; id <= opts.Products; id++ {
		ds.Products = append(ds.Products, Product{
			ID:       id,
			Category: pick(r, categories),
			Price:    cents(minPrice + r.Float64()*(maxPrice-minPrice)),
		})
	}

	start := opts.Start.UTC()
	spanSeconds := int64(opts.Span / time.Second)
	if spanSeconds < 1 {
		spanSeconds = 1
	}
	for i := 0; i < opts.Sales; i++ {
		txID, err := uuid.NewRandomFromReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "transaction id")
		}
		customer := ds.Customers[r.Intn(len(ds.Customers))]
		product := ds.Products[r.Intn(len(ds.Products))]

		ds.Sales = append(ds.Sales, Sale{
			TransactionID: txID.String(),
			CustomerID:    customer.ID,
			ProductID:     product.ID,
			Quantity:      1 + r.Intn(maxQuantity),
			Price:         product.Price,
			Timestamp:     start.Add(time.Duration(r.Int63n(spanSeconds)) * time.Second),
		})
	}

	return ds, nil
}

func pick(r *rand.Rand, set []string) string {
	return set[r.Intn(len(set))]
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}
