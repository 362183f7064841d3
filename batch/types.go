package batch

import (
	"time"

	"github.com/pkg/errors"
)

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

type Customer struct {
	ID      int    `json:"customer_id"`
	Age     int    `json:"age"`
	Region  string `json:"region"`
	Segment string `json:"segment"`
}

type Product struct {
	ID       int     `json:"product_id"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}

type Sale struct {
	TransactionID string    `json:"transaction_id"`
	CustomerID    int       `json:"customer_id"`
	ProductID     int       `json:"product_id"`
	Quantity      int       `json:"quantity"`
	Price         float64   `json:"price"`
	Timestamp     time.Time `json:"timestamp"`
}

// Dataset is one generator run. Sales only reference ids from Customers and
// Products.
type Dataset struct {
	Customers []Customer
	Products  []Product
	Sales     []Sale
}

// Validate checks that every sale references a generated customer and product.
func (d *Dataset) Validate() error {
	customers := make(map[int]struct{}, len(d.Customers))
	for _, c := range d.Customers {
		customers[c.ID] = struct{}{}
	}
	products := make(map[int]struct{}, len(d.Products))
	for _, p := range d.Products {
		products[p.ID] = struct{}{}
	}

	for i, s := range d.Sales {
		if _, ok := customers[s.CustomerID]; !ok {
			return errors.Errorf("sale %d (%s) references unknown customer %d", i, s.TransactionID, s.CustomerID)
		}
		if _, ok := products[s.ProductID]; !ok {
			return errors.Errorf("sale %d (%s) references unknown product %d", i, s.TransactionID, s.ProductID)
		}
	}
	return nil
}
