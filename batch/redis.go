package batch

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisSink caches the customer and product pools as hashes so streaming
// jobs can enrich events with a key lookup.
type RedisSink struct {
	Client redis.Cmdable
	Prefix string
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) CustomerKey(id int) string { return fmt.Sprintf("%s:customer:%d", s.Prefix, id) }
func (s *RedisSink) ProductKey(id int) string  { return fmt.Sprintf("%s:product:%d", s.Prefix, id) }

func (s *RedisSink) Write(ctx context.Context, ds *Dataset) error {
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, c := range ds.Customers {
			pipe.HSet(ctx, s.CustomerKey(c.ID),
				"age", c.Age,
				"region", c.Region,
				"segment", c.Segment,
			)
		}
		for _, p := range ds.Products {
			pipe.HSet(ctx, s.ProductKey(p.ID),
				"category", p.Category,
				"price", formatPrice(p.Price),
			)
		}
		return nil
	})
	return errors.Wrap(err, "cache pools in redis")
}
