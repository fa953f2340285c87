package engine

import (
	"context"

	"crudkit/internal/store"
)

// Pagination describes a page within a result set. Next is nil on the last
// page and Previous is nil on the first.
type Pagination struct {
	Size     int   `json:"size"`
	Total    int64 `json:"total"`
	Pages    int64 `json:"pages"`
	Next     *int  `json:"next"`
	Previous *int  `json:"previous"`
}

// Counter supplies the total for a pagination descriptor. *store.Query
// implements it.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

var _ Counter = (*store.Query)(nil)

// Paginate computes the descriptor for page of the given size. The total
// comes from counter when one is given. With neither a counter nor a total
// there is nothing to describe and the result is nil.
func (c *Controller) Paginate(ctx context.Context, counter Counter, total int64, page, size int) (*Pagination, error) {
	if counter == nil && total == 0 {
		return nil, nil
	}
	if counter != nil {
		n, err := counter.Count(ctx)
		if err != nil {
			return nil, c.failure(ctx, "paginate", err)
		}
		total = n
	}
	return newPagination(total, page, size), nil
}

// PaginateList describes the page ReadList(page, size) returns.
func (c *Controller) PaginateList(ctx context.Context, page, size int) (*Pagination, error) {
	if !c.caps.Read {
		return nil, CapabilityError(ActionRead, c.Supported())
	}
	var p *Pagination
	err := c.provider.Scope(ctx, func(sess *store.Session) error {
		var err error
		p, err = c.Paginate(ctx, c.baseQuery(sess), 0, page, size)
		return err
	})
	if err != nil {
		return nil, c.storageFailure(ctx, "paginate", err)
	}
	return p, nil
}

func newPagination(total int64, page, size int) *Pagination {
	size = max(size, 1)
	page = max(page, 1)
	pages := (total + int64(size) - 1) / int64(size)

	p := &Pagination{Size: size, Total: total, Pages: pages}
	if int64(page) < pages {
		next := page + 1
		p.Next = &next
	}
	if page > 1 {
		prev := page - 1
		p.Previous = &prev
	}
	return p
}
