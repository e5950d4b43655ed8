package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/xpcamp/core"
)

const (
	orderingParam = "ordering"
	limitParam    = "limit"
	maxLimit      = 100
)

// Ordering binds the `ordering` query param: comma separated fields, prefixed by "-" for descending order.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindLimit reads the `limit` query param, falling back to def. Values are capped to maxLimit.
func bindLimit(ctx echo.Context, def int) int {
	limit, err := strconv.Atoi(ctx.QueryParam(limitParam))
	if err != nil || limit <= 0 {
		limit = def
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

// bindTimes parses time query params into their destination. Accepted layouts are RFC 3339 and YYYY-MM-DD.
// Missing params leave the destination untouched.
func bindTimes(ctx echo.Context, dests map[string]*time.Time) error {
	for param, dest := range dests {
		val := ctx.QueryParam(param)
		if val == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, val)
		if err != nil {
			if t, err = time.Parse("2006-01-02", val); err != nil {
				return err
			}
		}
		*dest = t
	}
	return nil
}
