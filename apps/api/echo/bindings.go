package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

// orderingParam holds comma separated fields, "-" prefixed when descending: ?ordering=-created_at,name
const orderingParam = "ordering"

// cleaner is implemented by payloads & filters that normalise their own fields.
type cleaner interface {
	Clean()
}

// bindClean binds the request into data then cleans it when it knows how.
func bindClean(ctx echo.Context, data interface{}) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrapf(err, "binding to %T", data)
	}
	if c, ok := data.(cleaner); ok {
		c.Clean()
	}
	return nil
}

// bindOrdering parses the ordering query param. Blank fields are skipped and a repeated field keeps its first direction.
// Whether a field can be ordered on is left to the repository.
func bindOrdering(ctx echo.Context) []core.DBOrdering {
	raw := ctx.QueryParam(orderingParam)
	if raw == "" {
		return nil
	}

	var (
		orderings []core.DBOrdering
		seen      = make(map[string]struct{})
	)
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		ascending := !strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		if field == "" {
			continue
		}
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		orderings = append(orderings, core.DBOrdering{Field: field, Ascending: ascending})
	}
	return orderings
}
