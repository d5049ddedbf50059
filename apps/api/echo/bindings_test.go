package echoapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/notification"
)

func newQueryContext(query url.Values) echo.Context {
	req := httptest.NewRequest(http.MethodGet, "/?"+query.Encode(), nil)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func Test_bindOrdering(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []core.DBOrdering
	}{
		{name: "missing", raw: "", want: nil},
		{name: "ascending", raw: "name", want: []core.DBOrdering{{Field: "name", Ascending: true}}},
		{
			name: "mixed",
			raw:  " -created_at , name",
			want: []core.DBOrdering{{Field: "created_at"}, {Field: "name", Ascending: true}},
		},
		{name: "blank fields", raw: "name,,-, ", want: []core.DBOrdering{{Field: "name", Ascending: true}}},
		{name: "repeated", raw: "-name,name", want: []core.DBOrdering{{Field: "name"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{}
			if tt.raw != "" {
				q.Set(orderingParam, tt.raw)
			}
			assert.Equal(t, tt.want, bindOrdering(newQueryContext(q)))
		})
	}
}

func Test_bindClean(t *testing.T) {
	var filter notification.QueryFilter
	ctx := newQueryContext(url.Values{"type": {"  comment "}, "limit": {"1000"}})
	require.NoError(t, bindClean(ctx, &filter))
	assert.Equal(t, "comment", filter.Type)
	assert.Equal(t, notification.MaxLimit, filter.Limit, "cleaned after binding")
}
