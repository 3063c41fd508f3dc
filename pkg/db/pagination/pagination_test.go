package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, Page{Page: 1, Limit: DefaultLimit}, Page{}.Normalize())
	assert.Equal(t, Page{Page: 3, Limit: MaxLimit}, Page{Page: 3, Limit: 500}.Normalize())
	assert.Equal(t, 40, Page{Page: 3, Limit: 20}.Offset())
}

func TestNewPageInfo(t *testing.T) {
	info := NewPageInfo(Page{Page: 2, Limit: 20}, 41)
	assert.Equal(t, 3, info.TotalPages)
	assert.Equal(t, int64(41), info.Total)

	assert.Equal(t, 0, NewPageInfo(Page{}, 0).TotalPages)
}
