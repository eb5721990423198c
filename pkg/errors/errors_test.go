package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTestPrice    = NewAbort("test", 3, "E_PRICE_0", ClassValidation)
	errTestMarket   = NewAbort("test", 4, "E_INVALID_MARKET_ID", ClassNotFound)
	errTestPriority = NewAbort("test", 5, "E_TOO_FEW_FREE_NODES", ClassCapacity)
	errTestOverflow = NewAbort("test", 6, "E_OVERFLOW", ClassInvariant)
)

func TestAbortOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("place limit order: %w", errTestPrice)

	a, ok := AbortOf(err)
	require.True(t, ok)
	assert.Same(t, errTestPrice, a)
	assert.True(t, Is(err, errTestPrice))
	assert.False(t, Is(err, errTestMarket))
	assert.True(t, IsAbort(err, "test", 3))
	assert.False(t, IsAbort(err, "other", 3))

	_, ok = AbortOf(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestFromError_StatusByClass(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{errTestPrice, http.StatusBadRequest},
		{errTestMarket, http.StatusNotFound},
		{errTestPriority, http.StatusConflict},
		{errTestOverflow, http.StatusUnprocessableEntity},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			p := FromError(tt.err, "/api/v1/markets/1")
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, "/api/v1/markets/1", p.Instance)
		})
	}
}

func TestProblemDetails_MarshalFlattensExtras(t *testing.T) {
	p := FromError(fmt.Errorf("cancel: %w", errTestMarket), "/x").WithTraceID("abc")
	b, err := json.Marshal(p)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, TypeNotFound, got["type"])
	assert.Equal(t, "test", got["module"])
	assert.EqualValues(t, 4, got["code"])
	assert.Equal(t, "E_INVALID_MARKET_ID", got["abort"])
	assert.Equal(t, "abc", got["trace_id"])
	assert.NotContains(t, got, "errors")
}
