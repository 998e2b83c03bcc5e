package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	type payload struct {
		Amount    int64 `json:"amount"`
		Frequency int   `json:"frequency"`
	}

	t.Run("decodes valid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"amount": 9900, "frequency": 3}`))

		var p payload
		require.NoError(t, ParseJSON(req, &p))
		assert.Equal(t, int64(9900), p.Amount)
		assert.Equal(t, 3, p.Frequency)
	})

	t.Run("empty body leaves destination untouched", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(""))

		p := payload{Amount: 5}
		require.NoError(t, ParseJSON(req, &p))
		assert.Equal(t, int64(5), p.Amount)
	})

	t.Run("malformed body fails", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"amount":`))

		var p payload
		err := ParseJSON(req, &p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON")
	})
}

func TestParseJSONOrError(t *testing.T) {
	t.Run("writes 400 on bad JSON", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader("not json"))
		rr := httptest.NewRecorder()

		var dest map[string]interface{}
		ok := ParseJSONOrError(rr, req, &dest)

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("passes through on valid JSON", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{}`))
		rr := httptest.NewRecorder()

		var dest map[string]interface{}
		assert.True(t, ParseJSONOrError(rr, req, &dest))
	})
}

func TestParseQueryBool(t *testing.T) {
	assert.True(t, ParseQueryBool(httptest.NewRequest("GET", "/?force=true", nil), "force"))
	assert.False(t, ParseQueryBool(httptest.NewRequest("GET", "/?force=1", nil), "force"))
	assert.False(t, ParseQueryBool(httptest.NewRequest("GET", "/", nil), "force"))
}
