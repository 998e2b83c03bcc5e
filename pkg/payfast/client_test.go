package payfast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platterhq/platter/pkg/observability"
)

func testClient(t *testing.T, handler http.HandlerFunc, sandbox bool) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		MerchantID: "10000100",
		Passphrase: "salt and pepper",
		BaseURL:    srv.URL,
		Sandbox:    sandbox,
		Timeout:    2 * time.Second,
	}, observability.NewNopLogger())
	c.now = func() time.Time {
		return time.Date(2024, 3, 1, 10, 15, 30, 0, time.FixedZone("SAST", 2*3600))
	}
	return c
}

func TestClientCancelSignsRequest(t *testing.T) {
	var gotMethod, gotPath string
	var gotHeaders http.Header

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		w.Write([]byte(`{"data":{"response":true,"message":"Cancelled"}}`))
	}, false)

	res, err := c.Cancel(context.Background(), "tok-123")
	require.NoError(t, err)
	assert.Equal(t, true, res.Fields["response"])

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/subscriptions/tok-123/cancel", gotPath)
	assert.Equal(t, "10000100", gotHeaders.Get("merchant-id"))
	assert.Equal(t, "v1", gotHeaders.Get("version"))
	assert.Equal(t, "2024-03-01T10:15:30+02:00", gotHeaders.Get("timestamp"))

	// The signature must be reproducible from the header fields alone.
	want := Sign(map[string]string{
		"merchant-id": "10000100",
		"version":     "v1",
		"timestamp":   "2024-03-01T10:15:30+02:00",
	}, "salt and pepper")
	assert.Equal(t, want, gotHeaders.Get("signature"))
}

func TestClientPauseIncludesBodyInSignature(t *testing.T) {
	var gotSignature string
	var gotBody map[string]string

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("signature")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"data":{"response":{"status_text":"PAUSED"},"message":"Paused"}}`))
	}, false)

	_, err := c.Pause(context.Background(), "tok-123", 2)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"cycles": "2"}, gotBody)

	want := Sign(map[string]string{
		"merchant-id": "10000100",
		"version":     "v1",
		"timestamp":   "2024-03-01T10:15:30+02:00",
		"cycles":      "2",
	}, "salt and pepper")
	assert.Equal(t, want, gotSignature)
}

func TestClientSandboxFlag(t *testing.T) {
	var gotQuery string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"data":{"response":{},"message":""}}`))
	}, true)

	_, err := c.Fetch(context.Background(), "tok-123")
	require.NoError(t, err)
	assert.Equal(t, "testing=true", gotQuery)
}

func TestClientBusinessErrorOn200(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":{"message":"insufficient permissions"}}`))
	}, false)

	_, err := c.Pause(context.Background(), "tok-123", 1)

	var bizErr *BusinessError
	require.ErrorAs(t, err, &bizErr)
	assert.Equal(t, "insufficient permissions", bizErr.Message)
}

func TestClientBusinessErrorOnNon200(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"data":{"message":"invalid token"}}`))
	}, false)

	_, err := c.Cancel(context.Background(), "bad-token")

	var bizErr *BusinessError
	require.ErrorAs(t, err, &bizErr)
	assert.Equal(t, "invalid token", bizErr.Message)
}

func TestClientUnexpectedStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>bad gateway</html>`))
	}, false)

	_, err := c.Cancel(context.Background(), "tok-123")
	require.Error(t, err)

	var bizErr *BusinessError
	assert.NotErrorAs(t, err, &bizErr)
	assert.Contains(t, err.Error(), "unexpected status 502")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Status)
}

func TestStatusErrorRetryable(t *testing.T) {
	assert.True(t, (&StatusError{Status: 500}).Retryable())
	assert.True(t, (&StatusError{Status: 502}).Retryable())
	assert.True(t, (&StatusError{Status: 429}).Retryable())
	assert.False(t, (&StatusError{Status: 400}).Retryable())
	assert.False(t, (&StatusError{Status: 401}).Retryable())
	assert.False(t, (&StatusError{Status: 403}).Retryable())
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // connection refused from here on

	c := NewClient(Config{
		MerchantID: "10000100",
		Passphrase: "p",
		BaseURL:    url,
		Timeout:    time.Second,
	}, observability.NewNopLogger())

	_, err := c.Fetch(context.Background(), "tok-123")
	require.Error(t, err)

	var bizErr *BusinessError
	assert.NotErrorAs(t, err, &bizErr)
}

func TestUpdateParams(t *testing.T) {
	assert.True(t, UpdateParams{}.IsEmpty())

	amount := int64(14900)
	freq := 6
	p := UpdateParams{Amount: &amount, Frequency: &freq}
	assert.False(t, p.IsEmpty())
	assert.Equal(t, map[string]string{"amount": "14900", "frequency": "6"}, p.body())
}
