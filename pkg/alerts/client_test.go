package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDeals(t *testing.T) {
	var bodies []smsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req smsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		bodies = append(bodies, req)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "+19015550100")
	sent, failed := c.SendDeals(context.Background(), []Deal{
		{
			StreetAddress: "123 Main St",
			AskingPrice:   152000,
			Estimate:      200000,
			ListingURL:    "https://www.zillow.com/homedetails/1_zpid/",
		},
	})

	assert.Equal(t, 1, sent)
	assert.Equal(t, 0, failed)
	require.Len(t, bodies, 1)
	assert.Equal(t, "+19015550100", bodies[0].To)
	assert.Contains(t, bodies[0].Body, "123 Main St")
	assert.Contains(t, bodies[0].Body, "$152,000")
	assert.Contains(t, bodies[0].Body, "$200,000")
	assert.Contains(t, bodies[0].Body, "24% off")
}

func TestSendDealsCountsFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "+19015550100")
	sent, failed := c.SendDeals(context.Background(), []Deal{{StreetAddress: "a"}, {StreetAddress: "b"}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, failed)
}

func TestSendDealsEmpty(t *testing.T) {
	c := NewClient("http://unused.invalid", "+10000000000")
	sent, failed := c.SendDeals(context.Background(), nil)
	assert.Zero(t, sent)
	assert.Zero(t, failed)
}
