package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingServer answers every request with body and counts the calls.
func countingServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.NotEmpty(t, r.URL.Query().Get("name"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestAgifyClient(t *testing.T) {
	srv, calls := countingServer(t, http.StatusOK, `{"count":10,"name":"Kyle","age":34}`)
	client := NewAgifyClient(srv.URL, Options{})

	age, err := client.Age(context.Background(), "Kyle")
	require.NoError(t, err)
	assert.Equal(t, 34, age)

	// Second call is served from the cache
	age, err = client.Age(context.Background(), "Kyle")
	require.NoError(t, err)
	assert.Equal(t, 34, age)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestGenderizeClient(t *testing.T) {
	srv, _ := countingServer(t, http.StatusOK, `{"name":"Kyle","gender":"male","probability":0.99}`)

	gender, err := NewGenderizeClient(srv.URL, Options{}).Gender(context.Background(), "Kyle")
	require.NoError(t, err)
	assert.Equal(t, "male", gender)
}

func TestNationalizeClient(t *testing.T) {
	srv, _ := countingServer(t, http.StatusOK,
		`{"name":"Kyle","country":[{"country_id":"US","probability":0.2},{"country_id":"AU","probability":0.1}]}`)

	country, err := NewNationalizeClient(srv.URL, Options{}).Nationality(context.Background(), "Kyle")
	require.NoError(t, err)
	assert.Equal(t, "US", country)
}

func TestLookupFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		service string
		call    func(ctx context.Context, url string) error
	}{
		{
			name:    "null age",
			status:  http.StatusOK,
			body:    `{"name":"Zzz","age":null}`,
			service: ServiceAge,
			call: func(ctx context.Context, url string) error {
				_, err := NewAgifyClient(url, Options{}).Age(ctx, "Zzz")
				return err
			},
		},
		{
			name:    "null gender",
			status:  http.StatusOK,
			body:    `{"name":"Zzz","gender":null}`,
			service: ServiceGender,
			call: func(ctx context.Context, url string) error {
				_, err := NewGenderizeClient(url, Options{}).Gender(ctx, "Zzz")
				return err
			},
		},
		{
			name:    "no countries",
			status:  http.StatusOK,
			body:    `{"name":"Zzz","country":[]}`,
			service: ServiceNationality,
			call: func(ctx context.Context, url string) error {
				_, err := NewNationalizeClient(url, Options{}).Nationality(ctx, "Zzz")
				return err
			},
		},
		{
			name:    "server error",
			status:  http.StatusTooManyRequests,
			body:    `{"error":"Request limit reached"}`,
			service: ServiceAge,
			call: func(ctx context.Context, url string) error {
				_, err := NewAgifyClient(url, Options{}).Age(ctx, "Zzz")
				return err
			},
		},
		{
			name:    "invalid json",
			status:  http.StatusOK,
			body:    `not json`,
			service: ServiceGender,
			call: func(ctx context.Context, url string) error {
				_, err := NewGenderizeClient(url, Options{}).Gender(ctx, "Zzz")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := countingServer(t, tt.status, tt.body)
			err := tt.call(context.Background(), srv.URL)

			var lookupErr *ExternalLookupError
			require.True(t, errors.As(err, &lookupErr), "got %v", err)
			assert.Equal(t, tt.service, lookupErr.Service)
			assert.Equal(t, "Zzz", lookupErr.Name)
		})
	}
}

func TestFailuresAreNotCached(t *testing.T) {
	srv, calls := countingServer(t, http.StatusInternalServerError, `oops`)
	client := NewAgifyClient(srv.URL, Options{})

	_, err := client.Age(context.Background(), "Kyle")
	assert.Error(t, err)
	_, err = client.Age(context.Background(), "Kyle")
	assert.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestUnreachableService(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewAgifyClient(url, Options{Timeout: time.Second}).Age(context.Background(), "Kyle")
	var lookupErr *ExternalLookupError
	assert.True(t, errors.As(err, &lookupErr))
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv, calls := countingServer(t, http.StatusOK, `{"age":30}`)
	client := NewAgifyClient(srv.URL, Options{RateLimit: 0.001, Burst: 1})

	_, err := client.Age(context.Background(), "A")
	require.NoError(t, err)

	// The bucket is empty and refills far too slowly for this deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Age(ctx, "B")
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}
