package settlement

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmoBanana/smtd-server/internal/models"
)

func TestHTTPSettlerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"amount":20000000,"reference":"5KtP3k"}`))
	}))
	defer srv.Close()

	s := NewHTTPSettler(srv.URL, time.Second)
	receipt, err := s.Settle(context.Background(), "BBB", 20_000_000)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, uint64(20_000_000), receipt.Amount)
	assert.Equal(t, "5KtP3k", receipt.Reference)
}

func TestHTTPSettlerNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTPSettler(srv.URL, time.Second)
	_, err := s.Settle(context.Background(), "BBB", 100)
	assert.Error(t, err)
}

func TestHTTPSettlerNotConfigured(t *testing.T) {
	s := NewHTTPSettler("", time.Second)
	_, err := s.Settle(context.Background(), "BBB", 100)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestHTTPSettlerContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	s := NewHTTPSettler(srv.URL, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Settle(ctx, "BBB", 100)
	assert.Error(t, err)
}

// fakeSettler returns a canned receipt or error.
type fakeSettler struct {
	receipt models.Receipt
	err     error
	calls   int
}

func (f *fakeSettler) Settle(ctx context.Context, winner string, amount uint64) (models.Receipt, error) {
	f.calls++
	f.receipt.Amount = amount
	return f.receipt, f.err
}
