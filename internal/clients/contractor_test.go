package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deal-service/internal/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractorClient_UpdateMainBorrower(t *testing.T) {
	var (
		gotAuth string
		gotBody mainBorrowerRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/contractor/main-borrower", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewContractorClient(ContractorConfig{BaseURL: srv.URL + "/", ServiceToken: "svc"})
	ctx := security.WithPrincipal(context.Background(), security.Principal{UserID: "u", Token: "caller"})

	code, err := c.UpdateMainBorrower(ctx, "c-1", true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Bearer caller", gotAuth)
	assert.Equal(t, mainBorrowerRequest{ContractorID: "c-1", HasMainDeals: true}, gotBody)
}

func TestContractorClient_FallsBackToServiceToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewContractorClient(ContractorConfig{BaseURL: srv.URL, ServiceToken: "svc"})
	_, err := c.UpdateMainBorrower(context.Background(), "c-1", false)
	require.NoError(t, err)
	assert.Equal(t, "Bearer svc", gotAuth)
}

func TestContractorClient_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "contractor not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewContractorClient(ContractorConfig{BaseURL: srv.URL})
	code, err := c.UpdateMainBorrower(context.Background(), "c-1", true)

	assert.Equal(t, http.StatusNotFound, code)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Contains(t, se.Error(), "contractor not found")
}

func TestContractorClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewContractorClient(ContractorConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	code, err := c.UpdateMainBorrower(context.Background(), "c-1", true)

	assert.Zero(t, code)
	assert.Error(t, err)
}
