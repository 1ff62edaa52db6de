package escrow_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/escrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const purchaseJSON = `{
	"status": "success",
	"data": {
		"id": "pur-1",
		"blockchainIdentifier": "bc-1",
		"onChainState": "FundsLocked",
		"NextAction": {"requestedAction": "WaitingForExternalAction", "errorType": null},
		"CurrentTransaction": {"txHash": "0xabc", "status": "Confirmed"},
		"resultSubmittedAt": null
	}
}`

func TestGetPurchaseByBlockchainID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/purchase", r.URL.Path)
		assert.Equal(t, "bc-1", r.URL.Query().Get("blockchainIdentifier"))
		assert.Equal(t, "key", r.Header.Get("token"))
		_, _ = w.Write([]byte(purchaseJSON))
	}))
	defer srv.Close()

	c := escrow.NewClient(srv.URL+"/", "key", time.Second)
	got, err := c.GetPurchaseByBlockchainID(context.Background(), "bc-1")
	require.NoError(t, err)

	assert.Equal(t, "pur-1", got.ExternalID)
	require.NotNil(t, got.OnChainStatus)
	assert.Equal(t, domain.OnChainFundsLocked, *got.OnChainStatus)
	assert.Equal(t, domain.NextActionWaitingForExternalAction, got.NextAction)
	require.NotNil(t, got.TxHash)
	assert.Equal(t, "0xabc", *got.TxHash)
	assert.Nil(t, got.NextActionErrorType)
}

func TestGetPurchaseByID_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := escrow.NewClient(srv.URL, "", time.Second).GetPurchaseByID(context.Background(), "pur-1")
	assert.ErrorIs(t, err, domain.ErrPurchaseNotFound)
}

func TestGetPurchaseByID_NullData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":null}`))
	}))
	defer srv.Close()

	_, err := escrow.NewClient(srv.URL, "", time.Second).GetPurchaseByID(context.Background(), "pur-1")
	assert.ErrorIs(t, err, domain.ErrPurchaseNotFound)
}

func TestGetPurchaseByID_UnknownOnChainStateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"id":"p","blockchainIdentifier":"b","onChainState":"Teleported","NextAction":{"requestedAction":"None"}}}`))
	}))
	defer srv.Close()

	_, err := escrow.NewClient(srv.URL, "", time.Second).GetPurchaseByID(context.Background(), "p")
	assert.ErrorIs(t, err, domain.ErrUnknownEnumValue)
}

func TestGetPurchaseByID_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := escrow.NewClient(srv.URL, "", time.Second).GetPurchaseByID(context.Background(), "p")
	assert.ErrorIs(t, err, domain.ErrCollaboratorUnavailable)
}

func TestRequestRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/purchase/request-refund", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bc-1", body["blockchainIdentifier"])
		_, _ = w.Write([]byte(`{"status":"success","data":{"id":"pur-1","blockchainIdentifier":"bc-1","onChainState":"FundsLocked","NextAction":{"requestedAction":"SetRefundRequestedRequested"}}}`))
	}))
	defer srv.Close()

	got, err := escrow.NewClient(srv.URL, "", time.Second).RequestRefund(context.Background(), "bc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.NextActionSetRefundRequestedRequested, got.NextAction)
}
