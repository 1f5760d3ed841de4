package anchor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
)

func witnessServer(t *testing.T, feeMicros int64, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/fee", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int64{"fee_micros": feeMicros})
	})
	mux.HandleFunc("POST /api/v1/entries", func(w http.ResponseWriter, r *http.Request) {
		var sub logSubmission
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sub))
		assert.Equal(t, "cognigate/anchor/v1", sub.Kind)
		if status != http.StatusCreated {
			w.WriteHeader(status)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(logReceipt{
			TxRef:          "tx-123",
			LogIndex:       42,
			BlockRef:       "block-9",
			IntegratedTime: 1750000000,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLogWitnessSubmit(t *testing.T) {
	srv := witnessServer(t, 100, http.StatusCreated)
	w, err := NewLogWitness(LogWitnessConfig{BaseURL: srv.URL, LogID: "log-1", FeeCeilingMicros: 500})
	require.NoError(t, err)

	receipt, err := w.Submit(context.Background(), "root", 0, 9)
	require.NoError(t, err)
	assert.Equal(t, "tx-123", receipt.TxRef)
	assert.Equal(t, int64(42), receipt.LogIndex)
	assert.Equal(t, "block-9", receipt.BlockRef)
	assert.False(t, receipt.IntegratedTime.IsZero())
}

func TestLogWitnessFeeCeiling(t *testing.T) {
	srv := witnessServer(t, 900, http.StatusCreated)
	w, err := NewLogWitness(LogWitnessConfig{BaseURL: srv.URL, LogID: "log-1", FeeCeilingMicros: 500})
	require.NoError(t, err)

	_, err = w.Submit(context.Background(), "root", 0, 9)
	assert.ErrorIs(t, err, ErrFeeCeiling)
	assert.ErrorIs(t, err, contracts.ErrAnchorSubmission)
}

func TestLogWitnessZeroCeilingDisablesGate(t *testing.T) {
	srv := witnessServer(t, 900, http.StatusCreated)
	w, err := NewLogWitness(LogWitnessConfig{BaseURL: srv.URL, LogID: "log-1"})
	require.NoError(t, err)

	_, err = w.Submit(context.Background(), "root", 0, 9)
	assert.NoError(t, err)
}

func TestLogWitnessServerError(t *testing.T) {
	srv := witnessServer(t, 100, http.StatusInternalServerError)
	w, err := NewLogWitness(LogWitnessConfig{BaseURL: srv.URL, LogID: "log-1"})
	require.NoError(t, err)

	_, err = w.Submit(context.Background(), "root", 0, 9)
	assert.ErrorIs(t, err, contracts.ErrAnchorSubmission)
}

func TestLogWitnessRequiresBaseURL(t *testing.T) {
	_, err := NewLogWitness(LogWitnessConfig{})
	assert.Error(t, err)
}
