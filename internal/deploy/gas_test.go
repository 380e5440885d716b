package deploy

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGasAdvisor_Options(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"maxFeePerGas":"2000000000","maxPriorityFeePerGas":1500000,"gasLimit":6000000}`))
	}))
	defer srv.Close()

	opts := NewGasAdvisor(srv.URL, time.Second).Options(context.Background())
	assert.Equal(t, big.NewInt(2_000_000_000), opts.MaxFeePerGas)
	assert.Equal(t, big.NewInt(1_500_000), opts.MaxPriorityFeePerGas)
	assert.Nil(t, opts.GasPrice)
	assert.Equal(t, uint64(6_000_000), opts.GasLimit)
}

func TestGasAdvisor_FailuresAreEmpty(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		},
		"garbage": func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`not json`))
		},
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			opts := NewGasAdvisor(srv.URL, time.Second).Options(context.Background())
			assert.True(t, opts.IsZero())
		})
	}
}

func TestGasAdvisor_Disabled(t *testing.T) {
	a := NewGasAdvisor("", time.Second)
	assert.Nil(t, a)
	assert.True(t, a.Options(context.Background()).IsZero())
}
