package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartapi/heartgate/internal/model"
	"github.com/heartapi/heartgate/internal/pkg/apperrors"
	"github.com/heartapi/heartgate/internal/repository"
)

func newAdmissionFixture(t *testing.T, upstream http.HandlerFunc) (*AdmissionService, *repository.MemoryQuotaLedger, *capturePublisher) {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	registry := repository.NewMemoryInterfaceRegistry()
	registry.Register(&model.InterfaceInfo{
		ID: 10, Name: "echo", Host: srv.URL, Path: "/echo", Method: "POST",
		Price: 0.1, Stock: 100, Status: model.InterfaceOnline,
	})
	ledger := repository.NewMemoryQuotaLedger()
	ledger.Seed(7, 10, 5)
	pub := &capturePublisher{}
	svc := NewAdmissionService(registry, ledger, NewHTTPForwarder(5*time.Second), pub, "comp")
	return svc, ledger, pub
}

func TestInvokeChargesAndForwards(t *testing.T) {
	svc, ledger, pub := newAdmissionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/echo", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pong":true}`))
	})

	out, err := svc.Invoke(context.Background(), InvokeInput{
		Credential: &model.Credential{UserID: 7},
		Path:       "/echo", Method: "POST", Body: `{"ping":true}`,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out.Status)
	assert.JSONEq(t, `{"pong":true}`, string(out.Body))

	q, err := ledger.Get(context.Background(), 7, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), q.LeftNum, "a successful call costs one unit")
	assert.Empty(t, pub.all(), "no compensation on success")
}

func TestInvokeUnknownInterface(t *testing.T) {
	svc, _, pub := newAdmissionFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := svc.Invoke(context.Background(), InvokeInput{
		Credential: &model.Credential{UserID: 7},
		Path:       "/nope", Method: "POST",
	})
	assert.Equal(t, apperrors.ErrUnknownInterface, appErrType(t, err))
	assert.Empty(t, pub.all())
}

func TestInvokeQuotaExhausted(t *testing.T) {
	svc, ledger, pub := newAdmissionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called without quota")
	})
	ledger.Seed(7, 10, 0)

	_, err := svc.Invoke(context.Background(), InvokeInput{
		Credential: &model.Credential{UserID: 7},
		Path:       "/echo", Method: "POST",
	})
	assert.Equal(t, apperrors.ErrQuotaExhausted, appErrType(t, err))
	assert.Empty(t, pub.all())
}

func TestInvokeNoQuotaRowIsExhausted(t *testing.T) {
	svc, _, _ := newAdmissionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called without quota")
	})

	_, err := svc.Invoke(context.Background(), InvokeInput{
		Credential: &model.Credential{UserID: 99},
		Path:       "/echo", Method: "POST",
	})
	assert.Equal(t, apperrors.ErrQuotaExhausted, appErrType(t, err))
}

func TestInvokeNonSuccessPublishesCompensation(t *testing.T) {
	svc, ledger, pub := newAdmissionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	out, err := svc.Invoke(context.Background(), InvokeInput{
		Credential: &model.Credential{UserID: 7},
		Path:       "/echo", Method: "POST",
	})
	require.NoError(t, err, "the downstream response passes through even on failure status")
	assert.Equal(t, http.StatusInternalServerError, out.Status)

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "comp", msgs[0].queue)
	var comp model.CompensationMessage
	require.NoError(t, json.Unmarshal(msgs[0].body, &comp))
	assert.Equal(t, int64(7), comp.UserID)
	assert.Equal(t, int64(10), comp.InterfaceID)
	assert.NotEmpty(t, comp.ChargeID)

	// The charge stays until the compensation consumer reverses it.
	q, err := ledger.Get(context.Background(), 7, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), q.LeftNum)
}

func TestInvokeTransportFailurePublishesCompensation(t *testing.T) {
	registry := repository.NewMemoryInterfaceRegistry()
	registry.Register(&model.InterfaceInfo{
		ID: 10, Host: "http://127.0.0.1:1", Path: "/echo", Method: "POST",
		Status: model.InterfaceOnline,
	})
	ledger := repository.NewMemoryQuotaLedger()
	ledger.Seed(7, 10, 5)
	pub := &capturePublisher{}
	svc := NewAdmissionService(registry, ledger, NewHTTPForwarder(time.Second), pub, "comp")

	_, err := svc.Invoke(context.Background(), InvokeInput{
		Credential: &model.Credential{UserID: 7},
		Path:       "/echo", Method: "POST",
	})
	assert.Equal(t, apperrors.ErrUpstream, appErrType(t, err))
	assert.Len(t, pub.all(), 1)
}

func TestInvokeDistinctChargeIDs(t *testing.T) {
	svc, _, pub := newAdmissionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 2; i++ {
		_, err := svc.Invoke(context.Background(), InvokeInput{
			Credential: &model.Credential{UserID: 7},
			Path:       "/echo", Method: "POST",
		})
		require.NoError(t, err)
	}
	msgs := pub.all()
	require.Len(t, msgs, 2)
	var a, b model.CompensationMessage
	require.NoError(t, json.Unmarshal(msgs[0].body, &a))
	require.NoError(t, json.Unmarshal(msgs[1].body, &b))
	assert.NotEqual(t, a.ChargeID, b.ChargeID, "each charge gets its own compensation identity")
}
