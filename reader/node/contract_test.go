package node

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanwatch/config"
	"loanwatch/reader"
)

type fakeNode struct {
	t       *testing.T
	replies map[int]string
	calls   []callRequest
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "/contracts/call-contract", r.URL.Path)
	var req callRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
	f.calls = append(f.calls, req)
	reply, ok := f.replies[req.MethodIndex]
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	_, _ = w.Write([]byte(reply))
}

func newTestReader(t *testing.T, replies map[int]string) (*Reader, *fakeNode) {
	t.Helper()
	node := &fakeNode{t: t, replies: replies}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Source.Node.URL = srv.URL + "/"
	cfg.Reader.RateLimit = config.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 10}
	return NewReader(&cfg), node
}

func TestFindPositionID(t *testing.T) {
	r, node := newTestReader(t, map[int]string{
		23: `{"type":"CallContractSucceeded","returns":[{"type":"ByteVec","value":"00ab12"}]}`,
	})

	id, err := r.FindPositionID(context.Background(), "owner")
	require.NoError(t, err)
	assert.Equal(t, "00ab12", id)

	require.Len(t, node.calls, 1)
	call := node.calls[0]
	assert.Equal(t, "tpxjsWJSaUh5i7XzNAsTWMRtD9QvDTV9zmMNeHHS6jQB", call.Address)
	assert.Equal(t, 0, call.Group)
	assert.Equal(t, []callArg{{Value: "owner", Type: "Address"}}, call.Args)
}

func TestBorrowedAmountScalesByDecimals(t *testing.T) {
	r, node := newTestReader(t, map[int]string{
		9: `{"type":"CallContractSucceeded","returns":[{"type":"U256","value":"1234500000000"}]}`,
	})

	v, err := r.BorrowedAmount(context.Background(), "position")
	require.NoError(t, err)
	assert.InDelta(t, 1234.5, v, 1e-9)
	require.Len(t, node.calls, 1)
	assert.Equal(t, "position", node.calls[0].Address)
	assert.Empty(t, node.calls[0].Args)
}

func TestInterestRateAcceptsBareNumber(t *testing.T) {
	r, _ := newTestReader(t, map[int]string{
		5: `{"type":"CallContractSucceeded","returns":[{"type":"U256","value":7}]}`,
	})

	v, err := r.InterestRate(context.Background(), "position")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
}

func TestCallFailuresAreMalformed(t *testing.T) {
	cases := []string{
		`{"type":"CallContractFailed","error":"boom"}`,
		`{"type":"CallContractSucceeded","returns":[]}`,
		`{"type":"CallContractSucceeded","returns":[{"type":"U256","value":"abc"}]}`,
		`{"type":"CallContractSucceeded","returns":[{"type":"U256","value":null}]}`,
	}
	for _, body := range cases {
		r, _ := newTestReader(t, map[int]string{9: body})
		_, err := r.BorrowedAmount(context.Background(), "position")
		assert.True(t, errors.Is(err, reader.ErrMalformedPayload), "body %s: %v", body, err)
	}
}

func TestCallUnexpectedStatus(t *testing.T) {
	r, _ := newTestReader(t, map[int]string{})
	_, err := r.InterestRate(context.Background(), "position")
	assert.True(t, errors.Is(err, reader.ErrUnexpectedStatus), "got %v", err)
}

func TestCallNodeNotFoundIsNotMissingLoan(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	cfg := config.Default()
	cfg.Source.Node.URL = srv.URL + "/"
	r := NewReader(&cfg)

	_, err := r.BorrowedAmount(context.Background(), "position")
	assert.True(t, errors.Is(err, reader.ErrUnexpectedStatus), "got %v", err)
	assert.False(t, errors.Is(err, reader.ErrNotFound))
}
