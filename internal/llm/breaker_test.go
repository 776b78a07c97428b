package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	perr "querypilot/internal/platform/errors"
)

type scriptedTransport struct {
	calls int
	fn    func(call int) (*Response, error)
}

func (s *scriptedTransport) Generate(_ context.Context, _, _ string, _ Params) (*Response, error) {
	s.calls++
	return s.fn(s.calls)
}

func TestResponseText(t *testing.T) {
	t.Parallel()

	var nilResp *Response
	require.Empty(t, nilResp.Text())
	require.Empty(t, (&Response{}).Text())

	r := &Response{Candidates: []Candidate{
		{Parts: []Part{{Text: "hello "}, {Text: "world"}}},
		{Parts: []Part{{Text: "ignored"}}},
	}}
	require.Equal(t, "hello world", r.Text())
}

func TestBreaker_OpensAfterConsecutiveTransportFailures(t *testing.T) {
	t.Parallel()

	inner := &scriptedTransport{fn: func(int) (*Response, error) {
		return nil, perr.ModelTransportf("boom")
	}}
	b := NewBreaker(inner)

	for i := 0; i < 5; i++ {
		_, err := b.Generate(context.Background(), "m", "p", DefaultParams())
		require.Error(t, err)
	}
	require.Equal(t, 5, inner.calls)

	// circuit is open now; the inner transport is not called again
	_, err := b.Generate(context.Background(), "m", "p", DefaultParams())
	require.Equal(t, perr.ErrorCodeModelTransport, perr.CodeOf(err))
	require.Equal(t, 5, inner.calls)
}

func TestBreaker_NonTransportErrorsDoNotTrip(t *testing.T) {
	t.Parallel()

	inner := &scriptedTransport{fn: func(int) (*Response, error) {
		return nil, perr.InvalidPlanf("bad plan")
	}}
	b := NewBreaker(inner)

	for i := 0; i < 10; i++ {
		_, err := b.Generate(context.Background(), "m", "p", DefaultParams())
		require.Equal(t, perr.ErrorCodeInvalidPlan, perr.CodeOf(err))
	}
	require.Equal(t, 10, inner.calls)
}

func TestBreaker_PassesThroughSuccess(t *testing.T) {
	t.Parallel()

	inner := &scriptedTransport{fn: func(int) (*Response, error) {
		return &Response{Candidates: []Candidate{{Parts: []Part{{Text: "ok"}}}}}, nil
	}}
	b := NewBreaker(inner)

	resp, err := b.Generate(context.Background(), "m", "p", DefaultParams())
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text())
}
