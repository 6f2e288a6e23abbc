package marketdata

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	known map[string]string
	err   error
	asked [][]string
}

func (f *fakeProvider) Quote(_ context.Context, symbols []string, _ string) ([]RawQuote, error) {
	f.asked = append(f.asked, symbols)
	if f.err != nil {
		return nil, f.err
	}
	var out []RawQuote
	for _, s := range symbols {
		if price, ok := f.known[s]; ok {
			d := decimal.RequireFromString(price)
			out = append(out, RawQuote{Symbol: s, Price: &d})
		}
	}
	return out, nil
}

func TestChainAsksLaterProvidersForMissingOnly(t *testing.T) {
	first := &fakeProvider{known: map[string]string{"AAPL": "190"}}
	second := &fakeProvider{known: map[string]string{"BTC": "65000"}}

	quotes, err := NewChain(first, second).Quote(context.Background(), []string{"AAPL", "BTC", "ZZZ"}, "US")
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
	assert.Equal(t, [][]string{{"AAPL", "BTC", "ZZZ"}}, first.asked)
	assert.Equal(t, [][]string{{"BTC", "ZZZ"}}, second.asked)
}

func TestChainSkipsFailingProvider(t *testing.T) {
	broken := &fakeProvider{err: errors.New("HTTP 500")}
	backup := &fakeProvider{known: map[string]string{"AAPL": "190"}}

	quotes, err := NewChain(broken, nil, backup).Quote(context.Background(), []string{"AAPL"}, "US")
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "AAPL", quotes[0].Symbol)
}

func TestChainAllProvidersFail(t *testing.T) {
	a := &fakeProvider{err: errors.New("timeout")}
	b := &fakeProvider{err: errors.New("HTTP 503")}

	_, err := NewChain(a, b).Quote(context.Background(), []string{"AAPL"}, "US")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "HTTP 503")
}

func TestChainStopsWhenAllFound(t *testing.T) {
	first := &fakeProvider{known: map[string]string{"AAPL": "190"}}
	second := &fakeProvider{}

	_, err := NewChain(first, second).Quote(context.Background(), []string{"AAPL"}, "US")
	require.NoError(t, err)
	assert.Empty(t, second.asked)
}
