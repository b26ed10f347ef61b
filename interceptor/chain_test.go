package interceptor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInterceptor struct {
	BaseInterceptor
	order *[]string
}

func (r *recordingInterceptor) OnRequest(rc *RequestContext) (bool, interface{}, error) {
	*r.order = append(*r.order, "req:"+r.Name())
	return false, nil, nil
}

func (r *recordingInterceptor) OnResponse(resp interface{}) interface{} {
	*r.order = append(*r.order, "resp:"+r.Name())
	return resp
}

func TestChainOrdersRequestAscendingResponseDescending(t *testing.T) {
	var order []string
	chain := NewChain()
	require.NoError(t, chain.Add(&recordingInterceptor{BaseInterceptor{NameValue: "low", PriorityValue: 10}, &order}))
	require.NoError(t, chain.Add(&recordingInterceptor{BaseInterceptor{NameValue: "high", PriorityValue: 1}, &order}))

	rc := &RequestContext{Ctx: context.Background()}
	_, _, err := chain.RunRequest(rc)
	require.NoError(t, err)
	chain.RunResponse(nil)

	assert.Equal(t, []string{"req:high", "req:low", "resp:low", "resp:high"}, order)
}

func TestChainRejectsDuplicateName(t *testing.T) {
	chain := NewChain()
	var order []string
	require.NoError(t, chain.Add(&recordingInterceptor{BaseInterceptor{NameValue: "dup", PriorityValue: 1}, &order}))
	assert.Error(t, chain.Add(&recordingInterceptor{BaseInterceptor{NameValue: "dup", PriorityValue: 2}, &order}))
}

func TestChainRemove(t *testing.T) {
	chain := NewChain()
	var order []string
	require.NoError(t, chain.Add(&recordingInterceptor{BaseInterceptor{NameValue: "a", PriorityValue: 1}, &order}))
	chain.Remove("a")
	_, _, err := chain.RunRequest(&RequestContext{Ctx: context.Background()})
	require.NoError(t, err)
	assert.Empty(t, order)
}

type shortCircuitInterceptor struct {
	BaseInterceptor
}

func (shortCircuitInterceptor) OnRequest(*RequestContext) (bool, interface{}, error) {
	return true, "cached-response", nil
}

func TestChainShortCircuitsOnRequest(t *testing.T) {
	chain := NewChain()
	require.NoError(t, chain.Add(&shortCircuitInterceptor{BaseInterceptor{NameValue: "sc", PriorityValue: 1}}))

	sc, resp, err := chain.RunRequest(&RequestContext{Ctx: context.Background()})
	require.NoError(t, err)
	assert.True(t, sc)
	assert.Equal(t, "cached-response", resp)
}

func TestChainSnapshotTracksHookCounts(t *testing.T) {
	chain := NewChain()
	var order []string
	require.NoError(t, chain.Add(&recordingInterceptor{BaseInterceptor{NameValue: "a", PriorityValue: 1}, &order}))

	_, _, _ = chain.RunRequest(&RequestContext{Ctx: context.Background()})
	chain.RunResponse(nil)

	snap := chain.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, uint64(1), snap[0].Requests)
	assert.Equal(t, uint64(1), snap[0].Responses)
}
