package poller

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/fingerprint"
	"github.com/dara-forge/forge/pkg/gateway"
	"github.com/dara-forge/forge/pkg/gateway/mocks"
	"github.com/dara-forge/forge/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	primary   = gateway.Endpoint{Name: "primary", BaseURL: "http://primary.invalid"}
	secondary = gateway.Endpoint{Name: "secondary", BaseURL: "http://secondary.invalid"}
	tertiary  = gateway.Endpoint{Name: "tertiary", BaseURL: "http://tertiary.invalid"}
)

func testRoot() fingerprint.Fingerprint {
	return fingerprint.FromDigest(bytes.Repeat([]byte{0x5a}, fingerprint.Size))
}

func result(s gateway.ProbeStatus) gateway.ProbeResult {
	return gateway.ProbeResult{Status: s}
}

func TestPollUntilAvailable_FirstAvailableWins(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	fp := testRoot()

	gomock.InOrder(
		prober.EXPECT().Probe(gomock.Any(), primary, fp).Return(result(gateway.NotYetAvailable)),
		prober.EXPECT().Probe(gomock.Any(), secondary, fp).Return(result(gateway.Available)),
	)

	res, err := New(prober).PollUntilAvailable(context.Background(), []gateway.Endpoint{primary, secondary, tertiary}, fp, DefaultPolicy())
	require.NoError(t, err)
	assert.True(t, res.Available)
	require.NotNil(t, res.Endpoint)
	assert.Equal(t, "secondary", res.Endpoint.Name)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, gateway.NotYetAvailable, res.Last["primary"].Status)
	assert.NotContains(t, res.Last, "tertiary")
}

func TestPollUntilAvailable_FatalEndpointLeavesRotation(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	fp := testRoot()

	prober.EXPECT().Probe(gomock.Any(), primary, fp).Return(result(gateway.FatalError)).Times(1)
	prober.EXPECT().Probe(gomock.Any(), secondary, fp).Return(result(gateway.TransientError)).MinTimes(2)

	res, err := New(prober).PollUntilAvailable(context.Background(), []gateway.Endpoint{primary, secondary}, fp,
		Policy{Budget: 300 * time.Millisecond, Interval: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Nil(t, res.Endpoint)
	assert.GreaterOrEqual(t, res.Elapsed, 300*time.Millisecond)
	assert.Equal(t, gateway.FatalError, res.Last["primary"].Status)
}

func TestPollUntilAvailable_AllFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	fp := testRoot()

	prober.EXPECT().Probe(gomock.Any(), gomock.Any(), fp).Return(result(gateway.FatalError)).Times(2)

	start := time.Now()
	_, err := New(prober).PollUntilAvailable(context.Background(), []gateway.Endpoint{primary, secondary}, fp, DefaultPolicy())
	require.ErrorIs(t, err, errors.ErrNoUsableEndpoints)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollUntilAvailable_ZeroBudgetRunsOnePass(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	fp := testRoot()

	prober.EXPECT().Probe(gomock.Any(), primary, fp).Return(result(gateway.NotYetAvailable)).Times(1)
	prober.EXPECT().Probe(gomock.Any(), secondary, fp).Return(result(gateway.TransientError)).Times(1)

	res, err := New(prober).PollUntilAvailable(context.Background(), []gateway.Endpoint{primary, secondary}, fp, Policy{})
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, 2, res.Attempts)
}

func TestPollUntilAvailable_InvalidInput(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	p := New(prober)
	ctx := context.Background()

	_, err := p.PollUntilAvailable(ctx, nil, testRoot(), DefaultPolicy())
	assert.ErrorIs(t, err, errors.ErrNoEndpoints)

	_, err = p.PollUntilAvailable(ctx, []gateway.Endpoint{primary}, fingerprint.Fingerprint{}, DefaultPolicy())
	assert.ErrorIs(t, err, errors.ErrMalformedFingerprint)

	_, err = p.PollUntilAvailable(ctx, []gateway.Endpoint{primary}, testRoot(), Policy{Budget: time.Second})
	assert.ErrorIs(t, err, errors.ErrInvalidPollPolicy)

	_, err = p.PollUntilAvailable(ctx, []gateway.Endpoint{primary}, testRoot(), Policy{Budget: -time.Second, Interval: time.Second})
	assert.ErrorIs(t, err, errors.ErrInvalidPollPolicy)
}

func TestPollUntilAvailable_Cancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	fp := testRoot()
	prober.EXPECT().Probe(gomock.Any(), primary, fp).Return(result(gateway.NotYetAvailable)).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := New(prober).PollUntilAvailable(ctx, []gateway.Endpoint{primary}, fp,
		Policy{Budget: 10 * time.Second, Interval: 50 * time.Millisecond})
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPollUntilAvailable_Observer(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	fp := testRoot()
	prober.EXPECT().Probe(gomock.Any(), primary, fp).Return(result(gateway.NotYetAvailable))
	prober.EXPECT().Probe(gomock.Any(), secondary, fp).Return(result(gateway.Available))

	var seen []string
	p := New(prober, WithObserver(func(ep gateway.Endpoint, res gateway.ProbeResult, _ time.Duration) {
		seen = append(seen, ep.Name+"="+res.Status.String())
	}))
	_, err := p.PollUntilAvailable(context.Background(), []gateway.Endpoint{primary, secondary}, fp, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, []string{"primary=not_yet_available", "secondary=available"}, seen)
}

func TestPollUntilAvailable_BudgetIsHonored(t *testing.T) {
	gw := testutil.NewGateway(t)
	fp := testRoot() // never uploaded

	prober := gateway.NewHTTPProber(gateway.NewClient(time.Second, ""))
	start := time.Now()
	res, err := New(prober).PollUntilAvailable(context.Background(),
		[]gateway.Endpoint{{Name: "gw", BaseURL: gw.URL()}}, fp,
		Policy{Budget: 2 * time.Second, Interval: 500 * time.Millisecond})
	took := time.Since(start)

	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.GreaterOrEqual(t, took, 2*time.Second)
	assert.Less(t, took, 2500*time.Millisecond)
	assert.GreaterOrEqual(t, gw.Hits(fp), 4)
}

func TestPollUntilAvailable_DelayedAvailability(t *testing.T) {
	gw := testutil.NewGateway(t)
	fp := gw.Put(t, fingerprint.MerkleKeccak256, []byte("hello world"))
	gw.DelayAvailability(fp, 2)

	var probes atomic.Int32
	prober := gateway.NewHTTPProber(gateway.NewClient(time.Second, ""))
	p := New(prober, WithObserver(func(gateway.Endpoint, gateway.ProbeResult, time.Duration) {
		probes.Add(1)
	}))

	res, err := p.PollUntilAvailable(context.Background(),
		[]gateway.Endpoint{{Name: "gw", BaseURL: gw.URL()}}, fp,
		Policy{Budget: 5 * time.Second, Interval: 100 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Equal(t, 3, res.Attempts)
	assert.EqualValues(t, 3, probes.Load())
	assert.GreaterOrEqual(t, res.Elapsed, 200*time.Millisecond)
}
