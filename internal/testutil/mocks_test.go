package testutil_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcirtsa/Jp2Converter/internal/testutil"
	"github.com/tcirtsa/Jp2Converter/pkg/converter"
)

// The testify mocks are exercised by their consumers; GateConverter carries
// its own synchronization, so it gets a direct test.

func TestGateConverter_ReleaseAndFail(t *testing.T) {
	g := testutil.NewGateConverter(2)
	g.Fail["/in/b.jp2"] = true

	results := make(chan converter.Outcome, 2)
	go func() { results <- g.Convert(converter.Task{SourcePath: "/in/a.jp2"}) }()
	go func() { results <- g.Convert(converter.Task{SourcePath: "/in/b.jp2"}) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	started, err := g.WaitStarted(ctx, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/in/a.jp2", "/in/b.jp2"}, started)

	select {
	case <-results:
		t.Fatal("conversion completed before release")
	case <-time.After(20 * time.Millisecond):
	}

	g.Release(2)
	byPath := map[string]converter.Outcome{}
	for i := 0; i < 2; i++ {
		o := <-results
		byPath[o.SourcePath] = o
	}
	assert.True(t, byPath["/in/a.jp2"].Success)
	assert.False(t, byPath["/in/b.jp2"].Success)
	assert.ErrorIs(t, byPath["/in/b.jp2"].Err, testutil.ErrGateFailure)
	assert.Len(t, g.Calls(), 2)
}

func TestGateConverter_OpenIsIdempotent(t *testing.T) {
	g := testutil.NewGateConverter(1)
	g.Open()
	g.Open()
	out := g.Convert(converter.Task{SourcePath: "x.jp2"})
	assert.True(t, out.Success)
	g.Release(3) // returns immediately once open
}
