package testutil

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reprotrace/internal/trace"
)

func TestRunBuilder_NestedCalls(t *testing.T) {
	b := NewRun(100)
	b.Call("f", nil, nil, func() {
		b.Call("g", A("x", trace.Float(1)), nil, nil)
		b.Call("g", A("x", trace.Float(2)), nil, nil)
	})

	events := b.Events()
	require.Len(t, events, 6)

	labels := make([]string, len(events))
	for i, ev := range events {
		labels[i] = ev.Function + ":" + string(ev.Label)
	}
	assert.Equal(t, []string{
		"f:inputs", "g:inputs", "g:outputs", "g:inputs", "g:outputs", "f:outputs",
	}, labels)

	assert.Equal(t, int64(100), events[0].ID)
	assert.Equal(t, int64(101), events[1].ID)
	assert.Equal(t, events[1].ID, events[3].ID, "same function keeps its id")
	assert.Equal(t, events[0].Time, events[5].Time)
	assert.Less(t, events[1].Time, events[3].Time)
}

func TestSliceSource(t *testing.T) {
	src := &SliceSource{Events: []trace.TraceEvent{{ID: 1}}}
	ev, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.ID)

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)

	boom := errors.New("boom")
	src = &SliceSource{Err: boom}
	_, err = src.Next()
	assert.ErrorIs(t, err, boom)

	require.NoError(t, src.Close())
	assert.True(t, src.Closed)
}

func TestWriteRun(t *testing.T) {
	b := NewRun(1)
	b.Call("f", nil, nil, nil).Call("g", nil, nil, nil)

	files := WriteRun(t, t.TempDir(), "run", b.Events(), trace.WithEventsPerFile(3))
	require.Len(t, files, 2)

	r, err := trace.OpenFiles(files)
	require.NoError(t, err)
	defer r.Close()

	n := 0
	for {
		_, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 4, n)
}
