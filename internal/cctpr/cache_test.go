package cctpr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCache(t *testing.T) {
	c := NewConfigCache[int](time.Minute)
	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }

	loads := 0
	load := func(context.Context) (int, error) {
		loads++
		return loads, nil
	}

	v, err := c.Get(context.Background(), "0xabc", load)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	now = now.Add(30 * time.Second)
	v, _ = c.Get(context.Background(), "0xabc", load)
	assert.Equal(t, 1, v, "served from cache within ttl")

	c.Invalidate("0xabc")
	v, _ = c.Get(context.Background(), "0xabc", load)
	assert.Equal(t, 2, v)

	now = now.Add(2 * time.Minute)
	v, _ = c.Get(context.Background(), "0xabc", load)
	assert.Equal(t, 3, v, "reloaded after ttl")

	_, err = c.Get(context.Background(), "0xdef", func(context.Context) (int, error) { return 0, errors.New("rpc") })
	assert.Error(t, err)
}

type scriptedFlow struct {
	steps []ActionKind
	i     int
	seen  []*StepResult
}

func (f *scriptedFlow) Next(_ context.Context, prev *StepResult) (*Action, error) {
	if f.i >= len(f.steps) {
		return nil, ErrFlowFinished
	}
	f.seen = append(f.seen, prev)
	a := &Action{Kind: f.steps[f.i]}
	f.i++
	return a, nil
}

func TestDrive(t *testing.T) {
	f := &scriptedFlow{steps: []ActionKind{ActionSignPermit, ActionTransfer}}
	final, err := Drive(context.Background(), f, func(_ context.Context, a *Action) (*StepResult, error) {
		assert.True(t, a.Kind.IsSignature())
		return &StepResult{Signature: []byte{1}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, ActionTransfer, final.Kind)
	require.Len(t, f.seen, 2)
	assert.Nil(t, f.seen[0])
	assert.Equal(t, []byte{1}, f.seen[1].Signature)

	_, err = f.Next(context.Background(), nil)
	assert.ErrorIs(t, err, ErrFlowFinished)
}
