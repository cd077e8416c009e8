package util_test

import (
	"context"
	"testing"

	"github.com/downfa11-org/xstream/util"
	"github.com/stretchr/testify/assert"
)

func TestSignalContextCanceledWithParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := util.SignalContext(parent)
	defer stop()

	assert.NotEmpty(t, util.ShutdownSignals())
	assert.NoError(t, ctx.Err())
	cancel()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
