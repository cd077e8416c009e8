package controller_test

import (
	"bytes"
	"testing"

	"github.com/downfa11-org/xstream/pkg/controller"
	"github.com/downfa11-org/xstream/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageFrameCodecs(t *testing.T) {
	req := controller.Request{
		Op:      controller.OpReadGroup,
		Stream:  "telemetry",
		Group:   "telemetry_group",
		Fields:  []controller.Field{{Key: "pb", Value: bytes.Repeat([]byte("abc"), 100)}},
		IDs:     []string{"1-0", "1-1"},
		BlockMS: 2000,
	}
	for _, codec := range []string{util.CompressionNone, util.CompressionGzip, util.CompressionSnappy, util.CompressionLZ4, util.CompressionZstd} {
		t.Run(codec, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, controller.WriteMessage(&buf, codec, &req))
			assert.Equal(t, util.CompressionID(codec), buf.Bytes()[4])

			var got controller.Request
			require.NoError(t, controller.ReadMessage(&buf, &got))
			assert.Equal(t, req, got)
		})
	}
}

func TestReadMessageRejectsGarbage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, util.WriteWithLength(&buf, []byte{9, 1, 2}))
	var req controller.Request
	err := controller.ReadMessage(&buf, &req)
	require.Error(t, err)
	assert.Equal(t, controller.CodeBadRequest, controller.CodeOf(err))

	buf.Reset()
	require.NoError(t, util.WriteWithLength(&buf, []byte{0, 0xff, 0xff}))
	err = controller.ReadMessage(&buf, &req)
	assert.Equal(t, controller.CodeBadRequest, controller.CodeOf(err))
}
