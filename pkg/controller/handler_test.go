package controller_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/downfa11-org/xstream/pkg/broker"
	"github.com/downfa11-org/xstream/pkg/config"
	"github.com/downfa11-org/xstream/pkg/controller"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/downfa11-org/xstream/pkg/types/mock_types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newHandler(t *testing.T) *controller.CommandHandler {
	cfg := &config.Config{Storage: config.StorageMemory}
	cfg.Normalize()
	b := broker.NewBroker(cfg)
	require.NoError(t, b.Open())
	t.Cleanup(func() { _ = b.Close() })
	return controller.NewCommandHandler(b)
}

func fields(v string) []controller.Field {
	return []controller.Field{{Key: "pb", Value: []byte(v)}}
}

func TestHandleRequest_GroupFlow(t *testing.T) {
	ctx := context.Background()
	ch := newHandler(t)
	cctx := controller.NewClientContext("127.0.0.1:1")

	resp := ch.HandleRequest(ctx, cctx, &controller.Request{Op: controller.OpCreateGroup, Stream: "s", Group: "G", Start: "beginning"})
	require.Equal(t, controller.CodeOK, resp.Code, resp.Error)
	assert.False(t, resp.Flag)

	resp = ch.HandleRequest(ctx, cctx, &controller.Request{Op: controller.OpCreateGroup, Stream: "s", Group: "G"})
	require.Equal(t, controller.CodeOK, resp.Code)
	assert.True(t, resp.Flag, "second create reports already existed")

	var ids []string
	for i := 0; i < 3; i++ {
		resp = ch.HandleRequest(ctx, cctx, &controller.Request{Op: controller.OpAppend, Stream: "s", Fields: fields(fmt.Sprint(i))})
		require.Equal(t, controller.CodeOK, resp.Code)
		ids = append(ids, resp.ID)
	}

	resp = ch.HandleRequest(ctx, cctx, &controller.Request{Op: controller.OpReadGroup, Stream: "s", Group: "G", Consumer: "c1", Count: 2})
	require.Equal(t, controller.CodeOK, resp.Code)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, ids[0], resp.Entries[0].ID)
	assert.Equal(t, "c1", resp.Entries[0].Consumer)
	assert.Equal(t, 1, resp.Entries[0].DeliveryCount)

	resp = ch.HandleRequest(ctx, cctx, &controller.Request{Op: controller.OpAck, Stream: "s", Group: "G", IDs: ids[:1]})
	require.Equal(t, controller.CodeOK, resp.Code)
	assert.Equal(t, 1, resp.Count)

	resp = ch.HandleRequest(ctx, cctx, &controller.Request{Op: controller.OpPending, Stream: "s", Group: "G"})
	require.Equal(t, controller.CodeOK, resp.Code)
	require.Len(t, resp.Pending, 1)
	assert.Equal(t, ids[1], resp.Pending[0].ID)

	resp = ch.HandleRequest(ctx, cctx, &controller.Request{Op: controller.OpGroups, Stream: "s"})
	require.Len(t, resp.Groups, 1)
	assert.Equal(t, ids[1], resp.Groups[0].Cursor)

	resp = ch.HandleRequest(ctx, cctx, &controller.Request{Op: controller.OpReadRange, Stream: "s", After: ids[0]})
	require.Len(t, resp.Entries, 2)

	assert.Equal(t, 10, cctx.Requests())
	assert.Equal(t, []string{"c1"}, cctx.Consumers())
}

func TestHandleRequest_LostEntries(t *testing.T) {
	ctx := context.Background()
	ch := newHandler(t)

	ch.HandleRequest(ctx, nil, &controller.Request{Op: controller.OpCreateGroup, Stream: "s", Group: "G", Start: "0"})
	for i := 0; i < 2; i++ {
		ch.HandleRequest(ctx, nil, &controller.Request{Op: controller.OpAppend, Stream: "s", Fields: fields("x")})
	}
	resp := ch.HandleRequest(ctx, nil, &controller.Request{Op: controller.OpReadGroup, Stream: "s", Group: "G", Consumer: "c1"})
	require.Len(t, resp.Entries, 2)

	resp = ch.HandleRequest(ctx, nil, &controller.Request{Op: controller.OpTrim, Stream: "s"})
	require.Equal(t, 2, resp.Count)

	resp = ch.HandleRequest(ctx, nil, &controller.Request{Op: controller.OpAck, Stream: "s", Group: "G", IDs: []string{"bogus"}})
	assert.Equal(t, controller.CodeInvalidID, resp.Code)

	pending := ch.HandleRequest(ctx, nil, &controller.Request{Op: controller.OpPending, Stream: "s", Group: "G"})
	require.Len(t, pending.Pending, 2)

	resp = ch.HandleRequest(ctx, nil, &controller.Request{Op: controller.OpAck, Stream: "s", Group: "G", IDs: []string{pending.Pending[0].ID}})
	assert.Equal(t, controller.CodeEntryLost, resp.Code)
	assert.Equal(t, []string{pending.Pending[0].ID}, resp.LostIDs)

	err := resp.Err("s", "G")
	var lost *types.LostError
	require.ErrorAs(t, err, &lost)
	assert.ErrorIs(t, err, types.ErrEntryLost)
	assert.Equal(t, pending.Pending[0].ID, lost.IDs[0].String())
}

func TestHandleRequest_Errors(t *testing.T) {
	ctx := context.Background()
	ch := newHandler(t)

	tests := []struct {
		name string
		req  controller.Request
		code controller.Code
	}{
		{"unknown op", controller.Request{Op: "NOPE"}, controller.CodeBadRequest},
		{"append without fields", controller.Request{Op: controller.OpAppend, Stream: "s"}, controller.CodeBadRequest},
		{"bad start", controller.Request{Op: controller.OpCreateGroup, Stream: "s", Group: "G", Start: "middle"}, controller.CodeBadRequest},
		{"unknown group", controller.Request{Op: controller.OpReadGroup, Stream: "s", Group: "G", Consumer: "c"}, controller.CodeGroupNotFound},
		{"bad after", controller.Request{Op: controller.OpReadRange, Stream: "s", After: "x-y"}, controller.CodeInvalidID},
		{"bad name", controller.Request{Op: controller.OpAppend, Stream: "", Fields: fields("x")}, controller.CodeInvalidName},
		{"ping", controller.Request{Op: controller.OpPing}, controller.CodeOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			resp := ch.HandleRequest(ctx, nil, &req)
			assert.Equal(t, tt.code, resp.Code, resp.Error)
		})
	}
}

func TestHandleRequest_StorageFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_types.NewMockStreamAPI(ctrl)
	api.EXPECT().
		Append(gomock.Any(), "s", gomock.Any()).
		Return(types.ZeroID, fmt.Errorf("%w: append: disk full", types.ErrStorageUnavailable))
	api.EXPECT().
		ReadGroup(gomock.Any(), "s", "G", "c", 0, controller.MaxBlock).
		Return(nil, nil)

	ch := controller.NewCommandHandler(api)
	resp := ch.HandleRequest(context.Background(), nil, &controller.Request{Op: controller.OpAppend, Stream: "s", Fields: fields("x")})
	require.Equal(t, controller.CodeStorageUnavailable, resp.Code)
	assert.ErrorIs(t, resp.Err("s", ""), types.ErrStorageUnavailable)
	assert.Contains(t, resp.Err("s", "").Error(), "disk full")

	resp = ch.HandleRequest(context.Background(), nil, &controller.Request{
		Op: controller.OpReadGroup, Stream: "s", Group: "G", Consumer: "c", BlockMS: (time.Hour).Milliseconds(),
	})
	assert.Equal(t, controller.CodeOK, resp.Code, "block is capped")
	assert.Empty(t, resp.Entries)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, controller.CodeOK, controller.CodeOf(nil))
	assert.Equal(t, controller.CodeCanceled, controller.CodeOf(context.Canceled))
	assert.Equal(t, controller.CodeInternal, controller.CodeOf(errors.New("boom")))
	assert.Equal(t, controller.CodeEntryLost, controller.CodeOf(&types.LostError{}))

	resp := &controller.Response{Code: controller.CodeGroupNotFound, Error: types.ErrGroupNotFound.Error()}
	assert.Equal(t, types.ErrGroupNotFound, resp.Err("s", "G"))
}
