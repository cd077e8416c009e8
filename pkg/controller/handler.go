package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/downfa11-org/xstream/pkg/metrics"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/downfa11-org/xstream/util"
)

// MaxBlock caps how long a single READ_GROUP may hold a connection.
const MaxBlock = 5 * time.Minute

type CommandHandler struct {
	API types.StreamAPI
}

func NewCommandHandler(api types.StreamAPI) *CommandHandler {
	return &CommandHandler{API: api}
}

// HandleRequest serves one decoded request. It never returns nil; failures
// are reported through the response code.
func (ch *CommandHandler) HandleRequest(ctx context.Context, cctx *ClientContext, req *Request) *Response {
	if cctx != nil {
		cctx.Track(req.Consumer)
	}

	resp, err := ch.dispatch(ctx, req)
	metrics.ObserveRequest(string(req.Op), err)
	if resp == nil {
		resp = &Response{}
	}
	if err != nil {
		resp.Code = CodeOf(err)
		resp.Error = err.Error()
		var lost *types.LostError
		if errors.As(err, &lost) {
			resp.LostIDs = FormatIDs(lost.IDs)
		}
	}
	ch.logRequestResult(cctx, req, resp)
	return resp
}

func (ch *CommandHandler) logRequestResult(cctx *ClientContext, req *Request, resp *Response) {
	client := ""
	if cctx != nil {
		client = cctx.ID
	}
	switch resp.Code {
	case CodeOK:
		util.Debug("client %s: %s stream=%s group=%s ok", client, req.Op, req.Stream, req.Group)
	case CodeInternal, CodeStorageUnavailable:
		util.Error("client %s: %s stream=%s group=%s failed: %s", client, req.Op, req.Stream, req.Group, resp.Error)
	default:
		util.Debug("client %s: %s stream=%s group=%s rejected: %s", client, req.Op, req.Stream, req.Group, resp.Error)
	}
}

func (ch *CommandHandler) dispatch(ctx context.Context, req *Request) (*Response, error) {
	switch req.Op {
	case OpPing:
		return &Response{}, nil
	case OpAppend:
		return ch.handleAppend(ctx, req)
	case OpReadRange:
		return ch.handleReadRange(ctx, req)
	case OpTrim:
		n, err := ch.API.Trim(ctx, req.Stream, req.MaxLen)
		return &Response{Count: n}, err
	case OpCreateGroup:
		return ch.handleCreateGroup(ctx, req)
	case OpDeleteGroup:
		existed, err := ch.API.DeleteGroup(ctx, req.Stream, req.Group)
		return &Response{Flag: existed}, err
	case OpReadGroup:
		return ch.handleReadGroup(ctx, req)
	case OpReadPending:
		ds, err := ch.API.ReadPending(ctx, req.Stream, req.Group, req.Consumer, req.Count)
		return &Response{Entries: FromDeliveries(ds)}, err
	case OpAck:
		return ch.handleAck(ctx, req)
	case OpClaim:
		minIdle := time.Duration(req.MinIdleMS) * time.Millisecond
		ds, err := ch.API.Claim(ctx, req.Stream, req.Group, req.Consumer, minIdle, req.Count)
		return &Response{Entries: FromDeliveries(ds)}, err
	case OpPending:
		ps, err := ch.API.Pending(ctx, req.Stream, req.Group)
		return &Response{Pending: FromPending(ps)}, err
	case OpGroups:
		gs, err := ch.API.Groups(ctx, req.Stream)
		return &Response{Groups: FromGroups(gs)}, err
	default:
		return nil, fmt.Errorf("%w: unknown op %q", errBadRequest, req.Op)
	}
}

func (ch *CommandHandler) handleAppend(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Fields) == 0 {
		return nil, fmt.Errorf("%w: append without fields", errBadRequest)
	}
	id, err := ch.API.Append(ctx, req.Stream, ToFields(req.Fields))
	if err != nil {
		return nil, err
	}
	return &Response{ID: id.String()}, nil
}

func (ch *CommandHandler) handleReadRange(ctx context.Context, req *Request) (*Response, error) {
	after := types.ZeroID
	if req.After != "" {
		var err error
		if after, err = types.ParseEntryID(req.After); err != nil {
			return nil, err
		}
	}
	entries, err := ch.API.ReadRange(ctx, req.Stream, after, req.Count)
	return &Response{Entries: FromEntries(entries)}, err
}

func (ch *CommandHandler) handleCreateGroup(ctx context.Context, req *Request) (*Response, error) {
	start, err := types.ParseStartPosition(req.Start)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	res, err := ch.API.CreateGroup(ctx, req.Stream, req.Group, start)
	if err != nil {
		return nil, err
	}
	return &Response{Flag: res == types.AlreadyExisted}, nil
}

func (ch *CommandHandler) handleReadGroup(ctx context.Context, req *Request) (*Response, error) {
	block := time.Duration(req.BlockMS) * time.Millisecond
	if block > MaxBlock {
		block = MaxBlock
	}
	ds, err := ch.API.ReadGroup(ctx, req.Stream, req.Group, req.Consumer, req.Count, block)
	return &Response{Entries: FromDeliveries(ds)}, err
}

func (ch *CommandHandler) handleAck(ctx context.Context, req *Request) (*Response, error) {
	ids, err := ParseIDs(req.IDs)
	if err != nil {
		return nil, err
	}
	n, err := ch.API.Ack(ctx, req.Stream, req.Group, ids...)
	return &Response{Count: n}, err
}
