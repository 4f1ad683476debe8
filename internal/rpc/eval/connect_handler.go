package eval

import (
	"context"
	"errors"
	"net/http"

	"github.com/bufbuild/connect-go"
	"github.com/google/uuid"

	"github.com/animus-coder/oraclebench/internal/observability"
	"github.com/animus-coder/oraclebench/internal/rpc"
	"github.com/animus-coder/oraclebench/internal/rpc/connectjson"
)

const ConnectRunEvalProcedure = "/connect.eval.v1.EvalService/RunEval"

// NewConnectHandler builds a Connect bidi stream handler for RunEval.
func NewConnectHandler(runner Runner, metrics *observability.Metrics) (string, http.Handler) {
	h := &connectEvalHandler{runner: runner, metrics: metrics}
	return ConnectRunEvalProcedure, connect.NewBidiStreamHandler(ConnectRunEvalProcedure, h.handle, connect.WithCodec(connectjson.Codec{}))
}

type connectEvalHandler struct {
	runner  Runner
	metrics *observability.Metrics
}

func (h *connectEvalHandler) handle(ctx context.Context, stream *connect.BidiStream[rpc.RunEvalStreamRequest, rpc.RunEvalEvent]) error {
	h.metrics.IncActiveSessions("connect")
	defer h.metrics.DecActiveSessions("connect")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	first, err := stream.Receive()
	if err != nil {
		h.metrics.RecordTransportError("connect", "receive_first")
		return err
	}
	if first == nil || first.Run == nil {
		h.metrics.RecordTransportError("connect", "missing_run")
		return connect.NewError(connect.CodeInvalidArgument, errors.New("first message must include run payload"))
	}

	req := *first.Run
	if req.Scenario == "" {
		h.metrics.RecordTransportError("connect", "missing_scenario")
		return connect.NewError(connect.CodeInvalidArgument, errors.New("scenario is required"))
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	// Listen for cancellation messages from the client.
	go func() {
		for {
			msg, recvErr := stream.Receive()
			if recvErr != nil {
				if !errors.Is(recvErr, context.Canceled) {
					h.metrics.RecordTransportError("connect", "receive_stream")
				}
				cancel()
				return
			}
			if msg != nil && msg.Cancel {
				cancel()
				return
			}
		}
	}()

	httpReq := &http.Request{}
	httpReq = httpReq.WithContext(ctx)

	events, runErr := h.runner.Run(httpReq, req)
	if runErr != nil {
		h.metrics.RecordTransportError("connect", "runner_error")
		return connect.NewError(connect.CodeInvalidArgument, runErr)
	}

	for ev := range events {
		if err := stream.Send(&ev); err != nil {
			h.metrics.RecordTransportError("connect", "send")
			return err
		}
	}
	return nil
}
