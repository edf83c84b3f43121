package main

import (
	"context"

	"github.com/trellisml/trellis/internal/rpc"
)

// callStore routes one store operation: through the daemon when connected,
// directly against the open store otherwise. The direct argument is the store
// method for the operation; because request and response shapes are shared
// between both paths, callers cannot tell which one served them.
func callStore[Req any, Resp any](op string, req *Req, direct func(context.Context, *Req) (*Resp, error)) (*Resp, error) {
	if daemonClient != nil {
		return rpc.Call[Resp](daemonClient, op, req)
	}
	return direct(rootCtx, req)
}
