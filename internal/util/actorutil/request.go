package actorutil

import (
	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

// ExtendedRequest resolves who should get the response of a request: the explicit reply-to
// ref when the request carries one, the sender otherwise.
type ExtendedRequest interface {
	Respond(ctx actor.Context, resp domain.ActorResponse)
	ReplyTo(ctx actor.Context) *actor.PID
}

type forRequest struct {
	req domain.ActorRequest
}

func ForRequest(r domain.ActorRequest) ExtendedRequest {
	return forRequest{req: r}
}

// Respond drops the response when there is nobody to answer (fire-and-forget requests).
func (r forRequest) Respond(ctx actor.Context, resp domain.ActorResponse) {
	if pid := r.ReplyTo(ctx); pid != nil {
		ctx.Send(pid, resp)
	}
}

func (r forRequest) ReplyTo(ctx actor.Context) *actor.PID {
	if ref := r.req.ReplyTo(); ref != nil {
		return (*actor.PID)(ref)
	}
	return ctx.Sender()
}
