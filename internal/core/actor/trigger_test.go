package actor

import (
	"testing"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestActorOptimizationTrigger(t *testing.T) {

	as := actor.NewActorSystem()
	defer as.Shutdown()

	received := make(chan domain.RequestOptimization, 2)
	pid := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if msg, ok := ctx.Message().(domain.RequestOptimization); ok {
			received <- msg
		}
	}))

	trigger := NewActorOptimizationTrigger(as.Root, pid, zap.NewNop())
	trigger.RequestOptimization("midnight")
	trigger.RequestOptimization("new price data")

	var runIds []string
	for _, reason := range []string{"midnight", "new price data"} {
		select {
		case msg := <-received:
			assert.Equal(t, reason, msg.Reason)
			assert.NotEmpty(t, msg.RunId)
			runIds = append(runIds, msg.RunId)
		case <-time.After(2 * time.Second):
			require.FailNow(t, "optimization request not delivered")
		}
	}
	assert.NotEqual(t, runIds[0], runIds[1])
}
