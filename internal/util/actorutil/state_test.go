package actorutil

import (
	"testing"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
)

type namedState string

func (s namedState) Name() string { return string(s) }

func (s namedState) Receive(actor.Context) {}

func TestActorWithStatesTracksNames(t *testing.T) {

	s := ActorWithStates{Behavior: actor.NewBehavior()}
	assert.Equal(t, "", s.StateName())

	s.Become(namedState("idle"))
	s.BecomeStacked(namedState("await"))
	assert.Equal(t, "await", s.StateName())

	s.UnbecomeStacked()
	assert.Equal(t, "idle", s.StateName())

	// the base state stays when the stack is already at the bottom
	s.UnbecomeStacked()
	assert.Equal(t, "idle", s.StateName())

	s.BecomeStacked(namedState("await"))
	s.Become(namedState("ready"))
	assert.Equal(t, "ready", s.StateName())
}
