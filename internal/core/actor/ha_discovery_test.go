package actor

import (
	"testing"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/util"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDiscoveryRequest(t *testing.T) {

	cfg := util.LoadTestConfig()
	act := NewHADiscoveryActor(&cfg, nil, nil, zap.NewNop())
	assert.Equal(t, STATE_HAD_WAITING_HEALTHY, act.StateName())

	req := act.discoveryRequest()
	planner := domain.PlannerDevice(domain.BridgeDevice(cfg.MQTT.BaseTopic))

	assert.Equal(t, domain.SENSOR_ID_BRIDGE_STATE, req.Sensors[0].Id)
	// the first planner sensor describes the device, the rest only reference it
	assert.Equal(t, planner, req.Sensors[1].Device)
	for _, s := range req.Sensors[2:] {
		assert.Equal(t, domain.IdDevice(planner), s.Device, s.Id)
	}

	assert.Equal(t, domain.SWITCH_ID_AUTOMATIC_CONTROL, req.Switches[0].Id)
	assert.Equal(t, domain.BUTTON_ID_OPTIMIZE, req.Buttons[0].Id)
	assert.Len(t, req.InputNumbers, 2)
}
