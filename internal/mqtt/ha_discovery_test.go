package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/spotcharge2mqtt/internal/config"
	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *MQTTClient {
	cfg := &config.Config{MQTT: config.MQTTConfig{Host: "localhost", Port: 1883, BaseTopic: "spotcharge", HADiscoveryTopic: "ha"}}
	return CreateMQTTClient(cfg, OptsFromConfig(cfg), nil, nil)
}

func TestSensorDiscoveryMessage(t *testing.T) {

	client := testClient()
	bridge := domain.BridgeDevice("spotcharge")
	planner := domain.PlannerDevice(bridge)

	var status domain.GenericSensor
	for _, s := range domain.PlannerSensors(planner, "EUR") {
		if s.Id == domain.SENSOR_ID_PLANNER_STATUS {
			status = s
		}
	}
	msg := GenericSensorToHADiscoveryMessage(client, status)
	assert.Equal(t, "spotcharge/sensor/planner_status/state", msg.StateTopic)
	assert.Equal(t, "spotcharge/bridge/state", msg.AvTopic)
	assert.Contains(t, msg.Options, domain.StatusExecutingStr)
	assert.Equal(t, "ha/sensor/"+planner.Id+"/planner_status/config", HADiscoverySensorTopic(client, status))

	bridgeSensor := domain.BridgeSensors(bridge)[0]
	bridgeMsg := GenericSensorToHADiscoveryMessage(client, bridgeSensor)
	assert.Equal(t, "ha/binary_sensor/"+bridge.Id+"/"+domain.SENSOR_ID_BRIDGE_STATE+"/config", HADiscoverySensorTopic(client, bridgeSensor))
	assert.Equal(t, "spotcharge/bridge/state", bridgeMsg.StateTopic)
	assert.Equal(t, MQTT_PAYLOAD_ONLINE, bridgeMsg.PayloadOn)
}

func TestButtonDiscoveryMessage(t *testing.T) {

	client := testClient()
	planner := domain.PlannerDevice(domain.BridgeDevice("spotcharge"))
	button := domain.PlannerButtons(planner)[0]

	msg := GenericButtonToHADiscoveryMessage(client, button)
	assert.Equal(t, "spotcharge/button/optimize/press", msg.CommandTopic)
	assert.Equal(t, MQTT_PAYLOAD_PRESS, msg.PayloadPress)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "state_topic")
}
