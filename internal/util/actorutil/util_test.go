package actorutil

import (
	"errors"
	"testing"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/mqtt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsedMQTTCommandToCommand(t *testing.T) {

	cmd, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.SWITCH_ID_AUTOMATIC_CONTROL,
		Command:  mqtt.COMMAND_SWITCH,
		Payload:  mqtt.MQTT_PAYLOAD_OFF,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SetAutomaticControlRequest{Enabled: false}, cmd)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.BUTTON_ID_OPTIMIZE,
		Command:  mqtt.COMMAND_BUTTON,
		Payload:  mqtt.MQTT_PAYLOAD_PRESS,
	})
	require.NoError(t, err)
	assert.IsType(t, domain.RequestOptimization{}, cmd)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.INPUT_NUMBER_ID_DISCHARGE_HOURS_TARGET,
		Command:  mqtt.COMMAND_NUMBER,
		Payload:  "3.0",
	})
	require.NoError(t, err)
	targets := cmd.(domain.SetHourTargetsRequest)
	assert.Nil(t, targets.ChargeHours)
	assert.Equal(t, 3, *targets.DischargeHours)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: "unknown", Command: mqtt.COMMAND_SWITCH, Payload: "on"})
	assert.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestParsedMQTTCommandRejectsBadTargets(t *testing.T) {

	for _, payload := range []string{"-1", "25", "2.5", "many"} {
		_, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
			DeviceId: domain.INPUT_NUMBER_ID_CHARGE_HOURS_TARGET,
			Command:  mqtt.COMMAND_NUMBER,
			Payload:  payload,
		})
		assert.True(t, errors.Is(err, mqtt.ErrInvalidCommand), payload)
	}
}
