package actor

import (
	"testing"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/core/events"
	"github.com/berfenger/spotcharge2mqtt/internal/mqtt"
	"github.com/berfenger/spotcharge2mqtt/internal/util"
	"github.com/berfenger/spotcharge2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, &es, logger) })
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, resp.Healthy)

	for _, ev := range events.TelemetryToUpdateEvents(domain.Telemetry{NextActionHour: -1}) {
		es.Publish(ev)
	}

	result, err = context.RequestFuture(pid, domain.PublishDiscoveryRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	_, ok = result.(domain.PublishDiscoveryResponse)
	assert.True(t, ok)

	context.Stop(pid)

	time.Sleep(200 * time.Millisecond)

	as.Shutdown()
}

func TestEvent2MQTTMessage(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	act := &MQTTActor{
		config: &cfg,
		client: mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil),
	}

	msg := act.event2MQTTMessage(domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SENSOR_ID_EXPECTED_BENEFIT},
		Value:                  445.126,
		Decimals:               2,
	})
	assert.Equal("spotcharge/sensor/expected_benefit/state", msg.topic)
	assert.Equal("445.13", msg.message)

	msg = act.event2MQTTMessage(domain.IntSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SENSOR_ID_PLAN_GENERATION},
		Value:                  12,
	})
	assert.Equal("12", msg.message)
	assert.True(msg.retain)

	msg = act.event2MQTTMessage(events.AutomaticControlSwitchUpdateEvent(true))
	assert.Equal("spotcharge/switch/automatic_control/state", msg.topic)
	assert.Equal(mqtt.MQTT_PAYLOAD_ON, msg.message)

	msg = act.event2MQTTMessage(domain.BridgeStateUpdateEvent{Value: false})
	assert.Equal(mqtt.MQTT_PAYLOAD_OFFLINE, msg.message)

	assert.Nil(act.event2MQTTMessage(domain.TelemetryUpdatedEvent{}))
}
