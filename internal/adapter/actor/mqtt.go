package actor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/config"
	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/mqtt"
	"github.com/berfenger/spotcharge2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	STATE_MQTT_STARTING   = "starting"
	STATE_MQTT_DEFAULT    = "default"
	STATE_MQTT_PUBLISHING = "publishing"
	STATE_MQTT_DUMMY      = "dummy"

	MQTT_CONNECT_TIMEOUT   = 10 * time.Second
	MQTT_PUBLISH_TIMEOUT   = 5 * time.Second
	MQTT_DISCOVERY_TIMEOUT = 1 * time.Second
	MQTT_BRIDGE_TIMEOUT    = 500 * time.Millisecond
)

// MQTTActor publishes sensor updates from the event stream and turns command topics into ParsedCommand.
type MQTTActor struct {
	actorutil.ActorWithStates
	config         *config.Config
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	logger         *zap.Logger
}

type OnEventStreamMessage struct {
	message any
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	Error error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func newMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	return &MQTTActor{
		config:      config,
		eventStream: eventStream,
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
		ActorWithStates: actorutil.ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := newMQTTActor(config, eventStream, logger)
	act.Become(MQTTStartingState{actor: act})
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state: connect, announce the bridge and subscribe to command topics

type MQTTStartingState struct {
	actorutil.ActorState
	actor *MQTTActor
}

func (state MQTTStartingState) Name() string {
	return STATE_MQTT_STARTING
}

func (state MQTTStartingState) Receive(ctx actor.Context) {
	act := state.actor
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		act.logger.Debug("mqtt@starting started")
		act.client = mqtt.CreateMQTTClient(act.config, mqtt.OptsFromConfig(act.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		})
		act.client.Connect(act.continueWith(ctx, MQTTConnected{}), MQTT_CONNECT_TIMEOUT)
	case MQTTConnected:
		act.logger.Debug("mqtt@starting connected")
		act.publishBridgeState(true)
		act.client.SubscribeToCommandTopic(func(_ pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := act.client.ParseMQTTCommand(m)
			if err != nil {
				act.logger.Warn("mqtt: invalid command", zap.String("topic", m.Topic()), zap.Error(err))
			} else if cmd != nil {
				ctx.Send(ctx.Self(), ParsedCommand{Command: cmd})
			}
		}, act.continueWith(ctx, MQTTSubscribed{}), 1*time.Second)
	case MQTTSubscribed:
		act.logger.Debug("mqtt@starting subscribed")
		act.subscribeEventStream(ctx)
		act.Become(MQTTDefaultState{actor: act})
		act.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// let the supervisor restart us with backoff
		act.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		act.stop()
	default:
		act.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		act.stash.Stash(ctx, msg)
	}
}

// Default state

type MQTTDefaultState struct {
	actorutil.ActorState
	actor *MQTTActor
}

func (state MQTTDefaultState) Name() string {
	return STATE_MQTT_DEFAULT
}

func (state MQTTDefaultState) Receive(ctx actor.Context) {
	act := state.actor
	switch msg := ctx.Message().(type) {
	case *actor.Restarting, *actor.Stopping:
		act.stop()
	case domain.ActorHealthRequest:
		act.respondHealth(ctx)
	case ParsedCommand:
		act.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case OnEventStreamMessage:
		if event, ok := msg.message.(domain.SensorUpdateEvent); ok {
			if raw := act.event2MQTTMessage(event); raw != nil {
				act.publish(ctx, *raw, nil, nil)
			}
		}
	case domain.PublishMessageRequest:
		act.logger.Debug("mqtt@default PublishMessageRequest", zap.String("topic", msg.Topic))
		act.publish(ctx, rawMessage{topic: msg.Topic, message: msg.Payload, retain: msg.Retain},
			actorutil.ForRequest(msg).ReplyTo(ctx), func(err error) domain.ActorResponse {
				return domain.PublishMessageResponse{ActorResponseMixIn: domain.ResponseError(err)}
			})
	case domain.PublishSensorUpdateRequest:
		act.logger.Debug("mqtt@default PublishSensorUpdateRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		raw := act.event2MQTTMessage(msg.Event)
		if raw == nil {
			actorutil.ForRequest(msg).Respond(ctx, domain.PublishSensorUpdateResponse{})
			return
		}
		raw.retain = raw.retain || msg.Retain
		act.publish(ctx, *raw, actorutil.ForRequest(msg).ReplyTo(ctx), func(err error) domain.ActorResponse {
			return domain.PublishSensorUpdateResponse{ActorResponseMixIn: domain.ResponseError(err)}
		})
	case domain.PublishDiscoveryRequest:
		act.logger.Debug("mqtt@default PublishDiscoveryRequest")
		err := act.publishDiscovery(msg)
		if err != nil {
			act.logger.Error("mqtt@default PublishDiscoveryRequest failed", zap.Error(err))
		}
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishDiscoveryResponse{
			ActorResponseMixIn: domain.ResponseError(err),
		})
	case MQTTConnectionLost:
		act.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		act.logger.Debug("mqtt@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Publishing state: one QoS 1 publish in flight, everything else waits in the stash

type MQTTPublishingState struct {
	actorutil.ActorState
	actor   *MQTTActor
	replyTo *actor.PID
	respond func(error) domain.ActorResponse
}

func (state MQTTPublishingState) Name() string {
	return STATE_MQTT_PUBLISHING
}

func (state MQTTPublishingState) Receive(ctx actor.Context) {
	act := state.actor
	switch msg := ctx.Message().(type) {
	case publishResult:
		if msg.Error != nil {
			act.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if state.replyTo != nil && state.respond != nil {
			ctx.Send(state.replyTo, state.respond(msg.Error))
		}
		act.UnbecomeStacked()
		act.stash.UnstashOldest(ctx)
	default:
		act.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		act.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) publish(ctx actor.Context, msg rawMessage, replyTo *actor.PID, respond func(error) domain.ActorResponse) {
	state.logger.Debug("mqtt@publish", zap.String("topic", msg.topic), zap.String("payload", msg.message))
	state.client.Publish(msg.topic, msg.message, 1, msg.retain, func(err error) {
		ctx.Send(ctx.Self(), publishResult{Error: err})
	}, MQTT_PUBLISH_TIMEOUT)
	state.BecomeStacked(MQTTPublishingState{actor: state, replyTo: replyTo, respond: respond})
}

func (state *MQTTActor) event2MQTTMessage(event any) *rawMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: strconv.FormatFloat(msg.Value, 'f', int(msg.Decimals), 64),
		}
	case domain.IntSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: strconv.FormatInt(msg.Value, 10),
			retain:  true,
		}
	case domain.SwitchSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SwitchStateTopic(msg.Id),
			message: bool2MQTTPayload(msg.Value),
			retain:  true,
		}
	case domain.InputNumberSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.InputNumberStateTopic(msg.Id),
			message: strconv.FormatFloat(msg.Value, 'f', int(msg.Decimals), 64),
			retain:  true,
		}
	case domain.TextSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: msg.Value,
			retain:  true,
		}
	case domain.BridgeStateUpdateEvent:
		return &rawMessage{
			topic:   state.client.BridgeStateTopic(),
			message: bridgePayload(msg.Value),
		}
	default:
		return nil
	}
}

func (state *MQTTActor) publishDiscovery(req domain.PublishDiscoveryRequest) error {
	if err := publishDiscoveryConfigs(state.client, req.Sensors, mqtt.HADiscoverySensorTopic, mqtt.GenericSensorToHADiscoveryMessage); err != nil {
		return err
	}
	if err := publishDiscoveryConfigs(state.client, req.Switches, mqtt.HADiscoverySwitchTopic, mqtt.GenericSwitchToHADiscoveryMessage); err != nil {
		return err
	}
	if err := publishDiscoveryConfigs(state.client, req.Buttons, mqtt.HADiscoveryButtonTopic, mqtt.GenericButtonToHADiscoveryMessage); err != nil {
		return err
	}
	return publishDiscoveryConfigs(state.client, req.InputNumbers, mqtt.HADiscoveryInputNumberTopic, mqtt.GenericInputNumberToHADiscoveryMessage)
}

// publishDiscoveryConfigs publishes retained discovery configs without waiting for the broker.
func publishDiscoveryConfigs[T any](client *mqtt.MQTTClient, entities []T, topic func(*mqtt.MQTTClient, T) string,
	toConfig func(*mqtt.MQTTClient, T) mqtt.HADiscoveryConfig) error {
	for _, entity := range entities {
		payload, err := json.Marshal(toConfig(client, entity))
		if err != nil {
			return err
		}
		client.Publish(topic(client, entity), payload, 0, true, func(error) {}, MQTT_DISCOVERY_TIMEOUT)
	}
	return nil
}

func (state *MQTTActor) respondHealth(ctx actor.Context) {
	state.logger.Debug(fmt.Sprintf("mqtt@%s: ActorHealthRequest", state.StateName()))
	ctx.Respond(domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MQTT,
		Healthy: true,
		State:   state.StateName(),
	})
}

// continueWith turns a paho completion into a message for this actor.
func (state *MQTTActor) continueWith(ctx actor.Context, onSuccess any) func(error) {
	return func(err error) {
		if err != nil {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		} else {
			ctx.Send(ctx.Self(), onSuccess)
		}
	}
}

func (state *MQTTActor) publishBridgeState(online bool) {
	state.client.Publish(state.client.BridgeStateTopic(), bridgePayload(online), 0, true, func(error) {}, MQTT_BRIDGE_TIMEOUT)
}

func (state *MQTTActor) subscribeEventStream(ctx actor.Context) {
	if state.eventStream == nil || state.eventStreamSub != nil {
		return
	}
	state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
		ctx.Send(ctx.Self(), OnEventStreamMessage{
			message: value,
		})
	})
}

func (state *MQTTActor) unsubscribeEventStream() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	state.unsubscribeEventStream()
	if state.client != nil {
		state.publishBridgeState(false)
		state.client.Disconnect(MQTT_BRIDGE_TIMEOUT)
	}
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	}
	return mqtt.MQTT_PAYLOAD_OFF
}

func bridgePayload(online bool) string {
	if online {
		return mqtt.MQTT_PAYLOAD_ONLINE
	}
	return mqtt.MQTT_PAYLOAD_OFFLINE
}

// NewTestMQTTActor never connects; it logs what would be published and acknowledges every request.
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := newMQTTActor(config, eventStream, logger)
	act.Become(MQTTDummyState{actor: act})
	return act
}

type MQTTDummyState struct {
	actorutil.ActorState
	actor *MQTTActor
}

func (state MQTTDummyState) Name() string {
	return STATE_MQTT_DUMMY
}

func (state MQTTDummyState) Receive(ctx actor.Context) {
	act := state.actor
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		act.client = mqtt.CreateMQTTClient(act.config, mqtt.OptsFromConfig(act.config), nil, nil)
		act.subscribeEventStream(ctx)
	case *actor.Stopping:
		act.unsubscribeEventStream()
	case OnEventStreamMessage:
		if raw := act.event2MQTTMessage(msg.message); raw != nil {
			act.logger.Debug("mqtt@dummy", zap.String("topic", raw.topic), zap.String("payload", raw.message))
		}
	case ParsedCommand:
		ctx.Send(ctx.Parent(), msg)
	case domain.ActorHealthRequest:
		act.respondHealth(ctx)
	case domain.PublishDiscoveryRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishDiscoveryResponse{})
	case domain.PublishSensorUpdateRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishSensorUpdateResponse{})
	case domain.PublishMessageRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishMessageResponse{})
	}
}
