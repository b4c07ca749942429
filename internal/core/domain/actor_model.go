package domain

const (
	ACTOR_ID_MASTER        = "master"
	ACTOR_ID_STORAGE       = "storage"
	ACTOR_ID_MQTT          = "mqtt"
	ACTOR_ID_PLAN_EXECUTOR = "plan_executor"
	ACTOR_ID_HA_DISCOVERY  = "hadiscovery"
)

// Storage actor

type GetStorageStateRequest struct {
	ActorRequestMixIn
}

type GetStorageStateResponse struct {
	ActorResponseMixIn
	StateOfChargePct float64
}

// SetBatteryModeRequest applies one battery mode. CommandId is echoed back so late responses can be told apart.
type SetBatteryModeRequest struct {
	ActorRequestMixIn
	CommandId uint64
	Hour      int
	Action    Action
	PowerW    uint32
}

type SetBatteryModeResponse struct {
	ActorResponseMixIn
	CommandId uint64
	Hour      int
	Action    Action
}

// MQTT actor

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	Buttons      []GenericButton
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
