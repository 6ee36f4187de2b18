// Package logic contains the pure decision logic of the steam boiler controller.
// This package has NO external dependencies (no MQTT, GPIO, OS, logging or time).
// One call to Controller.Clock is one control cycle: it consumes the inbound
// batch and returns the outbound batch.
package logic

import (
	"errors"
	"fmt"
)

// CycleLength is the number of time units between two clock signals.
const CycleLength = 5.0

// Mode is the controller's top-level operating state.
type Mode int

const (
	ModeWaiting Mode = iota
	ModeReady
	ModeNormal
	ModeDegraded
	ModeRescue
	ModeEmergencyStop
)

// String returns the mode name shown on status surfaces.
func (m Mode) String() string {
	switch m {
	case ModeWaiting:
		return "WAITING"
	case ModeReady:
		return "READY"
	case ModeNormal:
		return "NORMAL"
	case ModeDegraded:
		return "DEGRADED"
	case ModeRescue:
		return "RESCUE"
	case ModeEmergencyStop:
		return "EMERGENCY_STOP"
	default:
		return "UNKNOWN"
	}
}

// Announcement returns the mode reported to the physical units.
// WAITING and READY are both announced as initialisation.
func (m Mode) Announcement() Announcement {
	switch m {
	case ModeNormal:
		return AnnounceNormal
	case ModeDegraded:
		return AnnounceDegraded
	case ModeRescue:
		return AnnounceRescue
	case ModeEmergencyStop:
		return AnnounceEmergencyStop
	default:
		return AnnounceInitialisation
	}
}

// Announcement is the payload of a MODE message.
type Announcement string

const (
	AnnounceInitialisation Announcement = "INITIALISATION"
	AnnounceNormal         Announcement = "NORMAL"
	AnnounceDegraded       Announcement = "DEGRADED"
	AnnounceRescue         Announcement = "RESCUE"
	AnnounceEmergencyStop  Announcement = "EMERGENCY_STOP"
)

// ParseAnnouncement validates a mode announcement received on the wire.
func ParseAnnouncement(s string) (Announcement, bool) {
	switch a := Announcement(s); a {
	case AnnounceInitialisation, AnnounceNormal, AnnounceDegraded, AnnounceRescue, AnnounceEmergencyStop:
		return a, true
	}
	return "", false
}

// Kind identifies a message in the shared vocabulary between controller and plant.
type Kind string

// Inbound kinds (physical units -> controller).
const (
	KindLevel                 Kind = "LEVEL"
	KindSteam                 Kind = "STEAM"
	KindPumpState             Kind = "PUMP_STATE"
	KindPumpControlState      Kind = "PUMP_CONTROL_STATE"
	KindSteamBoilerWaiting    Kind = "STEAM_BOILER_WAITING"
	KindPhysicalUnitsReady    Kind = "PHYSICAL_UNITS_READY"
	KindLevelFailureAck       Kind = "LEVEL_FAILURE_ACKNOWLEDGEMENT"
	KindSteamFailureAck       Kind = "STEAM_OUTCOME_FAILURE_ACKNOWLEDGEMENT"
	KindPumpFailureAck        Kind = "PUMP_FAILURE_ACKNOWLEDGEMENT"
	KindPumpControlFailureAck Kind = "PUMP_CONTROL_FAILURE_ACKNOWLEDGEMENT"
	KindLevelRepaired         Kind = "LEVEL_REPAIRED"
	KindSteamRepaired         Kind = "STEAM_REPAIRED"
	KindPumpRepaired          Kind = "PUMP_REPAIRED"
	KindPumpControlRepaired   Kind = "PUMP_CONTROL_REPAIRED"
	KindStop                  Kind = "STOP"
)

// Outbound kinds (controller -> physical units).
const (
	KindMode                     Kind = "MODE"
	KindProgramReady             Kind = "PROGRAM_READY"
	KindValve                    Kind = "VALVE"
	KindOpenPump                 Kind = "OPEN_PUMP"
	KindClosePump                Kind = "CLOSE_PUMP"
	KindLevelFailureDetection    Kind = "LEVEL_FAILURE_DETECTION"
	KindSteamFailureDetection    Kind = "STEAM_FAILURE_DETECTION"
	KindPumpFailureDetection     Kind = "PUMP_FAILURE_DETECTION"
	KindPumpControlFailureDetect Kind = "PUMP_CONTROL_FAILURE_DETECTION"
	KindLevelRepairedAck         Kind = "LEVEL_REPAIRED_ACKNOWLEDGEMENT"
	KindSteamRepairedAck         Kind = "STEAM_REPAIRED_ACKNOWLEDGEMENT"
	KindPumpRepairedAck          Kind = "PUMP_REPAIRED_ACKNOWLEDGEMENT"
	KindPumpControlRepairedAck   Kind = "PUMP_CONTROL_REPAIRED_ACKNOWLEDGEMENT"
)

// Payload describes which Message fields a kind carries.
type Payload int

const (
	PayloadNone   Payload = iota
	PayloadDouble         // Value
	PayloadPump           // Pump
	PayloadPumpBool       // Pump, Open
	PayloadMode           // Mode
)

var payloads = map[Kind]Payload{
	KindLevel:                    PayloadDouble,
	KindSteam:                    PayloadDouble,
	KindPumpState:                PayloadPumpBool,
	KindPumpControlState:         PayloadPumpBool,
	KindSteamBoilerWaiting:       PayloadNone,
	KindPhysicalUnitsReady:       PayloadNone,
	KindLevelFailureAck:          PayloadNone,
	KindSteamFailureAck:          PayloadNone,
	KindPumpFailureAck:           PayloadPump,
	KindPumpControlFailureAck:    PayloadPump,
	KindLevelRepaired:            PayloadNone,
	KindSteamRepaired:            PayloadNone,
	KindPumpRepaired:             PayloadPump,
	KindPumpControlRepaired:      PayloadPump,
	KindStop:                     PayloadNone,
	KindMode:                     PayloadMode,
	KindProgramReady:             PayloadNone,
	KindValve:                    PayloadNone,
	KindOpenPump:                 PayloadPump,
	KindClosePump:                PayloadPump,
	KindLevelFailureDetection:    PayloadNone,
	KindSteamFailureDetection:    PayloadNone,
	KindPumpFailureDetection:     PayloadPump,
	KindPumpControlFailureDetect: PayloadPump,
	KindLevelRepairedAck:         PayloadNone,
	KindSteamRepairedAck:         PayloadNone,
	KindPumpRepairedAck:          PayloadPump,
	KindPumpControlRepairedAck:   PayloadPump,
}

// Payload returns the payload shape of k and whether k is part of the vocabulary.
func (k Kind) Payload() (Payload, bool) {
	p, ok := payloads[k]
	return p, ok
}

// Message is one tagged item of a batch. Only the fields named by the
// kind's Payload are meaningful.
type Message struct {
	Kind  Kind
	Value float64
	Pump  int
	Open  bool
	Mode  Announcement
}

// Signal builds a message without payload.
func Signal(kind Kind) Message {
	return Message{Kind: kind}
}

// Reading builds a LEVEL or STEAM style message.
func Reading(kind Kind, v float64) Message {
	return Message{Kind: kind, Value: v}
}

// Indexed builds a message carrying a pump index.
func Indexed(kind Kind, pump int) Message {
	return Message{Kind: kind, Pump: pump}
}

// PumpReport builds a PUMP_STATE or PUMP_CONTROL_STATE style message.
func PumpReport(kind Kind, pump int, open bool) Message {
	return Message{Kind: kind, Pump: pump, Open: open}
}

// ModeMessage builds the per-cycle mode announcement.
func ModeMessage(a Announcement) Message {
	return Message{Kind: KindMode, Mode: a}
}

// String renders the message for logs.
func (m Message) String() string {
	p, _ := m.Kind.Payload()
	switch p {
	case PayloadDouble:
		return fmt.Sprintf("%s(%g)", m.Kind, m.Value)
	case PayloadPump:
		return fmt.Sprintf("%s(%d)", m.Kind, m.Pump)
	case PayloadPumpBool:
		return fmt.Sprintf("%s(%d,%t)", m.Kind, m.Pump, m.Open)
	case PayloadMode:
		return fmt.Sprintf("%s(%s)", m.Kind, m.Mode)
	default:
		return string(m.Kind)
	}
}

// ErrInvalidCharacteristics is returned for a boiler description that cannot be controlled.
var ErrInvalidCharacteristics = errors.New("invalid boiler characteristics")

// Characteristics describes the physical boiler. Immutable after construction.
type Characteristics struct {
	Pumps          int     // number of pumps (and pump controllers)
	PumpCapacity   float64 // volume per time unit of one fully open pump
	Capacity       float64 // boiler capacity
	MaxSteamRate   float64 // maximal steam output per time unit
	MinNormalLevel float64
	MaxNormalLevel float64
	MinLimitLevel  float64
	MaxLimitLevel  float64
}

// Validate checks the nesting of the level bands and the positivity of rates.
func (c Characteristics) Validate() error {
	switch {
	case c.Pumps < 1:
		return fmt.Errorf("%w: need at least one pump, got %d", ErrInvalidCharacteristics, c.Pumps)
	case c.PumpCapacity <= 0:
		return fmt.Errorf("%w: pump capacity must be positive", ErrInvalidCharacteristics)
	case c.Capacity <= 0:
		return fmt.Errorf("%w: boiler capacity must be positive", ErrInvalidCharacteristics)
	case c.MaxSteamRate <= 0:
		return fmt.Errorf("%w: maximal steam rate must be positive", ErrInvalidCharacteristics)
	case !(0 <= c.MinLimitLevel && c.MinLimitLevel < c.MinNormalLevel &&
		c.MinNormalLevel < c.MaxNormalLevel && c.MaxNormalLevel < c.MaxLimitLevel &&
		c.MaxLimitLevel <= c.Capacity):
		return fmt.Errorf("%w: want 0 <= min limit < min normal < max normal < max limit <= capacity", ErrInvalidCharacteristics)
	}
	return nil
}

// MidNormalLevel is the control set-point.
func (c Characteristics) MidNormalLevel() float64 {
	return c.MinNormalLevel + (c.MaxNormalLevel-c.MinNormalLevel)/2
}
