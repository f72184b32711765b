// Package status converts raw SmartThings status documents into canonical
// appliance signals.
package status

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/csutihu/stlaundry/internal/config"
	"github.com/csutihu/stlaundry/internal/smartthings"
)

// Power is the normalized on/off state of an appliance.
type Power string

const (
	// PowerOn means the appliance reported its switch as "on".
	PowerOn Power = "on"
	// PowerOff covers every other reported value, including an absent one.
	PowerOff Power = "off"
)

// CycleState is the normalized cycle/job state. Besides the two sentinels it
// carries the vendor job state verbatim (e.g. "spin", "drying").
type CycleState string

const (
	// CycleUnknown means the job state field was absent from the document.
	CycleUnknown CycleState = "unknown"
	// CycleNone is the vendor's literal "none": no active cycle.
	CycleNone CycleState = "no_active_cycle"
)

// Signal is the canonical representation of one appliance's current status.
// It is derived fresh on every successful fetch and never persisted here.
type Signal struct {
	Power            Power
	CycleState       CycleState
	RemainingMinutes int
}

const (
	componentMain       = "main"
	capabilitySwitch    = "switch"
	attributeSwitch     = "switch"
	attributeRemaining  = "remainingTime"
	capabilityWasherOps = "samsungce.washerOperatingState"
	capabilityDryerOps  = "samsungce.dryerOperatingState"
	attributeWasherJob  = "washerJobState"
	attributeDryerJob   = "dryerJobState"
)

// Normalize maps a raw status document into a Signal using the field paths
// for the given appliance kind. It is pure and total: malformed or missing
// input degrades to documented defaults and never fails.
func Normalize(kind config.ApplianceKind, doc *smartthings.StatusDocument) Signal {
	opsCapability := capabilityWasherOps
	jobAttribute := attributeWasherJob
	if kind == config.KindDryer {
		opsCapability = capabilityDryerOps
		jobAttribute = attributeDryerJob
	}

	signal := Signal{
		Power:      normalizePower(doc),
		CycleState: normalizeCycle(doc, opsCapability, jobAttribute),
	}
	// Only a confirmed idle cycle forces the remaining time to zero; an
	// unknown cycle state still parses whatever value is present.
	if signal.CycleState != CycleNone {
		raw, _ := doc.Attribute(componentMain, opsCapability, attributeRemaining)
		signal.RemainingMinutes = parseMinutes(raw)
	}
	return signal
}

func normalizePower(doc *smartthings.StatusDocument) Power {
	raw, ok := doc.Attribute(componentMain, capabilitySwitch, attributeSwitch)
	if !ok {
		return PowerOff
	}
	if s, ok := raw.(string); ok && strings.EqualFold(s, "on") {
		return PowerOn
	}
	return PowerOff
}

func normalizeCycle(doc *smartthings.StatusDocument, capability, attribute string) CycleState {
	raw, ok := doc.Attribute(componentMain, capability, attribute)
	if !ok {
		return CycleUnknown
	}
	if s, ok := raw.(string); ok {
		if s == "none" {
			return CycleNone
		}
		return CycleState(s)
	}
	return CycleState(fmt.Sprint(raw))
}

// parseMinutes accepts integer, floating-point and numeric-string
// representations, truncating toward zero. Any parse failure or absence
// yields 0, never an error.
func parseMinutes(raw any) int {
	var minutes float64
	switch v := raw.(type) {
	case float64:
		minutes = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		minutes = parsed
	default:
		return 0
	}
	if minutes < 0 {
		return 0
	}
	return int(minutes)
}
