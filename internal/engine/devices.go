package engine

import (
	"github.com/csutihu/stlaundry/internal/config"
	"github.com/csutihu/stlaundry/internal/registry"
)

// Stable device identifiers exposed to registry consumers.
const (
	WasherPowerID     = "WM_Power"
	WasherJobStateID  = "WM_JobState"
	WasherRemainingID = "WM_Remaining"

	DryerPowerID     = "DR_Power"
	DryerJobStateID  = "DR_JobState"
	DryerRemainingID = "DR_Remaining"
)

// applianceDevices groups the three device records one appliance publishes
// into.
type applianceDevices struct {
	power     registry.Device
	job       registry.Device
	remaining registry.Device
}

func (d applianceDevices) all() []registry.Device {
	return []registry.Device{d.power, d.job, d.remaining}
}

func devicesFor(kind config.ApplianceKind) applianceDevices {
	if kind == config.KindDryer {
		return applianceDevices{
			power:     registry.Device{ID: DryerPowerID, Unit: 4, Name: "Dryer Status (ON/OFF)", Class: registry.ClassSwitch},
			job:       registry.Device{ID: DryerJobStateID, Unit: 5, Name: "Drying Cycle", Class: registry.ClassText},
			remaining: registry.Device{ID: DryerRemainingID, Unit: 6, Name: "Dryer Remaining Time (min)", Class: registry.ClassText},
		}
	}
	return applianceDevices{
		power:     registry.Device{ID: WasherPowerID, Unit: 1, Name: "Washer Status (ON/OFF)", Class: registry.ClassSwitch},
		job:       registry.Device{ID: WasherJobStateID, Unit: 2, Name: "Washing Cycle", Class: registry.ClassText},
		remaining: registry.Device{ID: WasherRemainingID, Unit: 3, Name: "Washer Remaining Time (min)", Class: registry.ClassText},
	}
}
