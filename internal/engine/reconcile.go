package engine

import (
	"fmt"

	"github.com/csutihu/stlaundry/internal/config"
	"github.com/csutihu/stlaundry/internal/registry"
	"github.com/csutihu/stlaundry/internal/status"
)

// fieldUpdate is one pending registry write produced by reconciliation.
type fieldUpdate struct {
	Device  registry.Device
	Numeric int
	Text    string
}

func renderPower(p status.Power) registry.State {
	if p == status.PowerOn {
		return registry.State{Numeric: 1, Text: "On"}
	}
	return registry.State{Numeric: 0, Text: "Off"}
}

func renderJob(kind config.ApplianceKind, cycle status.CycleState) registry.State {
	switch cycle {
	case status.CycleUnknown:
		return registry.State{Text: "Unknown"}
	case status.CycleNone:
		if kind == config.KindDryer {
			return registry.State{Text: "No active dry"}
		}
		return registry.State{Text: "No active wash"}
	default:
		return registry.State{Text: string(cycle)}
	}
}

func renderRemaining(minutes int) registry.State {
	return registry.State{Numeric: minutes, Text: fmt.Sprintf("%d min", minutes)}
}

// reconcile diffs a normalized signal against the last published state and
// returns only the writes needed to bring the registry in line. Power devices
// compare on the numeric value, text devices on the rendered string, so
// repeated identical signals produce no writes at all.
func reconcile(devs applianceDevices, kind config.ApplianceKind, sig status.Signal, published map[string]registry.State) []fieldUpdate {
	var updates []fieldUpdate

	power := renderPower(sig.Power)
	if prev, ok := published[devs.power.ID]; !ok || prev.Numeric != power.Numeric {
		updates = append(updates, fieldUpdate{Device: devs.power, Numeric: power.Numeric, Text: power.Text})
	}

	job := renderJob(kind, sig.CycleState)
	if prev, ok := published[devs.job.ID]; !ok || prev.Text != job.Text {
		updates = append(updates, fieldUpdate{Device: devs.job, Numeric: job.Numeric, Text: job.Text})
	}

	remaining := renderRemaining(sig.RemainingMinutes)
	if prev, ok := published[devs.remaining.ID]; !ok || prev.Text != remaining.Text {
		updates = append(updates, fieldUpdate{Device: devs.remaining, Numeric: remaining.Numeric, Text: remaining.Text})
	}

	return updates
}
