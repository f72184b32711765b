package status

import (
	"testing"

	"github.com/csutihu/stlaundry/internal/config"
	"github.com/csutihu/stlaundry/internal/smartthings"
)

func parseDoc(t *testing.T, raw string) *smartthings.StatusDocument {
	t.Helper()
	doc, err := smartthings.ParseStatus([]byte(raw))
	if err != nil {
		t.Fatalf("parse status: %v", err)
	}
	return doc
}

func TestNormalizeIdleWasherForcesZeroRemaining(t *testing.T) {
	doc := parseDoc(t, `{"components":{"main":{"switch":{"switch":{"value":"on"}},"samsungce.washerOperatingState":{"washerJobState":{"value":"none"},"remainingTime":{"value":15}}}}}`)

	signal := Normalize(config.KindWasher, doc)
	if signal.Power != PowerOn {
		t.Fatalf("expected power on, got %v", signal.Power)
	}
	if signal.CycleState != CycleNone {
		t.Fatalf("expected no active cycle, got %v", signal.CycleState)
	}
	if signal.RemainingMinutes != 0 {
		t.Fatalf("idle cycle must force remaining to 0, got %d", signal.RemainingMinutes)
	}
}

func TestNormalizeActiveWasherWithStringRemaining(t *testing.T) {
	doc := parseDoc(t, `{"components":{"main":{"switch":{"switch":{"value":"on"}},"samsungce.washerOperatingState":{"washerJobState":{"value":"spin"},"remainingTime":{"value":"23"}}}}}`)

	signal := Normalize(config.KindWasher, doc)
	if signal.CycleState != CycleState("spin") {
		t.Fatalf("expected cycle spin, got %v", signal.CycleState)
	}
	if signal.RemainingMinutes != 23 {
		t.Fatalf("expected 23 remaining minutes, got %d", signal.RemainingMinutes)
	}
}

func TestNormalizeDryerPaths(t *testing.T) {
	doc := parseDoc(t, `{"components":{"main":{"switch":{"switch":{"value":"ON"}},"samsungce.dryerOperatingState":{"dryerJobState":{"value":"drying"},"remainingTime":{"value":42.9}}}}}`)

	signal := Normalize(config.KindDryer, doc)
	if signal.Power != PowerOn {
		t.Fatalf("expected power on for case-insensitive match, got %v", signal.Power)
	}
	if signal.CycleState != CycleState("drying") {
		t.Fatalf("expected cycle drying, got %v", signal.CycleState)
	}
	if signal.RemainingMinutes != 42 {
		t.Fatalf("expected truncation toward zero, got %d", signal.RemainingMinutes)
	}
}

func TestNormalizeWasherIgnoresDryerCapability(t *testing.T) {
	doc := parseDoc(t, `{"components":{"main":{"samsungce.dryerOperatingState":{"dryerJobState":{"value":"drying"}}}}}`)

	signal := Normalize(config.KindWasher, doc)
	if signal.CycleState != CycleUnknown {
		t.Fatalf("washer must not read dryer paths, got %v", signal.CycleState)
	}
}

func TestNormalizeTotality(t *testing.T) {
	cases := map[string]string{
		"empty object":       `{}`,
		"empty components":   `{"components":{}}`,
		"empty main":         `{"components":{"main":{}}}`,
		"null switch":        `{"components":{"main":{"switch":{"switch":{"value":null}}}}}`,
		"numeric power":      `{"components":{"main":{"switch":{"switch":{"value":1}}}}}`,
		"garbage remaining":  `{"components":{"main":{"samsungce.washerOperatingState":{"washerJobState":{"value":"wash"},"remainingTime":{"value":"soon"}}}}}`,
		"negative remaining": `{"components":{"main":{"samsungce.washerOperatingState":{"washerJobState":{"value":"wash"},"remainingTime":{"value":-5}}}}}`,
	}
	for name, raw := range cases {
		doc := parseDoc(t, raw)
		signal := Normalize(config.KindWasher, doc)
		if signal.Power != PowerOff {
			t.Fatalf("%s: expected power off, got %v", name, signal.Power)
		}
		if signal.RemainingMinutes != 0 {
			t.Fatalf("%s: expected remaining 0, got %d", name, signal.RemainingMinutes)
		}
	}

	signal := Normalize(config.KindWasher, nil)
	if signal.Power != PowerOff || signal.CycleState != CycleUnknown || signal.RemainingMinutes != 0 {
		t.Fatalf("nil document must degrade to defaults, got %+v", signal)
	}
}

func TestNormalizeUnknownCycleStillParsesRemaining(t *testing.T) {
	doc := parseDoc(t, `{"components":{"main":{"samsungce.washerOperatingState":{"remainingTime":{"value":7}}}}}`)

	signal := Normalize(config.KindWasher, doc)
	if signal.CycleState != CycleUnknown {
		t.Fatalf("expected unknown cycle, got %v", signal.CycleState)
	}
	if signal.RemainingMinutes != 7 {
		t.Fatalf("unknown cycle must not force remaining to zero, got %d", signal.RemainingMinutes)
	}
}

func TestNormalizeNonStringJobState(t *testing.T) {
	doc := parseDoc(t, `{"components":{"main":{"samsungce.washerOperatingState":{"washerJobState":{"value":5}}}}}`)

	signal := Normalize(config.KindWasher, doc)
	if signal.CycleState != CycleState("5") {
		t.Fatalf("expected rendered job state, got %v", signal.CycleState)
	}
}
