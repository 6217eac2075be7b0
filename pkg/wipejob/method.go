// pkg/wipejob/method.go

package wipejob

import (
	"fmt"
	"strings"
)

// Level is the technician-facing wipe strength.
type Level string

const (
	LevelLow  Level = "low"
	LevelMed  Level = "med"
	LevelHigh Level = "high"
)

// ParseLevel validates a level string from the API.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(s)) {
	case LevelLow:
		return LevelLow, nil
	case LevelMed:
		return LevelMed, nil
	case LevelHigh:
		return LevelHigh, nil
	default:
		return "", fmt.Errorf("level must be one of: low, med, high")
	}
}

// Method is the helper subcommand a job resolves to. The helper accepts
// exactly these six values; nothing else is ever passed to it.
type Method string

const (
	MethodHDDZero        Method = "hdd-zero"
	MethodHDDRandom      Method = "hdd-random"
	MethodHDDDoD         Method = "hdd-dod"
	MethodSSDDiscard     Method = "ssd-discard"
	MethodSSDDiscardZero Method = "ssd-discard-zero"
	MethodSSDSecureErase Method = "ssd-secure-erase"
)

// ResolveMethod maps (level, media type) to a helper subcommand. The result
// is frozen on the job at admission and never re-derived, even if the device
// is re-detected with a different rotational flag mid-wipe.
func ResolveMethod(level Level, rotational bool) (Method, error) {
	if rotational {
		switch level {
		case LevelLow:
			return MethodHDDZero, nil
		case LevelMed:
			return MethodHDDRandom, nil
		case LevelHigh:
			return MethodHDDDoD, nil
		}
	} else {
		switch level {
		case LevelLow:
			return MethodSSDDiscard, nil
		case LevelMed:
			return MethodSSDDiscardZero, nil
		case LevelHigh:
			// Helper attempts ATA secure erase and falls back to discard
			// when the drive is frozen or the security mode is unsupported.
			return MethodSSDSecureErase, nil
		}
	}
	return "", fmt.Errorf("unknown level %q", level)
}

// ToolFamily selects the progress-parsing strategy for a method.
type ToolFamily int

const (
	// FamilyDD: fixed-interval cumulative byte counters on stderr.
	FamilyDD ToolFamily = iota
	// FamilyShred: pass-oriented verbose markers, each pass a slice of the
	// overall progress.
	FamilyShred
	// FamilyStatus: a single terminal status line, no incremental progress.
	FamilyStatus
)

// Family returns the progress family for the method's underlying tool chain.
func (m Method) Family() ToolFamily {
	switch m {
	case MethodHDDDoD:
		return FamilyShred
	case MethodSSDDiscard, MethodSSDSecureErase:
		return FamilyStatus
	default:
		// hdd-zero, hdd-random and ssd-discard-zero all end in a dd pass.
		return FamilyDD
	}
}
