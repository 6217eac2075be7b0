// pkg/wipejob/progress.go

package wipejob

import (
	"regexp"
	"strconv"
)

// Progress is the normalized result of parsing one line of helper output.
// Nil fields mean the line carried no usable numeric signal; the line itself
// is still preserved as the job's last_log.
type Progress struct {
	Bytes    *uint64  // cumulative bytes done (dd counters)
	Fraction *float64 // overall completion 0..1 (shred pass markers)
}

var (
	// dd with status=progress: "250000000000 bytes (250 GB, 233 GiB) copied, 512 s, 488 MB/s"
	// The bare "N bytes" shape also matches dd's final summary lines.
	ddBytesRe = regexp.MustCompile(`(\d+)\s+bytes`)

	// shred -v: "shred: /dev/sdb: pass 3/7 (random)...512MiB/466GiB 12%"
	shredPassRe    = regexp.MustCompile(`pass (\d+)/(\d+)`)
	shredPercentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
)

// ParseLine extracts normalized progress from one stderr line. It is
// stateless and tolerant: tools flush at irregular intervals and interleave
// diagnostics with counters, so anything unrecognized simply yields an empty
// Progress rather than an error.
func ParseLine(family ToolFamily, line string) Progress {
	switch family {
	case FamilyDD:
		return parseDD(line)
	case FamilyShred:
		return parseShred(line)
	default:
		// Discard and secure-erase report nothing incremental; the job sits
		// at 0% until the helper exits.
		return Progress{}
	}
}

func parseDD(line string) Progress {
	m := ddBytesRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return Progress{}
	}
	return Progress{Bytes: &n}
}

// parseShred maps "pass i/N ... p%" to an overall fraction: pass i covers
// the slice [(i-1)/N, i/N] and the inline percent positions us within it.
// A pass marker with no percent counts as the start of the pass.
func parseShred(line string) Progress {
	m := shredPassRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}
	}
	pass, err1 := strconv.ParseUint(m[1], 10, 32)
	total, err2 := strconv.ParseUint(m[2], 10, 32)
	if err1 != nil || err2 != nil || total == 0 || pass == 0 || pass > total {
		return Progress{}
	}

	within := 0.0
	if pm := shredPercentRe.FindStringSubmatch(line); pm != nil {
		if p, err := strconv.ParseFloat(pm[1], 64); err == nil && p >= 0 && p <= 100 {
			within = p / 100
		}
	}

	f := (float64(pass-1) + within) / float64(total)
	if f > 1 {
		f = 1
	}
	return Progress{Fraction: &f}
}
