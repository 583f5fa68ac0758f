package trainer

import (
	"fmt"
	"strings"
)

// ProgramKind selects the trainer's operating mode.
type ProgramKind string

const (
	Detector   ProgramKind = "detector"
	Classifier ProgramKind = "classifier"
)

// ProgramKinds lists every accepted kind.
var ProgramKinds = []ProgramKind{Detector, Classifier}

// ParseProgramKind validates s against ProgramKinds.
func ParseProgramKind(s string) (ProgramKind, error) {
	k := ProgramKind(strings.TrimSpace(s))
	for _, known := range ProgramKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown program kind %q (want %s)", s, kindList())
}

func kindList() string {
	names := make([]string, len(ProgramKinds))
	for i, k := range ProgramKinds {
		names[i] = string(k)
	}
	return strings.Join(names, "/")
}
