package scene

import (
	"fmt"
	"strings"
)

// Generation is an engine generation whose T3D dialect the converter reads
// or writes.
type Generation int

const (
	GenUnknown Generation = iota
	UE1
	UE2
	UE3
	UE4
)

var generationNames = map[Generation]string{
	GenUnknown: "unknown",
	UE1:        "UE1",
	UE2:        "UE2",
	UE3:        "UE3",
	UE4:        "UE4",
}

// generationAliases maps accepted spellings (engine or flagship game) to a
// generation.
var generationAliases = map[string]Generation{
	"ue1": UE1, "unreal": UE1, "u1": UE1, "ut99": UE1, "ut": UE1,
	"ue2": UE2, "u2": UE2, "ut2003": UE2, "ut2004": UE2, "ut2k4": UE2,
	"ue3": UE3, "ut3": UE3, "udk": UE3,
	"ue4": UE4, "ut4": UE4,
}

func (g Generation) String() string {
	if s, ok := generationNames[g]; ok {
		return s
	}
	return fmt.Sprintf("Generation(%d)", int(g))
}

// ParseGeneration parses an engine or game name such as "ue2" or "ut99".
//
// Postcondition: returns a known Generation or a non-nil error.
func ParseGeneration(s string) (Generation, error) {
	if g, ok := generationAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return g, nil
	}
	return GenUnknown, fmt.Errorf("unknown engine generation %q", s)
}

// Pair is the (source, target) generation pair of one conversion run.
type Pair struct {
	Source Generation
	Target Generation
}

// Identity reports whether source and target are the same generation.
func (p Pair) Identity() bool { return p.Source == p.Target }

func (p Pair) String() string { return p.Source.String() + "->" + p.Target.String() }
