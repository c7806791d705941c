package authmux

import (
	"fmt"

	"github.com/emersion/go-sasl"
)

// Mechanism is a bitmask position in a worker's advertised mechanism
// set, matching the wire protocol's auth_mechanisms u32 bitset.
type Mechanism uint32

const (
	MechPlain Mechanism = 1 << iota
	MechLogin
	MechCRAMMD5
	MechAnonymous
)

// mechanismNames maps the bitset positions to their SASL names.
// MechPlain reuses go-sasl's own Plain constant; the others are
// written out as their registered IANA SASL mechanism names. Only the
// bit value goes on the wire, never the name.
var mechanismNames = map[Mechanism]string{
	MechPlain:     sasl.Plain,
	MechLogin:     "LOGIN",
	MechCRAMMD5:   "CRAM-MD5",
	MechAnonymous: "ANONYMOUS",
}

var nameToMechanism = func() map[string]Mechanism {
	m := make(map[string]Mechanism, len(mechanismNames))
	for bit, name := range mechanismNames {
		m[name] = bit
	}
	return m
}()

// ParseMechanism resolves a SASL mechanism name to its bitset
// position. It returns ok=false for a name no worker could ever
// advertise under this scheme.
func ParseMechanism(name string) (Mechanism, bool) {
	m, ok := nameToMechanism[name]
	return m, ok
}

// String renders a mechanism by its SASL name, or "mech(<bits>)" if
// it doesn't correspond to a single known bit.
func (m Mechanism) String() string {
	if name, ok := mechanismNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mech(%#x)", uint32(m))
}
