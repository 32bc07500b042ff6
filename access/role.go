// Package access models the three user roles as a closed set of types and
// maps each to the locator operations it may perform.
package access

import (
	"fmt"
	"strings"
)

// Role is one of GeneralUser, Pharmacist or NmraOfficial. The unexported
// method keeps the set closed.
type Role interface {
	Name() string
	isRole()
}

// GeneralUser is a member of the public.
type GeneralUser struct{}

// Pharmacist is a registered pharmacist.
type Pharmacist struct {
	RegistrationNo string
}

// NmraOfficial is staff of the medicines regulatory authority.
type NmraOfficial struct{}

func (GeneralUser) Name() string  { return "general_user" }
func (Pharmacist) Name() string   { return "pharmacist" }
func (NmraOfficial) Name() string { return "nmra_official" }

func (GeneralUser) isRole()  {}
func (Pharmacist) isRole()   {}
func (NmraOfficial) isRole() {}

// ParseRole accepts the role names used by the web application.
func ParseRole(name string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "user", "general_user":
		return GeneralUser{}, nil
	case "pharmacist":
		return Pharmacist{}, nil
	case "nmra", "nmra_official":
		return NmraOfficial{}, nil
	}
	return nil, fmt.Errorf("unknown role %q", name)
}

// Capability is an operation a role may be allowed to perform.
type Capability uint8

const (
	ViewMap Capability = 1 << iota
	UseFilters
	RequestDirections
	OpenOrderPanel
	ViewDirectoryStats
)

var capabilityNames = map[Capability]string{
	ViewMap:            "view_map",
	UseFilters:         "use_filters",
	RequestDirections:  "request_directions",
	OpenOrderPanel:     "open_order_panel",
	ViewDirectoryStats: "view_directory_stats",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", uint8(c))
}

// CapabilitySet is a bit set of capabilities.
type CapabilitySet uint8

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

// Names lists the set's capabilities in declaration order.
func (s CapabilitySet) Names() []string {
	var out []string
	for c := ViewMap; c <= ViewDirectoryStats; c <<= 1 {
		if s.Has(c) {
			out = append(out, c.String())
		}
	}
	return out
}

const baseCapabilities = CapabilitySet(ViewMap | UseFilters | RequestDirections)

// Capabilities returns the fixed capability set of r.
func Capabilities(r Role) CapabilitySet {
	switch r.(type) {
	case GeneralUser, *GeneralUser:
		return baseCapabilities | CapabilitySet(OpenOrderPanel)
	case Pharmacist, *Pharmacist:
		return baseCapabilities | CapabilitySet(ViewDirectoryStats)
	case NmraOfficial, *NmraOfficial:
		return baseCapabilities | CapabilitySet(ViewDirectoryStats)
	default:
		return 0
	}
}

// Can reports whether r holds c.
func Can(r Role, c Capability) bool {
	return Capabilities(r).Has(c)
}
