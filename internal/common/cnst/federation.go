package cnst

// Capability identifies a federation feature that can be enabled or disabled
// system-wide and per tenant.
type Capability string

const (
	CapProfiles     Capability = "profiles"
	CapMessaging    Capability = "messaging"
	CapTransactions Capability = "transactions"
	CapListings     Capability = "listings"
	CapEvents       Capability = "events"
	CapGroups       Capability = "groups"
)

// Capabilities lists every known federation capability in a stable order.
var Capabilities = []Capability{
	CapProfiles,
	CapMessaging,
	CapTransactions,
	CapListings,
	CapEvents,
	CapGroups,
}

// IsValid reports whether c is a known capability.
func (c Capability) IsValid() bool {
	for _, k := range Capabilities {
		if c == k {
			return true
		}
	}
	return false
}

// Partnership trust levels. Each level includes everything below it.
const (
	LevelNone       = 0
	LevelDiscovery  = 1
	LevelSocial     = 2
	LevelEconomic   = 3
	LevelIntegrated = 4

	// MaxFederationLevel is the ceiling for both partnership levels and the
	// system-wide max_federation_level control.
	MaxFederationLevel = 4
)

var levelNames = map[int]string{
	LevelNone:       "None",
	LevelDiscovery:  "Discovery",
	LevelSocial:     "Social",
	LevelEconomic:   "Economic",
	LevelIntegrated: "Integrated",
}

// LevelName returns the display name for a partnership level, or "Unknown"
// for values outside [0,4].
func LevelName(level int) string {
	if name, ok := levelNames[level]; ok {
		return name
	}
	return "Unknown"
}

// MasterTenantID is the fixed ID of the root tenant. It can never be moved,
// deleted, or deactivated.
const MasterTenantID = 1
