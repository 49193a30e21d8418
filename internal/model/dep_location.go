package model

// DepLocation identifies where a package candidate comes from.
type DepLocation int

const (
	// LocSystem identifies a package discovered on the host via pkg-config.
	LocSystem DepLocation = iota
	// LocCache identifies a package already present in the local recipe cache.
	LocCache
	// LocNetwork identifies a package that must be fetched from a registry.
	LocNetwork
)

func (l DepLocation) String() string {
	switch l {
	case LocSystem:
		return "system"
	case LocCache:
		return "cache"
	case LocNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// IsSystem reports whether l is LocSystem.
func (l DepLocation) IsSystem() bool { return l == LocSystem }

// IsCache reports whether l is LocCache.
func (l DepLocation) IsCache() bool { return l == LocCache }

// IsNetwork reports whether l is LocNetwork.
func (l DepLocation) IsNetwork() bool { return l == LocNetwork }

// DepKind distinguishes Dopamine-native packages from Dub-style packages.
type DepKind int

const (
	KindDop DepKind = iota
	KindDub
)

func (k DepKind) String() string {
	if k == KindDub {
		return "dub"
	}
	return "dop"
}
