package gc

// Version information for rcgc.
const (
	// Version is the current library version.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info describes the collector.
type Info struct {
	// Version is the library version string.
	Version string

	// Algorithm names the collection strategy.
	Algorithm string

	// Threshold is the default heap's current collection threshold.
	Threshold int
}

// GetInfo returns information about the library and the default heap.
//
// Example:
//
//	info := gc.GetInfo()
//	fmt.Printf("rcgc %s (%s)\n", info.Version, info.Algorithm)
func GetInfo() Info {
	return Info{
		Version:   Version,
		Algorithm: "reference counting + mark-sweep cycle collection",
		Threshold: DefaultHeap().Threshold(),
	}
}
