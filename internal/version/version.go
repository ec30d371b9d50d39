// ABOUTME: Version constants for the dmastream player
// ABOUTME: Reported in logs and the sink handshake
package version

const (
	// Version is the player version
	Version = "0.1.0"

	// Product is the product name
	Product = "dmastream"

	// Manufacturer is the project name
	Manufacturer = "DMAStream Project"
)
