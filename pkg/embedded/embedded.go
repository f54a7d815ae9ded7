// Package embedded provides static assets compiled into the binaries.
//
// Files contains:
//   - params/simm.yaml - default SIMM parameter table, used when no
//     parameter file is configured
package embedded

import (
	"embed"
)

// DefaultParamsPath is the location of the default parameter table inside Files.
const DefaultParamsPath = "params/simm.yaml"

//go:embed params
var Files embed.FS
