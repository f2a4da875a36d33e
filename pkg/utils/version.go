// Package utils holds small helpers shared by the polar binary.
package utils

// Build metadata, stamped at link time with
// -ldflags "-X github.com/papercomputeco/polar/pkg/utils.Version=...".
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)
