// Package buildinfo carries link-time version stamps, surfaced on the
// /version endpoint so deployed relief coordinators can report what they run.
package buildinfo

// Set via -ldflags "-X reliefops/internal/buildinfo.Version=..." at release.
var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info returns the stamps as a flat map for the version endpoint.
func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}
