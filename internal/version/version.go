package version

// Version is the repomigrate version, overridden at build time with
// -ldflags "-X github.com/hashicorp-forge/repomigrate/internal/version.Version=...".
var Version = "0.1.0-dev"
