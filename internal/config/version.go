package config

// Version is the graphrouter binary version.
// Set at build time via: -ldflags "-X github.com/persistorai/graphrouter/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
