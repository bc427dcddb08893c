package common

// Version is set at build time with -ldflags "-X github.com/ruteri/key-custody/common.Version=...".
var Version = "dev"
