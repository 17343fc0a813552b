package ctsharness

import "embed"

// EmbeddedConfigFS provides the default settings and bundled scenarios.
//
//go:embed config
var EmbeddedConfigFS embed.FS
