// Package config loads client configuration from YAML files with
// NATSWIRE_* environment overrides and converts it into client options.
// It exists for programs that want their connection settings in a file;
// the client package itself is configured purely through options and does
// not depend on this package.
package config
