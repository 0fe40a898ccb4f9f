// Package config loads, validates, and normalizes Postbox configuration.
//
// Configuration comes from a TOML file (default ~/.config/postbox/config.toml
// or ./postbox.toml), with environment fallbacks for the backend URL and
// token. All path fields are expanded and made absolute during Load, so the
// rest of the system never handles '~' or relative paths.
package config
