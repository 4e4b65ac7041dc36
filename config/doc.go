package config

// Package config holds the immutable launcher configuration. Values are
// resolved once at process start from built-in defaults, an optional YAML
// config file, DEMOHOST_* environment variables and finally CLI flags, in
// that order of increasing precedence. Relative paths are resolved against
// the project directory (by default the directory containing the launcher
// binary), never against the caller's working directory.
