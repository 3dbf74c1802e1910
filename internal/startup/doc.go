// Package startup loads application configuration from the environment
// and logs the effective settings. Configuration is environment-first
// (with .env support wired in by the CLI layer); flags override fields
// after loading.
package startup
