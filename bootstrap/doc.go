package bootstrap

// Package bootstrap implements the runtime prerequisites for the demo
// application: idempotent provisioning of the isolated Python environment
// and unconditional synchronization of its installed packages against the
// requirements manifest. The environment marker is the venv interpreter
// executable; if it exists, creation is skipped, but dependency
// synchronization still runs on every invocation so drift is corrected.
