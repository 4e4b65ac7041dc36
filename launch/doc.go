package launch

// Package launch starts the Streamlit server process. The one-shot Launcher
// implements the original launcher-script semantics: spawn the server with
// the configured address and port, block for its lifetime and propagate its
// exit code verbatim. The Supervisor wraps the same launch in a managed
// lifecycle with captured logs, HTTP health checks and restart backoff.
