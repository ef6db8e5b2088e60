// Package config loads the fabric configuration and keeps per-session
// state files.
//
// # Configuration File
//
// The file is TOML, read from $FABRIC_CONFIG or
// ~/.config/fabric/config.toml. Every key is optional:
//
//	state_dir = "/var/lib/fabric"
//
//	[local]
//	engine = "docker"          # auto, docker or podman
//	image = "python:3.12-slim"
//	container_prefix = "fabric-"
//
//	[cloud]
//	url = "https://sandboxes.example.com"
//	token = "..."
//	timeout = "30s"
//
//	[snapshot]
//	max_files = 1000
//	max_file_size = 1048576
//	exclude = [".git/**", "node_modules/**"]
//
//	[provider]
//	kind = "anthropic"
//
//	[[fallbacks]]
//	kind = "openrouter"
//	model = "anthropic/claude-sonnet-4"
//
//	[agent]
//	command = "claude -p"
//	dotenv = ".env"
//
// FABRIC_STATE_DIR, FABRIC_CLOUD_URL, FABRIC_CLOUD_TOKEN,
// FABRIC_LOCAL_IMAGE and FABRIC_LOCAL_ENGINE override the file.
//
// # State Layout
//
//	<state_dir>/sessions/<id>.json          session records
//	<state_dir>/checkpoints/<key>.json      agent checkpoints
//	<state_dir>/audit/<id>.events.jsonl     audit log
//	<state_dir>/workspaces/<id>/            local workspaces
//	<state_dir>/fabric.prom                 metrics textfile
//
// Session ids are validated with ValidateName and every state path is
// checked to stay inside its directory.
package config
