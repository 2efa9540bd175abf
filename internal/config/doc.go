// Package config handles configuration loading for skybridge.
//
// # Configuration File
//
// Default location:
//
//  1. Path from SKYBRIDGE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/skybridge/config.yaml (~/.config when unset)
//
// Files ending in .toml are read as TOML; anything else is YAML. When no file
// exists the server can run from environment variables alone (LoadFromEnv).
//
// # Environment
//
// A .env file in the working directory is loaded first (LoadDotEnv); it never
// overrides variables that are already set. Values in the file may reference
// the environment:
//
//	google:
//	  client_secret: "${GOOGLE_CLIENT_SECRET}"
//
// After the file is parsed every field can be overridden with a SKYBRIDGE_*
// variable named after its section and key, for example
// SKYBRIDGE_SERVER_BASE_URL, SKYBRIDGE_AUTH_SIGNING_KEY or
// SKYBRIDGE_GOOGLE_SCOPES (comma separated).
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  session_ttl: "24h"
//	mcp:
//	  keepalive_interval: "30s"
//	  tool_timeout: "30s"
//
// # Configuration Sections
//
//	server:
//	  http_addr: ":8000"
//	  base_url: "https://skybridge.example.com"
//	auth:
//	  signing_key: "${SKYBRIDGE_SIGNING_KEY}"   # at least 32 bytes; empty = random per process
//	  session_ttl: "24h"
//	google:
//	  client_id: "..."
//	  client_secret: "..."
//	  redirect_url: ""                          # defaults to <base_url>/auth/callback
//	  scopes: []                                # defaults to openid, profile, email + calendar
//	weather:
//	  api_key: "${OPENWEATHER_API_KEY}"
//	mcp:
//	  server_name: "skybridge"
//	  rate_limit_per_minute: 0                  # 0 disables
//	audit:
//	  path: "~/.local/share/skybridge/audit.db" # empty disables
//	logging:
//	  level: "info"                             # debug, info, warn, error
//	  format: "text"                            # text, json
package config
