// Package config handles configuration loading for keepy-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from KEEPY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/keepy/gateway.yaml
//  3. ~/.config/keepy/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  api_secret: "${WA_API_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:3000"
//
// Authentication (required, no fallback value):
//
//	auth:
//	  api_secret: "${WA_API_SECRET}"
//
// Webhook delivery:
//
//	webhook:
//	  url: "https://example.com/functions/v1/wa-events"
//	  timeout: "10s"
//	  max_in_flight: 32
//
// Underlying WhatsApp client:
//
//	whatsapp:
//	  driver: "whatsmeow"   # whatsmeow, sim
//	  store_dir: "/var/lib/keepy/sessions"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "keepy-gateway"
//	  auth_key: "${TS_AUTHKEY}"
//	  funnel: false
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
