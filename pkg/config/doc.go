// Package config provides application configuration management from a YAML
// base file and environment variables.
//
// # Overview
//
// Defaults cover everything except the identity provider registration. An
// optional YAML file named by STOCKROOM_CONFIG_FILE is applied next, and any
// STOCKROOM_* environment variable that is set wins over both.
//
// # Configuration Structure
//
// Server settings:
//
//	STOCKROOM_HOST="0.0.0.0"
//	STOCKROOM_PORT="8080"
//	STOCKROOM_HEALTH_PORT="9090"
//	STOCKROOM_TRUST_PROXY="false"
//
// Identity provider (required):
//
//	STOCKROOM_OIDC_ISSUER_URL="https://login.example.com"
//	STOCKROOM_OIDC_CLIENT_ID="stockroom"
//	STOCKROOM_OIDC_CLIENT_SECRET="..."
//	STOCKROOM_OIDC_REDIRECT_URL="https://stockroom.example.com/api/auth/callback"
//	STOCKROOM_OIDC_SCOPES="openid,profile,email"
//
// Sessions and stores:
//
//	STOCKROOM_SESSION_BACKEND="postgres"  # memory, redis, postgres
//	STOCKROOM_SESSION_SECURE="auto"       # auto, always
//	STOCKROOM_SESSION_CLEANUP_SCHEDULE="*/15 * * * *"
//	STOCKROOM_POSTGRES_URL="postgres://localhost/stockroom?sslmode=disable"
//	STOCKROOM_REDIS_URL="redis://localhost:6379/0"
//	STOCKROOM_AUDIT_BACKEND="postgres"    # memory, postgres
//
// Observability settings:
//
//	STOCKROOM_LOG_LEVEL="info"  # debug, info, warn, error
//	STOCKROOM_METRICS_ENABLED="true"
//	STOCKROOM_OTEL_ENABLED="true"
//	STOCKROOM_OTEL_ENDPOINT="otel-collector:4317"
//
// The same settings in YAML:
//
//	server:
//	  port: "8080"
//	  trustProxy: true
//	oidc:
//	  issuerUrl: https://login.example.com
//	  clientId: stockroom
//	  redirectUrl: https://stockroom.example.com/api/auth/callback
//	session:
//	  backend: redis
//	redis:
//	  url: redis://localhost:6379/0
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Reloading
//
// Watch re-reads the file when it changes and hands each configuration that
// validates to a callback. The server only applies the log level this way.
package config
