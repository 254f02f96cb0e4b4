// Package config loads the service configuration.
//
// Static settings come from environment variables prefixed ORGSVC_:
//
//	ORGSVC_PORT="8080"
//	ORGSVC_HEALTH_PORT="9090"
//	ORGSVC_STORE_TYPE="postgres"  # memory, postgres, sqlite
//	ORGSVC_STORE_DSN="postgres://localhost/orgs?sslmode=disable"
//	ORGSVC_STORE_REPLICA_DSNS="postgres://replica1/orgs,postgres://replica2/orgs"
//	ORGSVC_CACHE_TTL="1m"
//	ORGSVC_REDIS_URL="redis://localhost:6379/0"
//	ORGSVC_LICENSING_URL="http://licensing-service:8080"
//	ORGSVC_LOG_LEVEL="info"
//	ORGSVC_POLICY_FILE="/etc/orgsvc/policies.yaml"
//
// Resilience tunables and the log level can also be set in a YAML policy
// file. Watcher reloads it on change and applies it to the running
// resilience.Registry without resetting breaker state.
package config
