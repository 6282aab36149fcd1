// Package config loads nexus-mcp settings from environment variables.
//
// Every setting has a default except the PostgreSQL URL. LoadConfig reads
// the environment and then calls Validate; flags in cmd/nexus-mcp may
// override a few catalog values afterwards.
//
// Server:
//
//	NEXUS_MCP_HOST="0.0.0.0"
//	NEXUS_MCP_PORT="8080"
//	NEXUS_MCP_HEALTH_PORT="9090"
//	NEXUS_MCP_WRITE_TIMEOUT="0"   # SSE streams are long-lived
//
// Storage:
//
//	NEXUS_MCP_POSTGRES_URL="postgres://nexus@db/nexus"   # required
//	NEXUS_MCP_POSTGRES_REPLICA_URLS="postgres://r1/nexus,postgres://r2/nexus"
//	NEXUS_MCP_REDIS_URL="redis://cache:6379/0"           # optional
//
// Auth and dispatch:
//
//	MCP_API_TOKEN="..."                  # shared secret, full access
//	NEXUS_MCP_ALLOW_ANONYMOUS="false"
//	NEXUS_MCP_CLUSTER_PARAMS="cluster_id,clusterName"
//	NEXUS_MCP_DEFAULT_CLUSTER="default"
//	NEXUS_MCP_API_TIMEOUT="30s"
//	NEXUS_MCP_API_RETRY_ATTEMPTS="3"
//
// Catalog and transport:
//
//	NEXUS_MCP_SPEC_DIR="specs"
//	NEXUS_MCP_NAMESPACES_FILE="namespaces.yaml"
//	NEXUS_MCP_CATALOG_WATCH="true"
//	NEXUS_MCP_TOOL_MODE="grouped"        # or raw
//	NEXUS_MCP_RATE_LIMIT_PER_MINUTE="0"  # 0 disables
//
// Audit archive:
//
//	NEXUS_MCP_AUDIT_ARCHIVE_SCHEDULE="0 3 * * *"
//	NEXUS_MCP_AUDIT_ARCHIVE_BUCKET="nexus-audit"
//	NEXUS_MCP_AUDIT_RETENTION_DAYS="90"
//	NEXUS_MCP_S3_ENDPOINT="http://minio:9000"
package config
