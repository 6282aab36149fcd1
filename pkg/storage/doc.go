// Package storage holds connection settings for the stores nexus-mcp runs on.
//
// PostgreSQL is required and backs users, roles, clusters, edit-mode
// settings, resource groups and the audit log. Redis is optional and shares
// the edit-mode snapshot and rate-limit counters across replicas. S3 is
// optional and receives archived audit entries.
//
// The clients live in the postgres subpackage:
//
//	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfigFrom(cfg.Storage), logger)
//	rdb, err := postgres.NewRedisClient(cfg.Storage)
//	s3c, err := postgres.NewS3Client(ctx, cfg.Storage)
package storage
