// Package memory holds in-process implementations of the repository ports.
// They honour the same contracts as the Postgres adapters (conditional
// rotation, (user, device) upsert uniqueness, unique token hashes) and back
// single-instance deployments and tests.
package memory
