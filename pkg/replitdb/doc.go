// Package replitdb provides a client for the Replit Database, a remote
// key-value store accessed over HTTP. The public API centres around the
// Client type, which exposes Get/Set/Delete/Keys/List/Clear/Size plus batch
// variants of delete and set whose partial-failure behaviour is selected at
// construction time (fail-fast by default, settle-all via WithAllSettled).
//
// The endpoint is supplied explicitly to New or resolved from the
// REPLIT_DB_URL environment variable by NewFromEnv. Environment-resolved
// clients re-read the variable on a fixed interval to tolerate endpoint
// rotation; the refresher is owned by the client and stopped by Close.
package replitdb
