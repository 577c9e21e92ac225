// Package crawler defines the core types and capability interfaces shared by
// the discovery, extraction, worker, and persistence stages of the catalog
// pipeline.
package crawler
