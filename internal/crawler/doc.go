// Package crawler defines the domain types shared by the job pipeline: jobs,
// sources, collected records, the error taxonomy, and the small interfaces the
// worker, traversal engine, and stores are wired through.
package crawler
