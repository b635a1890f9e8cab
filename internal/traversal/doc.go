// Package traversal drives a single source's collection from its entry point to
// a defined stopping condition.
//
// Two strategies are provided. Paginated walks a browser session through an
// entry page and every page linked from its pagination control, in ascending
// page order. Enumeration fetches an index of discrete keys over plain HTTP and
// then fetches one unit per key. Both return the records they gathered and hand
// them to a persistence callback, either page by page or once at the end.
package traversal
