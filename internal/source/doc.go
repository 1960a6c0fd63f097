// Package source fetches the roster and death feed pages and turns their HTML
// tables into watch snapshots and event records. All text pattern extraction
// lives here; the watch core only sees names, levels and identities.
package source
