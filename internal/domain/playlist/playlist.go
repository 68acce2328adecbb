// Package playlist provides the imported playlist domain entities.
package playlist

import "strings"

// Entry is one (title, artists) pair produced by playlist expansion.
type Entry struct {
	Title   string   // Track title
	Artists []string // Artist names, in source order
}

// Query returns the search query text used to resolve the entry,
// in the form "Title Artist1, Artist2".
func (e Entry) Query() string {
	if len(e.Artists) == 0 {
		return e.Title
	}
	return e.Title + " " + strings.Join(e.Artists, ", ")
}

// Playlist represents an expanded external playlist.
type Playlist struct {
	Ref     string  // Original playlist reference (URL or URI)
	Name    string  // Playlist name, if the source reported one
	Entries []Entry // Ordered entries; order is enqueue order
}

// Queries returns the resolver queries for all entries, in playlist order.
func (p *Playlist) Queries() []string {
	queries := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		queries[i] = e.Query()
	}
	return queries
}
