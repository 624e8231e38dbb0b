package library

import "strings"

// ExportText lists every canonical URL, one per line, in creation order.
func (l *Library) ExportText() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	urls := make([]string, 0, len(l.order))
	for _, id := range l.order {
		urls = append(urls, l.links[id].NormalizedURL)
	}
	return strings.Join(urls, "\n")
}

// ExportJSON returns the links for a JSON export.
func (l *Library) ExportJSON() []Link {
	return l.Links()
}
