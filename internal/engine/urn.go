package engine

import "strings"

// URN builds a content-addressed identifier of the form urn:<type>:<id>[:<sub>...].
// URNs are the only identifiers that cross the document graph; they must be
// stable under re-crawl.
func URN(resourceType, id string, sub ...string) string {
	parts := append([]string{"urn", resourceType, id}, sub...)
	return strings.Join(parts, ":")
}
