// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// Message identifiers and registry epochs are opaque strings; callers must not
// parse them.
package idgen
