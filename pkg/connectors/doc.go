// Package connectors provides the built-in leaf connectors: static inline
// content, filesystem trees, and SQLite databases. Each connector ships with
// a factory that validates declarative runbook properties before
// instantiation.
//
// All connectors emit messages whose content carries a "sources" list of
// {id, content, metadata} entries, the shape the pattern analyser consumes.
package connectors
