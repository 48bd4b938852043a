// Package preflight provides readiness checks for the directories, journal,
// memory source, and listener that buildd depends on.
//
// The CLI "buildd doctor" command runs RunAll and renders each Result. Checks
// never modify state beyond creating the journal schema on first open.
package preflight
