// Package groups resolves overlay ID-prefix group configuration.
//
// Plugins ship a read-only document declaring their groups; end users keep a
// second document of overrides. Merge folds the two into a normalized
// MergedView, Diff computes the smallest user document that reproduces a
// view, and Resolver matches runtime payload ids against a view:
//
//	view := groups.Merge(shipped, user)
//	resolver := groups.NewResolver(view)
//	res, ok := resolver.Resolve("edr-docking-station-bar", "")
//
// Everything in this package is pure. Loading files, tracking staleness and
// writing documents live in pkg/loader, pkg/state and pkg/authoring.
package groups
