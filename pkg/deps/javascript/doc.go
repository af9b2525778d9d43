// Package javascript reads npm package.json manifests.
//
// # Overview
//
// Discovery reads two kinds of manifests: the ones that declare a
// repository's own packages, and the ones fetched from candidate dependents
// to confirm they really depend on a package. Both are read tolerantly with
// gjson: unknown fields, odd value types and partially filled sections never
// fail the parse, only invalid JSON does.
//
// # Matching
//
// [Manifest.Match] decides whether a manifest references a package, trying
// four tiers in order and stopping at the first hit:
//
//  1. Structured sections: dependencies, devDependencies, peerDependencies,
//     optionalDependencies. The key equals the name, or the value is an
//     alias ("npm:<name>@<range>"). Reports the section and declared range.
//  2. Bundle lists (bundleDependencies, bundledDependencies). Reported as
//     dependencies with the range from dependencies when declared.
//  3. Workspaces. The full name, or for scoped names the unscoped suffix,
//     is a path segment of a workspace entry. Reported as workspaces with
//     version "unknown".
//  4. Raw content. The quoted name appears anywhere in the manifest.
//     Reported as unknown/"unknown". This tier is an approximation: it
//     over-matches names mentioned in unrelated fields.
//
// Scoped and unscoped forms are equivalent for tier 3 only; the result never
// rewrites the package name.
package javascript
