// Package plugins hosts plugin implementation subpackages. It contains no
// runtime code itself; the architecture guard beside this file checks that
// plugins depend on the core engine only, never on storage adapters.
package plugins
