// Package dbcorelog is the thin logr façade shared by the pages
// manager, the B+ tree, and the extendible hash table. It exists so
// callers can inject their own logr.Logger (silence it in tests,
// route it into a host application's logger) instead of the module
// reaching for a global logger or bare fmt.Println diagnostics.
package dbcorelog

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// Default is the logger used when a component is constructed without
// an explicit logr.Logger. It is a package variable (not a function
// default argument) so tests can swap it for logr.Discard() once per
// package rather than threading a logger through every constructor.
var Default logr.Logger = stdr.New(nil)

// Named returns l scoped under name if l is non-nil, otherwise Default
// scoped under name.
func Named(l *logr.Logger, name string) logr.Logger {
	if l != nil {
		return l.WithName(name)
	}
	return Default.WithName(name)
}
