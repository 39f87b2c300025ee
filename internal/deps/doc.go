// Package deps reports whether the external binaries clipmerge shells out
// to are installed.
package deps
