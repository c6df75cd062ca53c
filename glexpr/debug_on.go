//go:build sdfdebug

package glexpr

const debug = true
