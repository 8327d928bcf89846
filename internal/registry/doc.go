/*
Package registry holds the identifier-to-handle map of one script context.

Identifiers are minted by the host and act as capability keys: holding one
is the only way to address an object across the process boundary. The map
belongs to a single context and is cleared when that context is torn down.
*/
package registry
