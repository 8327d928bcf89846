// Package id mints the identifiers that cross the process boundary.
//
// Two families exist:
//   - Browser and renderer-process identifiers: prefixed ULIDs (brw_*, proc_*),
//     k-sortable so logs read in creation order.
//   - Object identifiers: random UUIDs minted by the host for every proxy it
//     hands out (global objects, functions, invoke results). The script side
//     treats them as opaque capability keys into its object registry.
//
// Identifiers are never memory addresses and are never reused.
package id

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// BrowserID identifies one browser instance (one script context at a time).
type BrowserID string

// ProcessID identifies a launched renderer process.
type ProcessID string

// ObjectID identifies a host-minted proxy for a script-side value.
type ObjectID string

const (
	BrowserPrefix = "brw"
	ProcessPrefix = "proc"
)

// Monotonic entropy keeps ULIDs minted within the same millisecond ordered.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func mint(prefix string) string {
	entropyMu.Lock()
	u := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	return prefix + "_" + u.String()
}

// NewBrowserID generates a new browser ID.
func NewBrowserID() BrowserID { return BrowserID(mint(BrowserPrefix)) }

// NewProcessID generates a new renderer process ID.
func NewProcessID() ProcessID { return ProcessID(mint(ProcessPrefix)) }

// NewObjectID mints a random UUID for a script-side value proxy.
func NewObjectID() ObjectID { return ObjectID(uuid.NewString()) }

func (id BrowserID) String() string { return string(id) }
func (id ProcessID) String() string { return string(id) }
func (id ObjectID) String() string  { return string(id) }

// Created reports when the browser identifier was minted.
func (id BrowserID) Created() (time.Time, error) { return created(string(id), BrowserPrefix) }

// Created reports when the process identifier was minted.
func (id ProcessID) Created() (time.Time, error) { return created(string(id), ProcessPrefix) }

// Valid reports whether id is a brw_ prefixed ULID.
func (id BrowserID) Valid() bool { return validPrefixed(string(id), BrowserPrefix) }

// Valid reports whether id is a proc_ prefixed ULID.
func (id ProcessID) Valid() bool { return validPrefixed(string(id), ProcessPrefix) }

// Valid reports whether id is a well-formed UUID.
func (id ObjectID) Valid() bool { return uuid.Validate(string(id)) == nil }

func validPrefixed(s, prefix string) bool {
	rest, ok := strings.CutPrefix(s, prefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(rest)
	return err == nil
}

func created(s, prefix string) (time.Time, error) {
	rest, ok := strings.CutPrefix(s, prefix+"_")
	if !ok {
		return time.Time{}, fmt.Errorf("id %q: missing %s_ prefix", s, prefix)
	}
	u, err := ulid.ParseStrict(rest)
	if err != nil {
		return time.Time{}, fmt.Errorf("id %q: %w", s, err)
	}
	return ulid.Time(u.Time()), nil
}
