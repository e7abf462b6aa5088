// Package idgen generates the short, type-prefixed opaque identifiers used
// throughout the system (sig_, evt_, mem_, task_, memo_, sim_).
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a new identifier of the form "<prefix>_<12 hex chars>".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + id[:12]
}

// Signal, Event, Memory, Task, Memo, and Simulation generate IDs for their
// respective entity kinds.
func Signal() string     { return New("sig") }
func Event() string      { return New("evt") }
func Memory() string     { return New("mem") }
func Task() string       { return New("task") }
func Memo() string       { return New("memo") }
func Simulation() string { return New("sim") }
