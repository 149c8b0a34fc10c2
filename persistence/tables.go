package persistence

import (
	"fmt"
	"regexp"
)

// DefaultSchemaVersion is the schema version used to name tables when no
// other version is specified.
const DefaultSchemaVersion = 1

// nameSanitizer matches characters that are not permitted within a table name.
var nameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Tables holds the names of the tables used by a single named queue.
//
// Each logical queue has its own physical set of tables, created from a shared
// set of template tables.
type Tables struct {
	// Queue is the name of the "ready" table, containing messages that are
	// scheduled for delivery.
	Queue string

	// Unacked is the name of the "in-flight" table, containing messages that
	// have been delivered but not yet acknowledged.
	Unacked string

	// Messages is the name of the table containing message bodies.
	Messages string

	// DeadLetter is the name of the table containing messages that exceeded
	// their retry budget.
	DeadLetter string
}

// NewTables returns the table names for the queue with the given name.
func NewTables(name string, schemaVersion int) Tables {
	if name == "" {
		panic("queue name must not be empty")
	}

	if schemaVersion <= 0 {
		panic("schema version must be positive")
	}

	n := SanitizeName(name)

	return Tables{
		Queue:      fmt.Sprintf("%s_%s", tableBase(schemaVersion, "queue"), n),
		Unacked:    fmt.Sprintf("%s_%s", tableBase(schemaVersion, "unacked"), n),
		Messages:   fmt.Sprintf("%s_%s", tableBase(schemaVersion, "messages"), n),
		DeadLetter: fmt.Sprintf("%s_%s", tableBase(schemaVersion, "dead_letter"), n),
	}
}

// Templates returns the names of the template tables that the queue's tables
// are created from.
func (t Tables) Templates() Tables {
	return Tables{
		Queue:      templateOf(t.Queue, "queue"),
		Unacked:    templateOf(t.Unacked, "unacked"),
		Messages:   templateOf(t.Messages, "messages"),
		DeadLetter: templateOf(t.DeadLetter, "dead_letter"),
	}
}

// SanitizeName replaces any characters in a queue name that are not valid
// within an unquoted table name with underscores.
func SanitizeName(name string) string {
	return nameSanitizer.ReplaceAllString(name, "_")
}

// tableBase returns the common prefix of the tables of the given kind.
func tableBase(schemaVersion int, kind string) string {
	return fmt.Sprintf("sqlqueue_v%d_%s", schemaVersion, kind)
}

// templateOf returns the template name for a table of the given kind.
func templateOf(table, kind string) string {
	var v int
	if _, err := fmt.Sscanf(table, "sqlqueue_v%d_", &v); err != nil {
		panic(fmt.Sprintf("%q is not a queue table name", table))
	}

	return tableBase(v, kind) + "_template"
}
