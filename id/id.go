// Package id provides identifiers for jobs and engine nodes.
//
// IDs are TypeIDs ("job_01h2xcejqtf2nbrexx3vqjhp41"). The suffix is a
// UUIDv7 in Crockford base32, so IDs created later sort after earlier
// ones when compared as strings; stores rely on that for the final
// acquisition tie-break.
package id

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Prefix is the entity tag in front of the underscore.
type Prefix string

const (
	PrefixJob  Prefix = "job"
	PrefixNode Prefix = "node"
)

// ID is a prefix-qualified identifier. The zero value is Nil.
//
//nolint:recvcheck // UnmarshalText and Scan need pointer receivers.
type ID struct {
	tid typeid.TypeID
	ok  bool
}

// JobID identifies a job record across all of its states.
type JobID = ID

// NodeID names an engine instance when no node name is configured.
type NodeID = ID

// Nil is the unset ID.
var Nil ID

func generate(p Prefix) ID {
	tid, err := typeid.Generate(string(p))
	if err != nil {
		// Only reachable with a malformed prefix constant.
		panic(fmt.Sprintf("id: generate %q: %v", p, err))
	}
	return ID{tid: tid, ok: true}
}

// NewJobID returns a fresh job ID.
func NewJobID() JobID { return generate(PrefixJob) }

// NewNodeID returns a fresh node ID.
func NewNodeID() NodeID { return generate(PrefixNode) }

// Parse accepts any well-formed TypeID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, ok: true}, nil
}

func parseAs(s string, want Prefix) (ID, error) {
	v, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := v.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q is a %q id, want %q", s, got, want)
	}
	return v, nil
}

// ParseJobID parses s and rejects anything that is not a job ID.
func ParseJobID(s string) (JobID, error) { return parseAs(s, PrefixJob) }

// ParseNodeID parses s and rejects anything that is not a node ID.
func ParseNodeID(s string) (NodeID, error) { return parseAs(s, PrefixNode) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.ok {
		return ""
	}
	return i.tid.String()
}

func (i ID) Prefix() Prefix {
	if !i.ok {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

func (i ID) IsNil() bool { return !i.ok }

// Compare orders IDs by their string form. Nil sorts first.
func Compare(a, b ID) int {
	return strings.Compare(a.String(), b.String())
}

func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText treats empty input as Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	v, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Value stores Nil as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.ok {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.tid.String(), nil
}

func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T", src)
	}
}
