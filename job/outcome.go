package job

// Outcome is the result of a version-guarded write. A lost race is an
// expected, frequent result under contention and is reported here rather
// than as an error; the error return of a write is reserved for storage
// failures.
type Outcome int

const (
	// Applied means the write matched the expected version and took effect.
	Applied Outcome = iota
	// Conflict means another writer advanced or removed the record first.
	// The stored record is unchanged.
	Conflict
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}
