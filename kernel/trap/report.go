package trap

import "nucleus/kernel/irq"

const (
	maxFields = 3
	maxFlags  = 3
)

// Field is a named value extracted from a trap.
type Field struct {
	Name  string
	Value uint64
}

// Report is the decoded form of a trap. It is backed by fixed-size arrays so
// that it can be filled in without allocating.
type Report struct {
	Vector irq.Vector
	Name   string

	// Reason describes the cause of a page fault.
	Reason string

	fields    [maxFields]Field
	numFields int

	flags    [maxFlags]string
	numFlags int
}

func (r *Report) reset() {
	*r = Report{}
}

func (r *Report) add(name string, value uint64) {
	r.fields[r.numFields] = Field{Name: name, Value: value}
	r.numFields++
}

// Fields returns the values reported for the trap in the order they are
// printed.
func (r *Report) Fields() []Field {
	return r.fields[:r.numFields]
}

// Flags returns the page fault qualifiers, if any.
func (r *Report) Flags() []string {
	return r.flags[:r.numFlags]
}
