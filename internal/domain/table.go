package domain

// TableRef identifies one table reference resolved from a FROM clause.
type TableRef struct {
	Schema  string `json:"schema,omitempty"` // schema qualifier; empty when unqualified
	Name    string `json:"name"`             // relation name, CTE name, or derived-table alias
	Alias   string `json:"alias,omitempty"`  // FROM-clause alias; empty when none
	Derived bool   `json:"derived,omitempty"`
}

// Key returns the dedup key for the reference: the alias when present,
// otherwise the schema-qualified name.
func (r TableRef) Key() string {
	if r.Alias != "" {
		return r.Alias
	}
	if r.Schema != "" {
		return r.Schema + "." + r.Name
	}
	return r.Name
}

// ColumnQualifier returns the identifier parts that qualify a column read
// from this reference: [alias], [name], or [schema, name].
func (r TableRef) ColumnQualifier() []string {
	if r.Alias != "" {
		return []string{r.Alias}
	}
	if r.Schema != "" {
		return []string{r.Schema, r.Name}
	}
	return []string{r.Name}
}

// RefSet is an ordered, deduplicated collection of table references.
// First appearance wins; later references with the same Key are dropped.
type RefSet struct {
	seen map[string]struct{}
	refs []TableRef
}

// NewRefSet returns an empty RefSet.
func NewRefSet() *RefSet {
	return &RefSet{seen: make(map[string]struct{})}
}

// Add inserts ref unless a reference with the same Key is already present.
// It reports whether the reference was inserted.
func (s *RefSet) Add(ref TableRef) bool {
	key := ref.Key()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.refs = append(s.refs, ref)
	return true
}

// Refs returns the references in insertion order. The returned slice is
// shared with the set and must not be mutated.
func (s *RefSet) Refs() []TableRef { return s.refs }

// Len returns the number of references in the set.
func (s *RefSet) Len() int { return len(s.refs) }

// Base returns only the non-derived references, in insertion order.
func (s *RefSet) Base() []TableRef {
	var out []TableRef
	for _, r := range s.refs {
		if !r.Derived {
			out = append(out, r)
		}
	}
	return out
}

// Default meta-column names. Object names for the sequence, stamp function,
// and trigger are derived from the revision column name.
const (
	DefaultIdentityColumn = "__identity__"
	DefaultRevisionColumn = "__revision__"
	DefaultSchema         = "public"
)

// Names carries the configured meta-column names and the schema used to
// qualify unqualified tables during provisioning.
type Names struct {
	IdentityColumn string
	RevisionColumn string
	DefaultSchema  string
}

// DefaultNames returns the default meta-column configuration.
func DefaultNames() Names {
	return Names{
		IdentityColumn: DefaultIdentityColumn,
		RevisionColumn: DefaultRevisionColumn,
		DefaultSchema:  DefaultSchema,
	}
}

// WithDefaults fills any empty field from DefaultNames.
func (n Names) WithDefaults() Names {
	d := DefaultNames()
	if n.IdentityColumn == "" {
		n.IdentityColumn = d.IdentityColumn
	}
	if n.RevisionColumn == "" {
		n.RevisionColumn = d.RevisionColumn
	}
	if n.DefaultSchema == "" {
		n.DefaultSchema = d.DefaultSchema
	}
	return n
}

// SequenceName returns the name of the shared revision sequence.
func (n Names) SequenceName() string { return n.RevisionColumn + "_seq" }

// StampFunctionName returns the name of the trigger function that stamps
// the revision column.
func (n Names) StampFunctionName() string { return n.RevisionColumn + "_stamp" }

// TriggerName returns the name used for the per-table stamp trigger.
func (n Names) TriggerName() string { return n.RevisionColumn + "_trigger" }
