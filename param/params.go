package param

// Set represents the recognized and unrecognized parameters of a single
// query submission (spec.md §6, "Standard parameters").
//
// Extras is lazily initialized and holds any parameter name the core does
// not recognize, key and value both as sent. The standard names the
// dispatcher does not parse into typed fields (PHASE, WAIT, ACTION,
// EXECUTIONDURATION, DESTRUCTION) are matched case-insensitively and
// stored here under their lower-case names.
//
// Set is mutable before a Job reaches a terminal phase and before
// EXECUTING begins (spec.md §3: "Once phase is terminal, params ... are
// immutable"; spec.md §6 restricts the parameters endpoint to
// "pre-execution only").
type Set struct {
	Request string `validate:"required,oneofci=doQuery getCapabilities"`
	Lang    string `validate:"omitempty,oneofci=ADQL"`
	Version string
	Format  string `validate:"omitempty"` // MIME type or short alias; default "votable"
	MaxRec  int64  `validate:"min=-1"`    // -1 = unlimited

	Query string

	Uploads []Upload `validate:"dive"`

	Extras map[string]string
}

// NewSet returns a Set with the documented defaults applied (FORMAT
// defaults to "votable", MAXREC defaults to -1 meaning unlimited).
func NewSet() Set {
	return Set{
		Format: "votable",
		MaxRec: -1,
	}
}

// Get returns the value of an unrecognized parameter by name, or ("",
// false) if it was never set.
func (s *Set) Get(name string) (string, bool) {
	v, ok := s.Extras[name]
	return v, ok
}

// Set stores the value of an unrecognized parameter. Extras is allocated
// lazily.
func (s *Set) Set(name, value string) {
	if s.Extras == nil {
		s.Extras = make(map[string]string)
	}
	s.Extras[name] = value
}

// Upload describes one client-supplied table to be materialized into the
// job's transient upload namespace before execution (spec.md §4.5
// UPLOADING stage). Name is the ADQL table alias the query will reference
// (TAP_UPLOAD.<Name>); URI is the location the MetadataProvider fetches
// the table data from — an http(s) URL or a reference to an inline
// multipart part, depending on how the dispatcher decoded the UPLOAD
// parameter.
type Upload struct {
	Name string `validate:"required"`
	URI  string `validate:"required"`
}
