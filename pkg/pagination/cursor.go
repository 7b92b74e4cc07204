package pagination

import "math"

// Unlimited disables the row ceiling of a ShortPage policy.
const Unlimited = math.MaxInt

// Cursor is an immutable position in an offset-paginated result set.
type Cursor struct {
	Offset   int
	PageSize int
}

// Advance returns the cursor n nodes further along.
func (c Cursor) Advance(n int) Cursor {
	return Cursor{Offset: c.Offset + n, PageSize: c.PageSize}
}

// State is the driver position between fetches.
type State struct {
	Cursor Cursor

	// Total is the server-reported node count captured from the first page,
	// or -1 while unknown.
	Total int

	// Done is set once no further fetch may be issued.
	Done bool
}

// InitialState returns the state of a fresh driver.
func InitialState(pageSize int) State {
	return State{Cursor: Cursor{PageSize: pageSize}, Total: -1}
}

// PageInfo describes a fetched page to a Policy.
type PageInfo struct {
	Len        int
	TotalCount *int
}

// Policy decides when an offset-paginated walk ends. Implementations are
// pure: they never hold state between calls.
type Policy interface {
	// Admit reports whether a fetch may be issued from s.
	Admit(s State) bool

	// Step consumes a fetched page and returns the next state along with
	// how many of the page's nodes may be emitted.
	Step(s State, p PageInfo) (State, int)

	// Name identifies the policy in logs.
	Name() string
}

// ShortPage is the policy of uncounted result sets: the walk ends on an empty
// page, on a page shorter than the page size, or when the next full page would
// pass MaxTotal. The ceiling is applied in whole pages, so a MaxTotal below
// one page size admits no fetch at all.
type ShortPage struct {
	MaxTotal int
}

func (p ShortPage) Name() string { return "short_page" }

func (p ShortPage) Admit(s State) bool {
	if s.Done || s.Cursor.PageSize <= 0 {
		return false
	}
	// offset+pageSize <= maxTotal, written to avoid overflow with Unlimited
	return s.Cursor.Offset <= p.MaxTotal-s.Cursor.PageSize
}

func (p ShortPage) Step(s State, pi PageInfo) (State, int) {
	if pi.Len == 0 {
		s.Done = true
		return s, 0
	}
	if pi.Len < s.Cursor.PageSize {
		s.Done = true
		return s, pi.Len
	}
	s.Cursor = s.Cursor.Advance(s.Cursor.PageSize)
	return s, pi.Len
}

// Counted is the policy of result sets that report their size: the total is
// captured from the first page and the walk ends on an empty page or once the
// offset reaches it. The offset advances by the nodes actually returned and
// nodes past the total are never emitted.
type Counted struct{}

func (Counted) Name() string { return "counted" }

func (Counted) Admit(s State) bool {
	return !s.Done && s.Cursor.PageSize > 0
}

func (Counted) Step(s State, pi PageInfo) (State, int) {
	if s.Total < 0 {
		s.Total = 0
		if pi.TotalCount != nil && *pi.TotalCount > 0 {
			s.Total = *pi.TotalCount
		}
	}
	if pi.Len == 0 {
		s.Done = true
		return s, 0
	}

	keep := min(pi.Len, max(s.Total-s.Cursor.Offset, 0))
	s.Cursor = s.Cursor.Advance(pi.Len)
	if s.Cursor.Offset >= s.Total {
		s.Done = true
	}
	return s, keep
}
