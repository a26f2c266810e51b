package ranking

// Page sizes.
const (
	MaxPageSize     = 50
	GlobalPageSize  = 10
	ProfilePageSize = 50

	// MaxOffset bounds how deep a client may page.
	MaxOffset = 10000
)

// Window is a normalised offset/limit pair.
type Window struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// NewWindow applies the default when limit is unset (<= 0), caps it at
// MaxPageSize and keeps offset within [0, MaxOffset].
func NewWindow(offset, limit, def int) Window {
	if limit <= 0 {
		limit = def
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	if offset > MaxOffset {
		offset = MaxOffset
	}
	return Window{Offset: offset, Limit: limit}
}

// HasMore reports whether a page of n items may be followed by another.
// It is true whenever the page came back full, so a final page of exactly
// Limit items still reports more.
func (w Window) HasMore(n int) bool {
	return n == w.Limit
}
