package diskio

// PostProcessFunc is the controller-specific completion callback invoked by
// the transfer engine when a diskIO operation finishes (success or error).
// status is one of the OK/Err* codes below; position/address/count convey
// the final state so the controller can reconstruct its disk-address and
// word-count registers.
type PostProcessFunc func(status int, meta *DriveMeta, position int64, address uint32, count int)

// Completion status codes passed to PostProcessFunc, per spec.md §4.2.
const (
	OK         = 0
	ErrRead    = 1
	ErrNXM     = 2
	ErrCompare = 3
)

// DriveMeta is the per-(controller, unit) state spec.md §3 describes:
// created lazily on first access and kept for the process lifetime.
type DriveMeta struct {
	Cache    *ImageCache
	URL      string
	Mapped   bool
	MaxBlock int
	Drive    int

	PostProcess PostProcessFunc

	// Position is the tape/paper-tape byte offset on media; Command is the
	// tape's in-flight function code while a multi-step read/space
	// operation is unwinding across record boundaries.
	Position int64
	Command  int

	fetch           *FetchHandle
	pendingOp       Op
	pendingPosition int64
	pendingAddress  uint32
	pendingCount    int
}

// NewDriveMeta creates drive metadata with a fresh, empty cache.
func NewDriveMeta(drive int, url string, mapped bool) *DriveMeta {
	return &DriveMeta{
		Cache:  NewImageCache(),
		URL:    url,
		Mapped: mapped,
		Drive:  drive,
	}
}

// Busy reports whether a fetch is currently in flight for this drive, i.e.
// whether diskIO has suspended mid-transfer.
func (m *DriveMeta) Busy() bool { return m.fetch != nil }

// CancelFetch aborts any in-flight fetch and drops the suspended
// continuation. Per spec.md §5, a transfer aborted this way does not
// update its caller's word-count/address registers; the controller's own
// reset routine is responsible for re-initializing them.
func (m *DriveMeta) CancelFetch() {
	if m.fetch != nil {
		m.fetch.Cancel()
		m.fetch = nil
	}
	m.pendingCount = 0
}
