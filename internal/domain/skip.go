package domain

type SkipReason string

const (
	SkipCloseTab SkipReason = "close_tab"
	SkipAttach   SkipReason = "attach"
	SkipDetach   SkipReason = "detach"
	SkipFlip     SkipReason = "flip"
)

// SkipInfo marks the next activation event as an echo of the tracker's own
// corrective action. At most one is pending process-wide; a newer corrective
// action supersedes an older pending marker.
type SkipInfo struct {
	Reason      SkipReason
	Expected    TabID
	HasExpected bool
}

func SkipWithExpected(reason SkipReason, expected TabID) SkipInfo {
	return SkipInfo{Reason: reason, Expected: expected, HasExpected: true}
}
