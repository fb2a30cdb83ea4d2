// internal/upgrade/state.go
package upgrade

// State is the upgrade progress reported by UPGRADE_STATE.
// Values are part of the wire contract.
type State uint8

const (
	NotStarted State = iota
	Erasing
	Receiving
	Verifying
	Scheduled
	Activated
	Failed
)

var stateNames = [...]string{
	NotStarted: "not-started",
	Erasing:    "erasing",
	Receiving:  "receiving",
	Verifying:  "verifying",
	Scheduled:  "scheduled",
	Activated:  "activated",
	Failed:     "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
