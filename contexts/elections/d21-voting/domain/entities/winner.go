package entities

import "strconv"

// WinnerIndex is a two-state value: Unset, or Winner(i) pointing at the
// candidate that won the tally. The zero value is Unset.
type WinnerIndex struct {
	index int
	set   bool
}

func UnsetWinner() WinnerIndex {
	return WinnerIndex{}
}

func WinnerAt(index int) WinnerIndex {
	return WinnerIndex{index: index, set: true}
}

// Get returns the winning index and true, or 0 and false when unset.
func (w WinnerIndex) Get() (int, bool) {
	if !w.set {
		return 0, false
	}
	return w.index, true
}

func (w WinnerIndex) IsSet() bool {
	return w.set
}

func (w WinnerIndex) String() string {
	if !w.set {
		return "unset"
	}
	return "winner(" + strconv.Itoa(w.index) + ")"
}
