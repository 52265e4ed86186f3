package models

type Action string

const (
	ActionCall     Action = "call"
	ActionCheckIn  Action = "check_in"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionNoShow   Action = "no_show"
)

var transitionMap = map[Action][]EntryState{
	ActionCall:     {StateWaiting},
	ActionCheckIn:  {StateCalled},
	ActionComplete: {StateInService},
	ActionCancel:   {StateWaiting, StateCalled, StateInService},
	ActionNoShow:   {StateWaiting, StateCalled},
}

var actionTarget = map[Action]EntryState{
	ActionCall:     StateCalled,
	ActionCheckIn:  StateInService,
	ActionComplete: StateCompleted,
	ActionCancel:   StateCancelled,
	ActionNoShow:   StateNoShow,
}

func CanTransition(action Action, from EntryState) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, state := range allowed {
		if state == from {
			return true
		}
	}
	return false
}

// Target returns the state an action moves an entry into.
func (a Action) Target() (EntryState, bool) {
	state, ok := actionTarget[a]
	return state, ok
}
