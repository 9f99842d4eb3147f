package service

import "fmt"

// State is the lifecycle position of a VM within a single operation.
// States are not persisted.
type State string

const (
	StateRequested    State = "requested"
	StateProvisioning State = "provisioning"
	StateRunning      State = "running"
	StateTerminating  State = "terminating"
	StateTerminated   State = "terminated"
	StateFailed       State = "failed"
)

var transitions = map[State][]State{
	StateRequested:    {StateProvisioning, StateFailed},
	StateProvisioning: {StateRunning, StateFailed},
	StateRunning:      {StateTerminating},
	StateTerminating:  {StateTerminated, StateFailed},
}

func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (vm *VM) transition(to State) error {
	if !vm.State.CanTransition(to) {
		return fmt.Errorf("vm %s: illegal transition %s -> %s", vm.Name, vm.State, to)
	}
	vm.State = to
	return nil
}
