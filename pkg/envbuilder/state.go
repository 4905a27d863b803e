// SPDX-License-Identifier: Apache-2.0
package envbuilder

// State is a step of environment creation. Failure is terminal from any state.
type State int

const (
	StateStart State = iota
	StateBinaryReady
	StateDescriptorValidated
	StateNameExtracted
	StateChildRunning
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateBinaryReady:
		return "BINARY_READY"
	case StateDescriptorValidated:
		return "DESCRIPTOR_VALIDATED"
	case StateNameExtracted:
		return "NAME_EXTRACTED"
	case StateChildRunning:
		return "CHILD_RUNNING"
	case StateSuccess:
		return "SUCCESS"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
