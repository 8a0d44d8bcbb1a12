package graph

import "fmt"

// Handle refers to a resource registered in the current frame's Registry.
// A handle is valid only while its generation matches the registry slot.
type Handle struct {
	Index      uint32
	Generation uint32
}

// InvalidHandle never resolves: generation 0 is never handed out.
var InvalidHandle = Handle{}

func (h Handle) IsValid() bool {
	return h.Generation != 0
}

func (h Handle) String() string {
	if !h.IsValid() {
		return "handle(invalid)"
	}
	return fmt.Sprintf("handle(%d@%d)", h.Index, h.Generation)
}
