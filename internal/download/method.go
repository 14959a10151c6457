package download

import "fmt"

// Method is one of the closed set of retrieval strategies. Dispatch is an
// explicit switch in the executor; each arm stands on its own.
type Method string

const (
	// MethodAuto asks the orchestrator to pick a primary method from the
	// sampled network conditions. It never reaches the executor.
	MethodAuto Method = "auto"

	// MethodMirror relays the transfer through a ranked proxy mirror.
	MethodMirror Method = "mirror"

	// MethodDirect fetches from the origin host: a clone when a token is
	// available, an archive download otherwise.
	MethodDirect Method = "direct"

	// MethodClone invokes the external git binary against the origin.
	MethodClone Method = "clone"
)

// ParseMethod validates a method name from flags or config.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodAuto, MethodMirror, MethodDirect, MethodClone:
		return Method(s), nil
	default:
		return "", fmt.Errorf("unknown method %q (want auto, mirror, direct, or clone)", s)
	}
}

func (m Method) String() string {
	return string(m)
}
