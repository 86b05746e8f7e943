package envexec

import (
	"encoding/json"
	"fmt"
)

// Status classifies how a compilation or a run ended
type Status int

// Statuses reported by launchers and by the judge
const (
	StatusInvalid Status = iota // zero value, never reported

	StatusAccepted    // exit 0 with matching output
	StatusWrongAnswer // exit 0 with different output

	StatusCompileError
	StatusRuntimeError
	StatusTimeLimitExceeded
	StatusOutputLimitExceeded

	// killed on supersede, terminate or caller cancellation
	StatusTerminated

	// the launcher or the workspace failed, not the program
	StatusInternalError
)

var statusNames = [...]string{
	StatusInvalid:             "Invalid",
	StatusAccepted:            "Accepted",
	StatusWrongAnswer:         "Wrong Answer",
	StatusCompileError:        "Compile Error",
	StatusRuntimeError:        "Runtime Error",
	StatusTimeLimitExceeded:   "Time Limit Exceeded",
	StatusOutputLimitExceeded: "Output Limit Exceeded",
	StatusTerminated:          "Terminated",
	StatusInternalError:       "Internal Error",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return statusNames[StatusInvalid]
	}
	return statusNames[s]
}

// MarshalJSON encodes the status as its name
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the status from its name
func (s *Status) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for i, n := range statusNames {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("envexec: unknown status %q", name)
}
