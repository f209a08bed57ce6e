package wire

// Operation is a request operation.
type Operation uint8

const (
	// OpPush writes a file on the device. Args[0] is the destination
	// path; Size and Mode describe the file. The body follows as Data
	// frames terminated by StreamClose.
	OpPush Operation = 1

	// OpExec starts a process. Args is the command line. Output arrives
	// as Data frames; StreamClose carries the exit code.
	OpExec Operation = 2

	// OpReboot restarts the device. Args[0] is the optional target mode.
	OpReboot Operation = 3

	// OpPowerButton emulates a short power key press.
	OpPowerButton Operation = 4

	// OpProperties reads the device property table.
	OpProperties Operation = 5
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpPush:
		return "Push"
	case OpExec:
		return "Exec"
	case OpReboot:
		return "Reboot"
	case OpPowerButton:
		return "PowerButton"
	case OpProperties:
		return "Properties"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is known.
func (o Operation) IsValid() bool {
	return o >= OpPush && o <= OpProperties
}
