package discovery

// ResolveSelection re-resolves a selection against a new candidate list.
// It returns the candidate whose serial equals previous, else the first
// candidate, else nil.
func ResolveSelection(previous string, candidates []Device) Device {
	if previous != "" {
		if d := Find(candidates, previous); d != nil {
			return d
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return nil
}

// Find returns the device with the given serial, or nil.
func Find(devices []Device, serial string) Device {
	for _, d := range devices {
		if d.Serial() == serial {
			return d
		}
	}
	return nil
}

// Options derives the display list for devices, in the same order.
// Text is "serial (name)", or just the serial when the name is empty.
func Options(devices []Device) []Option {
	out := make([]Option, 0, len(devices))
	for _, d := range devices {
		text := d.Serial()
		if name := d.Name(); name != "" {
			text += " (" + name + ")"
		}
		out = append(out, Option{Key: d.Serial(), Text: text})
	}
	return out
}
