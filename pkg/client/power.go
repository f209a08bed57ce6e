package client

// RebootMode is the target of a reboot.
type RebootMode string

const (
	RebootNormal     RebootMode = ""
	RebootPowerOff   RebootMode = "poweroff"
	RebootBootloader RebootMode = "bootloader"
	RebootFastboot   RebootMode = "fastboot"
	RebootRecovery   RebootMode = "recovery"
	RebootSideload   RebootMode = "sideload"
	// RebootEDL enters Qualcomm emergency download mode. Only some
	// Qualcomm devices support it.
	RebootEDL RebootMode = "edl"
	// RebootDownload enters Samsung Odin download mode.
	RebootDownload RebootMode = "download"
)

// RebootModes lists every mode in menu order.
var RebootModes = []RebootMode{
	RebootNormal,
	RebootPowerOff,
	RebootBootloader,
	RebootFastboot,
	RebootRecovery,
	RebootSideload,
	RebootEDL,
	RebootDownload,
}

// IsValid reports whether m is a known mode.
func (m RebootMode) IsValid() bool {
	for _, mode := range RebootModes {
		if m == mode {
			return true
		}
	}
	return false
}

// String returns the mode name, "normal" for RebootNormal.
func (m RebootMode) String() string {
	if m == RebootNormal {
		return "normal"
	}
	return string(m)
}
