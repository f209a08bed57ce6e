package client

import "strings"

// Property names reported in the handshake.
const (
	PropSerial   = "ro.serialno"
	PropProduct  = "ro.product.name"
	PropModel    = "ro.product.model"
	PropDevice   = "ro.product.device"
	PropRelease  = "ro.build.version.release"
	PropFeatures = "features"
)

// Banner is the device identity sent with the handshake accept.
type Banner struct {
	Serial   string
	Product  string
	Model    string
	Device   string
	Features []string
}

// ParseBanner extracts the banner from handshake properties.
func ParseBanner(props map[string]string) Banner {
	b := Banner{
		Serial:  props[PropSerial],
		Product: props[PropProduct],
		Model:   props[PropModel],
		Device:  props[PropDevice],
	}
	if f := props[PropFeatures]; f != "" {
		for _, feature := range strings.Split(f, ",") {
			if feature = strings.TrimSpace(feature); feature != "" {
				b.Features = append(b.Features, feature)
			}
		}
	}
	return b
}

// HasFeature reports whether the device advertises feature.
func (b Banner) HasFeature(feature string) bool {
	for _, f := range b.Features {
		if f == feature {
			return true
		}
	}
	return false
}
