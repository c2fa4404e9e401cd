package okhttp

import (
	"github.com/loulikong/okhttp/internal/pinning"
)

type Pinner = pinning.Pinner
type Pin = pinning.Pin

// NewPinner builds a pin set from pattern -> ["sha256/<base64>", ...].
var NewPinner = pinning.New

// LoadPins parses a YAML pin set.
var LoadPins = pinning.Load

// LoadPinsFile reads a YAML pin set from disk.
var LoadPinsFile = pinning.LoadFile
