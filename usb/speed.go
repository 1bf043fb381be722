package usb

// Speed is the bus signaling rate.
type Speed uint8

const (
	LowSpeed  Speed = 0 // 1.5 Mbit/s
	FullSpeed Speed = 1 // 12 Mbit/s
)

func (s Speed) String() string {
	switch s {
	case LowSpeed:
		return "low-speed"
	case FullSpeed:
		return "full-speed"
	default:
		return "unknown"
	}
}
