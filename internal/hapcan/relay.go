package hapcan

// Relay channel states carried in D3 of a relay status frame.
const (
	RelayOff byte = 0x00
	RelayOn  byte = 0xFF
)

// Direct control instruction that switches relay channels off.
const instrRelayOff byte = 0x00

// MaxRelayChannel is the highest channel a direct control mask can address.
const MaxRelayChannel = 8

// RelayStatus decodes a relay status frame. ok is false for any other
// frame type.
func RelayStatus(f Frame) (channel uint8, state byte, ok bool) {
	if f.Type() != TypeRelayStatus {
		return 0, 0, false
	}
	return f.Data(2), f.Data(3), true
}

// ChannelBit returns the direct control mask bit for a 1-based channel.
func ChannelBit(channel uint8) (uint8, bool) {
	if channel < 1 || channel > MaxRelayChannel {
		return 0, false
	}
	return 1 << (channel - 1), true
}

// RelayOffFrame builds a direct control frame that turns off every channel
// in mask on the relay module at target.
func RelayOffFrame(sender, target Address, mask uint8) Frame {
	data := [DataLen]byte{instrRelayOff, mask, target.Node, target.Group, 0x00, 0xFF, 0xFF, 0xFF}
	return New(TypeDirectControl, 0, sender, data)
}

// StatusRequestFrame builds a status request addressed to target.
func StatusRequestFrame(sender, target Address) Frame {
	data := [DataLen]byte{0xFF, 0xFF, target.Node, target.Group, 0xFF, 0xFF, 0xFF, 0xFF}
	return New(TypeStatusRequest, 0, sender, data)
}
