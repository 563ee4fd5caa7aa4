package wire

// Information-element ids used by the protocol (§4.1).
const (
	ieMOHeader   uint8 = 0x01
	iePayload    uint8 = 0x02
	ieLocation   uint8 = 0x03
	ieConfirm    uint8 = 0x05
	ieMTHeader   uint8 = 0x41
	ieMTPayload  uint8 = 0x42
	ieMTPriority uint8 = 0x46
	ieMTConfirm  uint8 = 0x44
)
