package wire

import (
	"encoding/binary"
	"time"
)

// SessionStatus is the MO header's session status byte (offset 19).
type SessionStatus uint8

const (
	SessionSuccessful                     SessionStatus = 0
	SessionSuccessfulTooLarge             SessionStatus = 1
	SessionSuccessfulUnacceptableLocation SessionStatus = 2
	SessionTimeout                        SessionStatus = 10
	SessionTooLarge                       SessionStatus = 12
	SessionRFLinkLost                     SessionStatus = 13
	SessionProtocolAnomaly                SessionStatus = 14
	SessionIMEIBlocked                    SessionStatus = 15
)

// Successful reports whether the session status is one of the three
// "successful" codes process_mo treats as forwardable (§4.4 step 2).
func (s SessionStatus) Successful() bool {
	switch s {
	case SessionSuccessful, SessionSuccessfulTooLarge, SessionSuccessfulUnacceptableLocation:
		return true
	default:
		return false
	}
}

func parseSessionStatus(b byte) (SessionStatus, error) {
	switch SessionStatus(b) {
	case SessionSuccessful, SessionSuccessfulTooLarge, SessionSuccessfulUnacceptableLocation,
		SessionTimeout, SessionTooLarge, SessionRFLinkLost, SessionProtocolAnomaly, SessionIMEIBlocked:
		return SessionStatus(b), nil
	default:
		return 0, formatErrorf("invalid session status code: %d", b)
	}
}

// MOHeader is the mandatory MO header IE (id 0x01), 28 bytes on the wire.
type MOHeader struct {
	CDRReference  uint32
	IMEI          string
	SessionStatus SessionStatus
	MOMSN         uint16
	MTMSN         uint16
	TimeOfSession time.Time
}

func decodeMOHeader(data []byte) (MOHeader, error) {
	if len(data) != 28 {
		return MOHeader{}, formatErrorf("invalid MO header length: %d", len(data))
	}

	status, err := parseSessionStatus(data[19])
	if err != nil {
		return MOHeader{}, err
	}

	epoch := binary.BigEndian.Uint32(data[24:28])
	t := time.Unix(int64(epoch), 0).UTC()

	return MOHeader{
		CDRReference:  binary.BigEndian.Uint32(data[0:4]),
		IMEI:          string(data[4:19]),
		SessionStatus: status,
		MOMSN:         binary.BigEndian.Uint16(data[20:22]),
		MTMSN:         binary.BigEndian.Uint16(data[22:24]),
		TimeOfSession: t,
	}, nil
}

// LocationInformation is the optional location IE (id 0x03), 11 bytes.
type LocationInformation struct {
	Latitude  float32
	Longitude float32
	CEPRadius uint32
}

func decodeLocationInformation(data []byte) (LocationInformation, error) {
	if len(data) != 11 {
		return LocationInformation{}, formatErrorf("invalid location information length: %d", len(data))
	}

	formatByte := data[0]
	formatCode := (formatByte & 0b00001100) >> 2
	if formatCode != 0 {
		return LocationInformation{}, formatErrorf("unsupported location format code: %d", formatCode)
	}

	northSouth := (formatByte&0b00000010)>>1 != 0
	eastWest := formatByte&0b00000001 != 0

	latitude := float32(data[1])
	latitude += float32(binary.BigEndian.Uint16(data[2:4])) / 60000
	longitude := float32(data[4])
	longitude += float32(binary.BigEndian.Uint16(data[5:7])) / 60000

	if northSouth {
		latitude *= -1
	}
	if eastWest {
		longitude *= -1
	}

	return LocationInformation{
		Latitude:  latitude,
		Longitude: longitude,
		CEPRadius: binary.BigEndian.Uint32(data[7:11]),
	}, nil
}

// MOConfirmation is the response IE (id 0x05) always sent back to the
// upstream operator, whether or not decode succeeded.
type MOConfirmation struct {
	Accepted bool
}

// Element encodes the confirmation as a single-byte IE.
func (c MOConfirmation) Element() Element {
	v := byte(0x00)
	if c.Accepted {
		v = 0x01
	}
	return Element{ID: ieConfirm, Data: []byte{v}}
}

// ConfirmationMessage wraps a MOConfirmation in a full protocol frame,
// ready to write back to the peer.
func ConfirmationMessage(accepted bool) ProtocolMessage {
	return ProtocolMessage{Elements: []Element{MOConfirmation{Accepted: accepted}.Element()}}
}

// MOMessage is a fully decoded MO protocol message (§4.1).
type MOMessage struct {
	Header   MOHeader
	Payload  []byte
	Location *LocationInformation
	Extra    []Element
}

// ParseMOMessage decodes an MO message from a framed protocol message.
// The header IE is mandatory; payload and location are each optional
// and may appear at most once. Unknown IE ids are preserved in Extra.
func ParseMOMessage(pm ProtocolMessage) (MOMessage, error) {
	var (
		header     *MOHeader
		payload    []byte
		location   *LocationInformation
		havePayload, haveLocation bool
		extra      []Element
	)

	for _, element := range pm.Elements {
		switch element.ID {
		case ieMOHeader:
			if header != nil {
				return MOMessage{}, formatErrorf("duplicate header")
			}
			h, err := decodeMOHeader(element.Data)
			if err != nil {
				return MOMessage{}, err
			}
			header = &h
		case iePayload:
			if havePayload {
				return MOMessage{}, formatErrorf("duplicate payload")
			}
			havePayload = true
			if len(element.Data) > 1960 {
				return MOMessage{}, formatErrorf("payload too large: %d bytes", len(element.Data))
			}
			payload = element.Data
		case ieLocation:
			if haveLocation {
				return MOMessage{}, formatErrorf("duplicate location information")
			}
			haveLocation = true
			l, err := decodeLocationInformation(element.Data)
			if err != nil {
				return MOMessage{}, err
			}
			location = &l
		default:
			extra = append(extra, element)
		}
	}

	if header == nil {
		return MOMessage{}, formatErrorf("missing header")
	}

	return MOMessage{
		Header:   *header,
		Payload:  payload,
		Location: location,
		Extra:    extra,
	}, nil
}
