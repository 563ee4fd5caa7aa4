package wire

import (
	"encoding/binary"
)

// MT header flag bits (§4.1).
const (
	mtFlagFlushQueue         uint16 = 1
	mtFlagSendRingAlert      uint16 = 2
	mtFlagUpdateSSDLocation  uint16 = 8
	mtFlagHighPriority       uint16 = 16
	mtFlagAssignMTMSN        uint16 = 32
)

// MTFlags is the bitmask carried in the MT header.
type MTFlags struct {
	FlushQueue        bool
	SendRingAlert     bool
	UpdateSSDLocation bool
	HighPriority      bool
	AssignMTMSN       bool
}

func (f MTFlags) encode() uint16 {
	var v uint16
	if f.FlushQueue {
		v |= mtFlagFlushQueue
	}
	if f.SendRingAlert {
		v |= mtFlagSendRingAlert
	}
	if f.UpdateSSDLocation {
		v |= mtFlagUpdateSSDLocation
	}
	if f.HighPriority {
		v |= mtFlagHighPriority
	}
	if f.AssignMTMSN {
		v |= mtFlagAssignMTMSN
	}
	return v
}

func decodeMTFlags(v uint16) MTFlags {
	return MTFlags{
		FlushQueue:        v&mtFlagFlushQueue != 0,
		SendRingAlert:     v&mtFlagSendRingAlert != 0,
		UpdateSSDLocation: v&mtFlagUpdateSSDLocation != 0,
		HighPriority:      v&mtFlagHighPriority != 0,
		AssignMTMSN:       v&mtFlagAssignMTMSN != 0,
	}
}

// MTHeader is the MT header IE (id 0x41), 21 bytes: client_message_id(4)
// | imei(15) | flags(2).
type MTHeader struct {
	ClientMessageID uint32
	IMEI            string
	Flags           MTFlags
}

// Element encodes the MT header. IMEI must be exactly 15 ASCII bytes.
func (h MTHeader) Element() (Element, error) {
	if len(h.IMEI) != 15 {
		return Element{}, formatErrorf("MT header IMEI must be 15 characters, got %d", len(h.IMEI))
	}

	data := make([]byte, 21)
	binary.BigEndian.PutUint32(data[0:4], h.ClientMessageID)
	copy(data[4:19], h.IMEI)
	binary.BigEndian.PutUint16(data[19:21], h.Flags.encode())

	return Element{ID: ieMTHeader, Data: data}, nil
}

// DecodeMTHeader decodes an MT header IE's data, exposed for round-trip
// tests since MT header decode has no other caller inside this package.
func DecodeMTHeader(data []byte) (MTHeader, error) {
	if len(data) != 21 {
		return MTHeader{}, formatErrorf("invalid MT header length: %d", len(data))
	}
	return MTHeader{
		ClientMessageID: binary.BigEndian.Uint32(data[0:4]),
		IMEI:            string(data[4:19]),
		Flags:           decodeMTFlags(binary.BigEndian.Uint16(data[19:21])),
	}, nil
}

// MTPayload is the opaque MT payload IE (id 0x42).
type MTPayload []byte

// Element encodes the payload IE.
func (p MTPayload) Element() Element {
	return Element{ID: ieMTPayload, Data: []byte(p)}
}

// MTPriority is the optional MT priority IE (id 0x46), emitted only when
// priority != 0.
type MTPriority struct {
	Level uint16
}

// Element encodes the priority IE.
func (p MTPriority) Element() Element {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, p.Level)
	return Element{ID: ieMTPriority, Data: data}
}

// BuildMTMessage assembles the outbound protocol message for a single MT
// submission: header, payload, and an optional priority IE.
func BuildMTMessage(clientMessageID uint32, imei string, priority uint16, data []byte) (ProtocolMessage, error) {
	header := MTHeader{
		ClientMessageID: clientMessageID,
		IMEI:            imei,
		Flags:           MTFlags{HighPriority: priority != 0},
	}
	headerElement, err := header.Element()
	if err != nil {
		return ProtocolMessage{}, err
	}

	elements := []Element{headerElement, MTPayload(data).Element()}
	if priority != 0 {
		elements = append(elements, MTPriority{Level: priority}.Element())
	}

	return ProtocolMessage{Elements: elements}, nil
}

// MessageStatusKind classifies the MT confirmation status byte.
type MessageStatusKind int

const (
	StatusSuccessfulNoPayload MessageStatusKind = iota
	StatusSuccessful
	StatusInvalidIMEI
	StatusUnknownIMEI
	StatusTooLarge
	StatusPayloadExpected
	StatusQueueFull
	StatusResourcesUnavailable
	StatusProtocolViolation
	StatusRingAlertsDisabled
	StatusUnattachedIMEI
	StatusIPBlocked
	StatusMTMSNOutOfRange
)

func decodeMessageStatus(v int8) (MessageStatusKind, uint8, error) {
	switch {
	case v == 0:
		return StatusSuccessfulNoPayload, 0, nil
	case v >= 1 && v <= 50:
		return StatusSuccessful, uint8(v), nil
	case v == -1:
		return StatusInvalidIMEI, 0, nil
	case v == -2:
		return StatusUnknownIMEI, 0, nil
	case v == -3:
		return StatusTooLarge, 0, nil
	case v == -4:
		return StatusPayloadExpected, 0, nil
	case v == -5:
		return StatusQueueFull, 0, nil
	case v == -6:
		return StatusResourcesUnavailable, 0, nil
	case v == -7:
		return StatusProtocolViolation, 0, nil
	case v == -8:
		return StatusRingAlertsDisabled, 0, nil
	case v == -9:
		return StatusUnattachedIMEI, 0, nil
	case v == -10:
		return StatusIPBlocked, 0, nil
	case v == -11:
		return StatusMTMSNOutOfRange, 0, nil
	default:
		return 0, 0, formatErrorf("invalid message status: %d", v)
	}
}

// MTConfirmation is the inbound MT confirmation IE (id 0x44), 25 bytes:
// client_message_id(4) | imei(15) | auto_id_reference(4) | reserved(1) |
// status(1). The reserved byte at offset 23 is ignored on read; status
// is at offset 24.
type MTConfirmation struct {
	ClientMessageID uint32
	IMEI            string
	AutoIDReference uint32
	Status          MessageStatusKind
	MTMSN           uint8 // valid only when Status == StatusSuccessful
}

func decodeMTConfirmation(data []byte) (MTConfirmation, error) {
	if len(data) != 25 {
		return MTConfirmation{}, formatErrorf("invalid confirmation length: %d", len(data))
	}

	status, mtmsn, err := decodeMessageStatus(int8(data[24]))
	if err != nil {
		return MTConfirmation{}, err
	}

	return MTConfirmation{
		ClientMessageID: binary.BigEndian.Uint32(data[0:4]),
		IMEI:            string(data[4:19]),
		AutoIDReference: binary.BigEndian.Uint32(data[19:23]),
		Status:          status,
		MTMSN:           mtmsn,
	}, nil
}

// ResponseMessage is the upstream gateway's reply to an MT submission.
// The confirmation IE (0x44) is mandatory; other ids are preserved.
type ResponseMessage struct {
	Confirmation MTConfirmation
	Extra        []Element
}

// ParseResponseMessage decodes a ResponseMessage from a framed protocol
// message.
func ParseResponseMessage(pm ProtocolMessage) (ResponseMessage, error) {
	var (
		confirmation *MTConfirmation
		extra        []Element
	)

	for _, element := range pm.Elements {
		if element.ID == ieMTConfirm {
			if confirmation != nil {
				return ResponseMessage{}, formatErrorf("duplicate confirmation")
			}
			c, err := decodeMTConfirmation(element.Data)
			if err != nil {
				return ResponseMessage{}, err
			}
			confirmation = &c
		} else {
			extra = append(extra, element)
		}
	}

	if confirmation == nil {
		return ResponseMessage{}, formatErrorf("missing confirmation")
	}

	return ResponseMessage{Confirmation: *confirmation, Extra: extra}, nil
}
