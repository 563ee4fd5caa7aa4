package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ProtocolRevision is the only wire revision this gateway speaks.
const ProtocolRevision = 1

// Element is the {id, length, data} tuple every IE is built from.
type Element struct {
	ID   uint8
	Data []byte
}

// ProtocolMessage is version(1) | length(2, BE) | body, where body is a
// concatenation of Elements.
type ProtocolMessage struct {
	Elements []Element
}

// ReadProtocolMessage reads exactly one framed message from r.
func ReadProtocolMessage(r io.Reader) (ProtocolMessage, error) {
	var header [3]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return ProtocolMessage{}, fmt.Errorf("wire: read frame header: %w", err)
	}

	revision := header[0]
	if revision != ProtocolRevision {
		return ProtocolMessage{}, ErrUnsupportedProtocolRevision
	}

	length := binary.BigEndian.Uint16(header[1:3])
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return ProtocolMessage{}, fmt.Errorf("wire: read frame body: %w", err)
	}

	cursor := bytes.NewReader(body)
	var elements []Element
	for cursor.Len() > 0 {
		element, err := readElement(cursor)
		if err != nil {
			return ProtocolMessage{}, err
		}
		elements = append(elements, element)
	}

	return ProtocolMessage{Elements: elements}, nil
}

// WriteTo writes the framed message to w.
func (pm ProtocolMessage) WriteTo(w io.Writer) (int64, error) {
	var body bytes.Buffer
	for _, element := range pm.Elements {
		if err := writeElement(&body, element); err != nil {
			return 0, err
		}
	}

	if body.Len() > 0xFFFF {
		return 0, formatErrorf("message body too large: %d bytes", body.Len())
	}

	header := [3]byte{ProtocolRevision}
	binary.BigEndian.PutUint16(header[1:3], uint16(body.Len()))

	n1, err := w.Write(header[:])
	if err != nil {
		return int64(n1), fmt.Errorf("wire: write frame header: %w", err)
	}
	n2, err := w.Write(body.Bytes())
	if err != nil {
		return int64(n1 + n2), fmt.Errorf("wire: write frame body: %w", err)
	}
	return int64(n1 + n2), nil
}

func readElement(r io.Reader) (Element, error) {
	var header [3]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Element{}, fmt.Errorf("wire: read element header: %w", err)
	}

	id := header[0]
	length := binary.BigEndian.Uint16(header[1:3])
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return Element{}, fmt.Errorf("wire: read element data: %w", err)
	}

	return Element{ID: id, Data: data}, nil
}

func writeElement(w io.Writer, e Element) error {
	if len(e.Data) > 0xFFFF {
		return formatErrorf("element 0x%02x too large: %d bytes", e.ID, len(e.Data))
	}

	var header [3]byte
	header[0] = e.ID
	binary.BigEndian.PutUint16(header[1:3], uint16(len(e.Data)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write element header: %w", err)
	}
	if _, err := w.Write(e.Data); err != nil {
		return fmt.Errorf("wire: write element data: %w", err)
	}
	return nil
}
