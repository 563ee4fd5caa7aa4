package worker

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"

	"github.com/rorsat-ltd/kosmos/internal/store"
)

// moWebhookPayload is the "mo_message" outbound webhook body.
type moWebhookPayload struct {
	Type                string               `json:"type"`
	ID                  uuid.UUID            `json:"id"`
	Header              moWebhookHeader      `json:"header"`
	LocationInformation *moWebhookLocation   `json:"location_information"`
	Payload             *string              `json:"payload"`
}

type moWebhookHeader struct {
	IMEI          string    `json:"imei"`
	CDRReference  uint32    `json:"cdr_reference"`
	SessionStatus string    `json:"session_status"`
	MOMSN         uint16    `json:"mo_msn"`
	MTMSN         uint16    `json:"mt_msn"`
	TimeOfSession time.Time `json:"time_of_session"`
}

type moWebhookLocation struct {
	Latitude  float32 `json:"latitude"`
	Longitude float32 `json:"longitude"`
	CEPRadius uint32  `json:"cep_radius"`
}

// sessionStatusWireName maps the three deliverable session statuses to
// their outbound webhook names, distinct from the store's internal
// enum strings.
func sessionStatusWireName(s store.SessionStatus) string {
	switch s {
	case store.SessionStatusSuccessful:
		return "normal"
	case store.SessionStatusSuccessfulTooLarge:
		return "too_large"
	case store.SessionStatusSuccessfulUnacceptableLocation:
		return "unacceptable_location"
	default:
		return string(s)
	}
}

func buildMOPayload(m *store.MOMessage) moWebhookPayload {
	payload := moWebhookPayload{
		Type: "mo_message",
		ID:   m.ID,
		Header: moWebhookHeader{
			IMEI:          m.IMEI,
			CDRReference:  m.CDRReference,
			SessionStatus: sessionStatusWireName(m.SessionStatus),
			MOMSN:         m.MOMSN,
			MTMSN:         m.MTMSN,
			TimeOfSession: m.TimeOfSession,
		},
	}

	if m.Latitude != nil && m.Longitude != nil && m.CEPRadius != nil {
		payload.LocationInformation = &moWebhookLocation{
			Latitude:  *m.Latitude,
			Longitude: *m.Longitude,
			CEPRadius: *m.CEPRadius,
		}
	}

	if m.Data != nil {
		encoded := base64.StdEncoding.EncodeToString(m.Data)
		payload.Payload = &encoded
	}

	return payload
}

// mtStatusWebhookPayload is the "mt_message_status" outbound webhook
// body.
type mtStatusWebhookPayload struct {
	Type   string `json:"type"`
	ID     uuid.UUID `json:"id"`
	Status string `json:"status"`
}

func buildMTStatusPayload(m *store.MTMessage) mtStatusWebhookPayload {
	return mtStatusWebhookPayload{
		Type:   "mt_message_status",
		ID:     m.ID,
		Status: string(*m.MessageStatus),
	}
}
