// Package store is the Postgres-backed data access layer for targets,
// devices, and MO/MT messages. It uses database/sql with
// github.com/lib/pq directly, the same driver and raw-SQL style the
// monitoring pipeline this gateway's structure is modeled on uses for
// its own session/transaction tables.
package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// SessionStatus mirrors the wire session status codes as the Postgres
// enum value stored in mo_messages.session_status.
type SessionStatus string

const (
	SessionStatusSuccessful                     SessionStatus = "successful"
	SessionStatusSuccessfulTooLarge             SessionStatus = "successful_too_large"
	SessionStatusSuccessfulUnacceptableLocation SessionStatus = "successful_unacceptable_location"
	SessionStatusTimeout                        SessionStatus = "timeout"
	SessionStatusTooLarge                       SessionStatus = "too_large"
	SessionStatusRFLinkLost                     SessionStatus = "rf_link_lost"
	SessionStatusProtocolAnomaly                SessionStatus = "protocol_anomaly"
	SessionStatusIMEIBlocked                    SessionStatus = "imei_blocked"
)

// ProcessingStatus is the shared lifecycle enum for both message tables.
type ProcessingStatus string

const (
	ProcessingReceived ProcessingStatus = "received"
	ProcessingDone      ProcessingStatus = "done"
	ProcessingFailed    ProcessingStatus = "failed"
)

// MessageStatus is the MT delivery outcome enum.
type MessageStatus string

const (
	MessageStatusDelivered            MessageStatus = "delivered"
	MessageStatusInvalidImei          MessageStatus = "invalid_imei"
	MessageStatusPayloadSizeExceeded  MessageStatus = "payload_size_exceeded"
	MessageStatusMessageQueueFull     MessageStatus = "message_queue_full"
	MessageStatusResourcesUnavailable MessageStatus = "resources_unavailable"
)

// Target is a tenant: an HMAC key and the webhook endpoint it owns.
type Target struct {
	ID       uuid.UUID
	HMACKey  []byte
	Endpoint string
}

// Device maps an IMEI to the target that owns it.
type Device struct {
	ID     uuid.UUID
	IMEI   string
	Target uuid.UUID
}

// MOMessage is one row of mo_messages. Location fields are present iff
// all three are non-nil.
type MOMessage struct {
	ID               uuid.UUID
	CDRReference     uint32
	IMEI             string
	SessionStatus    SessionStatus
	MOMSN            uint16
	MTMSN            uint16
	TimeOfSession    time.Time
	Latitude         *float32
	Longitude        *float32
	CEPRadius        *uint32
	Data             []byte
	ProcessingStatus ProcessingStatus
	Received         time.Time
}

// MTMessage is one row of mt_messages.
type MTMessage struct {
	ID               uuid.UUID
	IMEI             string
	Priority         uint16
	Data             []byte
	MessageStatus    *MessageStatus
	ProcessingStatus ProcessingStatus
	Received         time.Time
	Target           uuid.UUID
}

// nullFloat32 converts a nullable Postgres real into *float32.
func nullFloat32(v sql.NullFloat64) *float32 {
	if !v.Valid {
		return nil
	}
	f := float32(v.Float64)
	return &f
}

func toNullFloat64(v *float32) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: float64(*v), Valid: true}
}
