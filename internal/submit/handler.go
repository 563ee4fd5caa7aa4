// Package submit implements the MT submission HTTP endpoint:
// POST /submit_mt, authenticated per-tenant via a header MAC,
// inserting an mt_message and enqueueing deliver_mt on acceptance.
package submit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rorsat-ltd/kosmos/internal/jobs"
	"github.com/rorsat-ltd/kosmos/internal/mq"
	"github.com/rorsat-ltd/kosmos/internal/store"
)

const maxBodyBytes = 4 * 1024

var imeiPattern = regexp.MustCompile(`^[0-9]{15}$`)

const (
	headerTargetID = "Kosmos-Target-ID"
	headerMAC      = "Kosmos-MAC"
)

// targetStore is the slice of *store.Store this handler needs.
type targetStore interface {
	GetTarget(ctx context.Context, id uuid.UUID) (*store.Target, error)
}

// mtInserter is the slice of *store.Store used to persist accepted
// submissions.
type mtInserter interface {
	InsertMTMessage(ctx context.Context, m store.MTMessage) error
}

// Handler serves POST /submit_mt.
type Handler struct {
	Targets targetStore
	Store   mtInserter
	Queue   mq.Queue
	Log     zerolog.Logger
}

type submitRequest struct {
	IMEI     string `json:"imei"`
	Payload  string `json:"payload"`
	Priority *int   `json:"priority"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	targetIDStr := r.Header.Get(headerTargetID)
	macHeader := r.Header.Get(headerMAC)
	if targetIDStr == "" || macHeader == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	targetID, err := uuid.Parse(targetIDStr)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	target, err := h.Targets.GetTarget(r.Context(), targetID)
	if errors.Is(err, store.ErrNotFound) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if len(body) > maxBodyBytes {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	if !validMAC(macHeader, body, target.HMACKey) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req submitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if len(req.IMEI) != 15 {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if !imeiPattern.MatchString(req.IMEI) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	priority := 0
	if req.Priority != nil {
		priority = *req.Priority
		if priority < 1 || priority > 5 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	id := uuid.New()
	msg := store.MTMessage{
		ID:               id,
		IMEI:             req.IMEI,
		Priority:         uint16(priority),
		Data:             payload,
		ProcessingStatus: store.ProcessingReceived,
		Received:         time.Now().UTC(),
		Target:           targetID,
	}

	if err := h.Store.InsertMTMessage(r.Context(), msg); err != nil {
		h.Log.Error().Err(err).Msg("failed to insert mt message")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	jobBody, err := json.Marshal(struct {
		ID uuid.UUID `json:"id"`
	}{ID: id})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := jobs.Enqueue(r.Context(), h.Queue, mq.KindDeliverMT, jobBody); err != nil {
		h.Log.Error().Err(err).Msg("failed to enqueue deliver_mt")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(id.String()))
}

func validMAC(headerValue string, body, key []byte) bool {
	given, err := base64.StdEncoding.DecodeString(headerValue)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hmac.Equal(given, mac.Sum(nil))
}
