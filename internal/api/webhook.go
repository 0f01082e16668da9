package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"releasegate/internal/core"
	"releasegate/internal/metrics"
)

const (
	headerEvent     = "X-GitHub-Event"
	headerDelivery  = "X-GitHub-Delivery"
	headerSignature = "X-Hub-Signature-256"

	maxPayloadBytes = 5 << 20
)

// pushPayload is the subset of a GitHub push payload the gate reads.
type pushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Deleted    bool   `json:"deleted"`
	Repository struct {
		CloneURL string `json:"clone_url"`
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func (p pushPayload) event(delivery string) core.Event {
	return core.Event{
		Ref:        p.Ref,
		Commit:     p.After,
		Repository: p.Repository.CloneURL,
		DeliveryID: delivery,
		Deleted:    p.Deleted,
		ReceivedAt: time.Now().UTC(),
	}
}

// POST /webhooks/push
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		s.reject(w, http.StatusBadRequest, "cannot read body")
		return
	}
	if s.WebhookSecret != "" && !validSignature(s.WebhookSecret, body, r.Header.Get(headerSignature)) {
		s.reject(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	if kind := r.Header.Get(headerEvent); kind != "" && kind != "push" {
		s.accept(w, metrics.EventIgnored, map[string]string{"reason": "event " + kind + " is not a push"})
		return
	}

	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.reject(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	ev := payload.event(r.Header.Get(headerDelivery))
	if err := ev.Validate(); err != nil {
		s.reject(w, http.StatusBadRequest, err.Error())
		return
	}
	log := logger.WithFields(logrus.Fields{"ref": ev.Ref, "commit": ev.Commit, "delivery": ev.DeliveryID})

	if !s.Workflow.Matches(ev) {
		log.Debug("push does not trigger the workflow")
		s.accept(w, metrics.EventIgnored, map[string]string{"reason": "ref does not match the trigger"})
		return
	}

	claimed, err := s.Deduper.Claim(r.Context(), ev.Key())
	if err != nil {
		log.WithError(err).Error("dedupe check failed")
		writeError(w, http.StatusServiceUnavailable, "cannot check delivery")
		return
	}
	if !claimed {
		log.Info("duplicate delivery")
		s.accept(w, metrics.EventDuplicate, nil)
		return
	}

	if err := s.Queue.Push(r.Context(), ev); err != nil {
		log.WithError(err).Error("cannot enqueue event")
		// Unclaim so the redelivery of this push is queued.
		if relErr := s.Deduper.Release(context.WithoutCancel(r.Context()), ev.Key()); relErr != nil {
			log.WithError(relErr).Error("cannot release delivery claim")
		}
		writeError(w, http.StatusServiceUnavailable, "cannot enqueue event")
		return
	}
	log.Info("release queued")
	s.accept(w, metrics.EventQueued, map[string]string{"tag": ev.Tag()})
}

func (s *Server) accept(w http.ResponseWriter, result string, extra map[string]string) {
	s.count(result)
	resp := map[string]string{"status": result}
	for k, v := range extra {
		resp[k] = v
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) reject(w http.ResponseWriter, status int, msg string) {
	s.count(metrics.EventRejected)
	writeError(w, status, msg)
}

func (s *Server) count(result string) {
	if s.Metrics != nil {
		s.Metrics.EventReceived(result)
	}
}

// validSignature checks a "sha256=<hex>" HMAC of body.
func validSignature(secret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
