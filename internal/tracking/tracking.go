// Package tracking implements the open/click tracking endpoints (C9,
// spec.md §4.9), grounded on the teacher's internal/mailing/tracking.go
// (HandleOpen/HandleClick shape, transparent-pixel response) and
// internal/api/mailing_tracking.go (chi route params, always-serve-the-pixel
// error handling), adapted to the module's tracking_id/signature scheme
// from the teacher's own base64(org|campaign|subscriber|email)+HMAC-SHA256
// encoding.
package tracking

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/nuntius/internal/pkg/logger"
	"github.com/ignite/nuntius/internal/render"
	"github.com/ignite/nuntius/internal/repository"
)

// pixelGIF is a 1x1 transparent GIF, served on every open-tracking request
// regardless of whether the tracking id resolved (so a broken pixel never
// shows in a mail client).
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Handler serves the tracking endpoints for one mounted prefix.
type Handler struct {
	records   repository.SendRecordRepository
	campaigns repository.CampaignRepository
	log       *logger.Logger
}

// New builds a tracking Handler.
func New(records repository.SendRecordRepository, campaigns repository.CampaignRepository) *Handler {
	return &Handler{records: records, campaigns: campaigns, log: logger.With("tracking")}
}

// Routes returns the chi router to mount at config.TrackingConfig.Mount.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/open/{tracking_id}", h.handleOpen)
	r.Get("/link/{tracking_id}/{signature}/*", h.handleClick)
	return r
}

// handleOpen records an open event and always serves the tracking pixel,
// even when the tracking id is unknown or stale, so mail clients never see
// a broken image (spec.md §4.9, teacher's serveTrackingPixel-on-any-error
// pattern).
func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "tracking_id")
	record, err := h.records.GetByTrackingID(r.Context(), trackingID)
	if err != nil {
		h.log.Debug("open: unknown tracking id", "tracking_id", trackingID)
	} else if err := h.records.IncrementOpenCount(r.Context(), record.ID); err != nil {
		h.log.Warn("open: increment failed", "send_record_id", record.ID, "err", err.Error())
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

// handleClick verifies the link signature, records a click, and redirects
// to the original target (spec.md §4.9). An invalid tracking id or
// signature fails the request rather than silently redirecting, since
// there's no safe default destination.
func (h *Handler) handleClick(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trackingID := chi.URLParam(r, "tracking_id")
	signature := chi.URLParam(r, "signature")

	target, err := url.QueryUnescape(chi.URLParam(r, "*"))
	if err != nil {
		http.Error(w, "invalid tracking link", http.StatusBadRequest)
		return
	}

	record, err := h.records.GetByTrackingID(ctx, trackingID)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	campaign, err := h.campaigns.Get(ctx, record.CampaignID)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if !render.VerifyLink(campaign.SignatureKey, target, signature) {
		http.Error(w, "invalid tracking signature", http.StatusForbidden)
		return
	}

	if err := h.records.IncrementClickCount(ctx, record.ID); err != nil {
		h.log.Warn("click: increment failed", "send_record_id", record.ID, "err", err.Error())
	}

	http.Redirect(w, r, render.AugmentRedirectURL(target, campaign.UTMName), http.StatusFound)
}
