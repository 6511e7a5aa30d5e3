package visitors

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/logger"
)

// maxBodyBytes caps a visitor payload.
const maxBodyBytes = 1 << 20

type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "visitor-handler"),
	}
}

// Log handles POST: it records the body and returns the new visitor count.
func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logger.FromContext(ctx).Error("error reading visitor data", "error", err)
		h.writeError(w, http.StatusInternalServerError, FailureMessage)
		return
	}

	receipt, err := h.aggregator.Record(ctx, body, Meta{
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		UserAgent:    r.Header.Get("User-Agent"),
		Path:         r.URL.Path,
	})
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.Message(err, FailureMessage))
		return
	}
	h.writeJSON(w, http.StatusOK, receipt)
}

// Stats handles GET: it reports and returns the current breakdowns.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Summarize())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// HandleMessage records Kafka messages exactly like POST bodies, with the
// topic as the request path. Malformed messages are logged and committed so
// they do not block the partition.
func HandleMessage(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		receipt, err := agg.Record(ctx, msg.Value, Meta{Path: msg.Topic})
		if err != nil {
			agg.logger.Warn("skipping malformed visitor message",
				"topic", msg.Topic,
				"key", string(msg.Key),
				"error", err,
			)
			return nil
		}
		agg.logger.Debug("visitor message recorded", "topic", msg.Topic, "visitor_count", receipt.VisitorCount)
		return nil
	}
}
