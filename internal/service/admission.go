package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/heartapi/heartgate/internal/model"
	"github.com/heartapi/heartgate/internal/mq"
	"github.com/heartapi/heartgate/internal/pkg/apperrors"
	"github.com/heartapi/heartgate/internal/pkg/logger"
	"github.com/heartapi/heartgate/internal/pkg/metrics"
	"github.com/heartapi/heartgate/internal/repository"
)

// InvokeInput is an admitted, authenticated request ready for metering and
// forwarding. Body is the raw request payload used for signing.
type InvokeInput struct {
	Credential *model.Credential
	Path       string
	Method     string
	Body       string
}

// InvokeOutcome is the upstream response to relay back to the caller.
type InvokeOutcome struct {
	Status      int
	ContentType string
	Body        []byte
}

// AdmissionService runs the metered half of the pipeline: route resolution,
// quota charge, upstream forwarding, and compensation publishing when the
// forwarded call does not succeed. Each charge gets a unique charge id so the
// compensation consumer can reverse it at most once.
type AdmissionService struct {
	registry  InterfaceRegistry
	ledger    QuotaLedger
	forwarder Forwarder
	publisher mq.Publisher
	compQueue string
}

func NewAdmissionService(registry InterfaceRegistry, ledger QuotaLedger, forwarder Forwarder, publisher mq.Publisher, compQueue string) *AdmissionService {
	return &AdmissionService{
		registry:  registry,
		ledger:    ledger,
		forwarder: forwarder,
		publisher: publisher,
		compQueue: compQueue,
	}
}

// Invoke charges and forwards one request. A non-2xx upstream status or a
// transport failure triggers a compensation publish but never re-runs the
// upstream call; the upstream response is relayed verbatim when one exists.
func (s *AdmissionService) Invoke(ctx context.Context, in InvokeInput) (*InvokeOutcome, error) {
	start := time.Now()

	info, err := s.registry.Resolve(ctx, in.Path, in.Method)
	if err != nil {
		if errors.Is(err, repository.ErrInterfaceNotFound) {
			metrics.AdmissionTotal.WithLabelValues("unknown_interface").Inc()
			return nil, apperrors.New(apperrors.ErrUnknownInterface,
				fmt.Sprintf("no interface registered for %s %s", in.Method, in.Path), nil)
		}
		return nil, apperrors.Wrap(err, "resolve interface")
	}

	userID := in.Credential.UserID
	if err := s.ledger.TryConsume(ctx, userID, info.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrQuotaExhausted), errors.Is(err, repository.ErrQuotaNotFound):
			metrics.AdmissionTotal.WithLabelValues("quota_exhausted").Inc()
			return nil, apperrors.New(apperrors.ErrQuotaExhausted, "invocation quota exhausted", err)
		default:
			return nil, apperrors.Wrap(err, "charge quota")
		}
	}
	chargeID := uuid.NewString()

	res, err := s.forwarder.Forward(ctx, info.Host, info.Path, in.Method, in.Body)
	if err != nil {
		s.publishCompensation(ctx, chargeID, userID, info.ID)
		metrics.AdmissionTotal.WithLabelValues("upstream_error").Inc()
		return nil, apperrors.New(apperrors.ErrUpstream, "upstream call failed", err)
	}
	if res.Status < 200 || res.Status >= 300 {
		s.publishCompensation(ctx, chargeID, userID, info.ID)
		metrics.AdmissionTotal.WithLabelValues("upstream_rejected").Inc()
	} else {
		metrics.AdmissionTotal.WithLabelValues("ok").Inc()
	}
	metrics.LatencyBucket.WithLabelValues(info.Path).Observe(time.Since(start).Seconds())

	return &InvokeOutcome{
		Status:      res.Status,
		ContentType: res.ContentType,
		Body:        res.Body,
	}, nil
}

// publishCompensation hands the charge reversal to the broker. A publish
// failure is logged but does not change the caller-visible outcome; the
// ledger stays over-charged until an operator intervenes.
func (s *AdmissionService) publishCompensation(ctx context.Context, chargeID string, userID, interfaceID int64) {
	msg := model.CompensationMessage{
		ChargeID:    chargeID,
		UserID:      userID,
		InterfaceID: interfaceID,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		logger.Get().Error("marshal compensation message", "error", err, "charge_id", chargeID)
		return
	}
	if err := s.publisher.Publish(ctx, s.compQueue, body); err != nil {
		logger.Get().Error("publish compensation message",
			"error", err, "charge_id", chargeID, "user_id", userID, "interface_id", interfaceID)
		return
	}
	metrics.CompensationPublished.Inc()
}
