package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/papergen/internal/api/dto"
	"github.com/cuongbtq/papergen/internal/domain"
	"github.com/cuongbtq/papergen/internal/gateway"
	"github.com/cuongbtq/papergen/shared/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// HeaderStatus carries the HTTP-equivalent status of a reply
	HeaderStatus = "status"
	// HeaderJobID names the job that produced a successful reply
	HeaderJobID = "job_id"
)

// processDelivery answers one request and settles it. Nothing is requeued:
// a failed generation is reported to the requester, not retried.
func (w *Worker) processDelivery(ctx context.Context, d amqp.Delivery, logger *slog.Logger) {
	if d.ReplyTo == "" {
		logger.Warn("Rejecting request without reply_to")
		if err := d.Nack(false, false); err != nil {
			logger.Error("Failed to NACK message", slog.Any("error", err))
		}
		return
	}

	status, body, headers := w.generate(ctx, d.Body, logger)

	payload, err := json.Marshal(body)
	if err != nil {
		logger.Error("Failed to encode reply", slog.Any("error", err))
		if err := d.Nack(false, false); err != nil {
			logger.Error("Failed to NACK message", slog.Any("error", err))
		}
		return
	}

	headers[HeaderStatus] = int32(status)

	// a canceled job still gets its reply
	replyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.replyTimeout)
	defer cancel()

	err = w.publisher.PublishReply(replyCtx, rabbitmq.Reply{
		To:            d.ReplyTo,
		CorrelationID: d.CorrelationId,
		ContentType:   "application/json",
		Headers:       headers,
		Body:          payload,
	})
	if err != nil {
		logger.Error("Failed to publish reply",
			slog.String("reply_to", d.ReplyTo),
			slog.Any("error", err),
		)
		if err := d.Nack(false, false); err != nil {
			logger.Error("Failed to NACK message", slog.Any("error", err))
		}
		return
	}

	if err := d.Ack(false); err != nil {
		logger.Error("Failed to ACK message", slog.Any("error", err))
		return
	}

	logger.Info("Request answered", slog.Int("status", status))
}

// generate decodes the request body and runs it through the gateway
func (w *Worker) generate(ctx context.Context, body []byte, logger *slog.Logger) (int, any, amqp.Table) {
	headers := amqp.Table{}

	var req dto.GenerateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		logger.Info("Malformed request body", slog.Any("error", err))
		return failure(domain.NewValidationError("invalid request body"), headers)
	}

	items, err := w.generator.Limits().DecodeBase64(req.Files)
	if err != nil {
		return failure(err, headers)
	}

	result, err := w.generator.Generate(ctx, items)
	if err != nil {
		return failure(err, headers)
	}

	headers[HeaderJobID] = result.JobID
	return http.StatusOK, dto.GenerateResponse{
		JobID: result.JobID,
		PDF:   base64.StdEncoding.EncodeToString(result.Data),
	}, headers
}

func failure(err error, headers amqp.Table) (int, any, amqp.Table) {
	f := gateway.DescribeFailure(err)
	return f.Status, dto.ErrorResponse{Error: f.Message}, headers
}
