// Package webhooks applies provider notifications to payments and their
// transactions. Each external event is applied at most once.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.nhat.io/otelsql/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"git.sr.ht/~aondrejcak/payout-api/claims"
	"git.sr.ht/~aondrejcak/payout-api/faults"
	"git.sr.ht/~aondrejcak/payout-api/kernel"
	"git.sr.ht/~aondrejcak/payout-api/ledger"
	"git.sr.ht/~aondrejcak/payout-api/models"
	u "git.sr.ht/~aondrejcak/payout-api/utils"
)

// MissingPolicy decides what happens when an event names a transaction the
// ledger does not know.
type MissingPolicy string

const (
	Tolerate MissingPolicy = "tolerate"
	Surface  MissingPolicy = "surface"
)

type Outcome string

const (
	Processed        Outcome = "processed"
	AlreadyProcessed Outcome = "already_processed"
	Ignored          Outcome = "ignored"
)

// Envelope is the provider's delivery body.
type Envelope struct {
	Type string `json:"Type"`
	ID   string `json:"Id"`
	Data Data   `json:"Data"`
}

type Data struct {
	// ID is the external correlation id of the affected transaction.
	ID              string `json:"id"`
	TransactionHash string `json:"transactionHash,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

type Config struct {
	// Secret enables signature verification when set.
	Secret         string
	MissingPayment MissingPolicy
	ClaimTTL       time.Duration
}

type Reconciler struct {
	cfg    Config
	store  *ledger.Store
	claims claims.Claimer
	diag   *kernel.AppDiagnostic
	log    zerolog.Logger
	now    func() time.Time
}

func New(cfg Config, store *ledger.Store, claimer claims.Claimer, diag *kernel.AppDiagnostic, log zerolog.Logger) *Reconciler {
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 30 * time.Second
	}
	if cfg.MissingPayment == "" {
		cfg.MissingPayment = Tolerate
	}
	if claimer == nil {
		claimer = claims.NewMemory()
	}
	return &Reconciler{
		cfg:    cfg,
		store:  store,
		claims: claimer,
		diag:   diag,
		log:    log.With().Str("component", "webhooks").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// effect names the rows an event touched.
type effect struct {
	paymentID *string
	txID      *string
	ignored   bool
}

// Ingest verifies, deduplicates and applies one delivery. An error leaves the
// event unprocessed so the sender's redelivery can retry it.
func (r *Reconciler) Ingest(ctx context.Context, body []byte, signature string) (outcome Outcome, err error) {
	ctx, span := r.diag.Tracer.Start(ctx, "webhook.ingest")
	defer span.End()

	var env Envelope
	defer func() {
		result := string(outcome)
		if err != nil {
			result = faults.KindOf(err).String()
			u.SpanRecord(span, err)
		}
		r.diag.WebhookEvents.Add(ctx, 1, metric.WithAttributes(
			attribute.KeyValue("type", env.Type),
			attribute.KeyValue("outcome", result),
		))
	}()

	if r.cfg.Secret != "" && !kernel.VerifyHmacSha256(r.cfg.Secret, body, signature) {
		return "", faults.ErrInvalidSignature
	}

	if err := json.Unmarshal(body, &env); err != nil {
		return "", faults.Validationf("malformed webhook body: %v", err)
	}
	if env.ID == "" || env.Type == "" {
		return "", faults.Validationf("webhook body requires Id and Type")
	}
	span.SetAttributes(
		attribute.KeyValue("webhook.id", env.ID),
		attribute.KeyValue("webhook.type", env.Type),
	)
	log := r.log.With().Str("event_id", env.ID).Str("type", env.Type).Logger()

	claimKey := "webhook:" + env.ID
	ok, err := r.claims.Claim(ctx, claimKey, r.cfg.ClaimTTL)
	if err != nil {
		return "", faults.Wrap(faults.Unavailable, "ClaimUnavailable", err, "claiming webhook event")
	}
	if !ok {
		return "", faults.With(faults.ErrEventInFlight, "webhook event '%s' is being processed", env.ID)
	}
	defer func() {
		if err := r.claims.Release(context.WithoutCancel(ctx), claimKey); err != nil {
			log.Warn().Err(err).Msg("releasing claim")
		}
	}()

	if existing, found, err := r.store.FindWebhookEvent(ctx, env.ID); err != nil {
		return "", err
	} else if found && existing.Processed {
		log.Debug().Msg("duplicate delivery")
		return AlreadyProcessed, nil
	}

	ev, err := r.store.UpsertWebhookEvent(ctx, env.ID, env.Type, string(body))
	if err != nil {
		return "", err
	}
	if ev.Processed {
		return AlreadyProcessed, nil
	}

	eff, err := r.apply(ctx, ParseKind(env.Type), env.Data, log)
	if err != nil {
		log.Error().Err(err).Msg("webhook handler failed")
		return "", err
	}

	if err := r.store.MarkWebhookProcessed(ctx, ev.ID, eff.paymentID, eff.txID); err != nil {
		if ledger.IsStale(err) {
			return AlreadyProcessed, nil
		}
		return "", err
	}
	if eff.ignored {
		return Ignored, nil
	}
	return Processed, nil
}

func (r *Reconciler) apply(ctx context.Context, kind EventKind, data Data, log zerolog.Logger) (effect, error) {
	ctx, span := r.diag.Tracer.Start(ctx, "webhook.apply."+kind.String(), trace.WithAttributes(
		attribute.KeyValue("webhook.correlation_id", data.ID),
	))
	defer span.End()

	switch kind {
	case PaymentIntentSucceeded:
		return r.settle(ctx, data, log, models.TxConfirmed, payerNone, models.TxPaymentIn)
	case PaymentIntentFailed:
		return r.settle(ctx, data, log, models.TxFailed, payerFail, models.TxPaymentIn)
	case TransferCompleted:
		return r.settle(ctx, data, log, models.TxConfirmed, payerNone)
	case TransferFailed:
		return r.settle(ctx, data, log, models.TxFailed, payerFailIfPayout)
	case PayoutCompleted:
		return r.settle(ctx, data, log, models.TxConfirmed, payerComplete, models.TxPayout)
	case PayoutFailed:
		return r.settle(ctx, data, log, models.TxFailed, payerFail, models.TxPayout)
	case KindUnknown:
		log.Info().Msg("unhandled webhook type")
		return effect{ignored: true}, nil
	default:
		return effect{}, fmt.Errorf("webhook kind %d has no handler", kind)
	}
}

// payerAction is what an event does to the owning payment.
type payerAction uint8

const (
	payerNone payerAction = iota
	payerFail
	payerFailIfPayout
	payerComplete
)

var active = []models.PaymentStatus{models.PaymentPending, models.PaymentProcessing}

func (r *Reconciler) settle(ctx context.Context, data Data, log zerolog.Logger, to models.TransactionStatus, action payerAction, types ...models.TransactionType) (effect, error) {
	if data.ID == "" {
		return r.missing(log, faults.Validationf("webhook data carries no correlation id"))
	}
	tx, err := r.store.FindTransactionByExternalID(ctx, data.ID, types...)
	if err != nil {
		if errors.Is(err, faults.ErrTxNotFound) {
			return r.missing(log, err)
		}
		return effect{}, err
	}
	eff := effect{paymentID: &tx.PaymentID, txID: &tx.ID}
	log = log.With().Str("payment_id", tx.PaymentID).Str("tx_id", tx.ID).Logger()

	err = r.store.SettleTransaction(ctx, tx.ID, to, data.TransactionHash)
	switch {
	case ledger.IsStale(err):
		current, err := r.store.FindTransaction(ctx, tx.ID)
		if err != nil {
			return effect{}, err
		}
		if current.Status != to {
			// The row was settled the other way first; the earlier outcome stands.
			log.Warn().Str("tx_status", string(current.Status)).Str("reported", string(to)).
				Msg("event contradicts settled transaction, payment left as is")
			return eff, nil
		}
		log.Debug().Msg("transaction already settled")
	case err != nil:
		return effect{}, err
	}

	if action == payerFailIfPayout {
		action = payerNone
		if tx.Type == models.TxPayout {
			action = payerFail
		}
	}

	switch action {
	case payerFail:
		reason := data.Reason
		if reason == "" {
			reason = fmt.Sprintf("%s transaction %s reported failed", tx.Type, tx.ID)
		}
		err = r.store.Transition(ctx, tx.PaymentID, active, models.PaymentFailed, map[string]any{"failure_reason": reason})
	case payerComplete:
		err = r.store.Transition(ctx, tx.PaymentID, active, models.PaymentCompleted, map[string]any{
			"destination_amount":     tx.Amount.Sub(tx.FeeAmount),
			"actual_settlement_time": r.now(),
		})
	}
	switch {
	case ledger.IsStale(err):
		log.Debug().Msg("payment already terminal")
	case err != nil:
		return effect{}, err
	case action == payerFail:
		r.finished(ctx, models.PaymentFailed)
	case action == payerComplete:
		r.finished(ctx, models.PaymentCompleted)
	}
	return eff, nil
}

func (r *Reconciler) missing(log zerolog.Logger, cause error) (effect, error) {
	if r.cfg.MissingPayment == Surface {
		return effect{}, faults.Wrap(faults.Internal, faults.CodeUnmatchedEvent, cause, "webhook does not match a transaction")
	}
	log.Warn().Err(cause).Msg("webhook does not match a transaction, ignored")
	return effect{ignored: true}, nil
}

func (r *Reconciler) finished(ctx context.Context, status models.PaymentStatus) {
	r.log.Info().Str("status", string(status)).Msg("payment finished by webhook")
	r.diag.PaymentsFinished.Add(ctx, 1,
		metric.WithAttributes(attribute.KeyValue("status", string(status))),
	)
}
