package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"git.sr.ht/~aondrejcak/payout-api/events"
	"git.sr.ht/~aondrejcak/payout-api/faults"
	"git.sr.ht/~aondrejcak/payout-api/ledger"
	"git.sr.ht/~aondrejcak/payout-api/models"
	"git.sr.ht/~aondrejcak/payout-api/settlement"
	u "git.sr.ht/~aondrejcak/payout-api/utils"
)

// errSuperseded stops a pipeline whose payment was finished elsewhere,
// typically by a webhook.
var errSuperseded = errors.New("payment reached a terminal status outside the pipeline")

var active = []models.PaymentStatus{models.PaymentPending, models.PaymentProcessing}

type run struct {
	s   *Service
	p   *models.Payment
	log zerolog.Logger
}

// Process runs the settlement pipeline of one payment. Failures end the
// payment as FAILED and are not returned; only errors that prevent recording
// the outcome are.
func (s *Service) Process(ctx context.Context, paymentID string) error {
	ctx, span := s.diag.Tracer.Start(ctx, "payment.pipeline",
		trace.WithAttributes(attribute.String("payment.id", paymentID)))
	defer span.End()

	log := s.log.With().Str("payment_id", paymentID).Logger()

	p, err := s.store.FindPayment(ctx, paymentID)
	if err != nil {
		return u.SpanErr(span, err)
	}
	if p.Status != models.PaymentPending {
		log.Debug().Str("status", string(p.Status)).Msg("payment not pending, pipeline skipped")
		return nil
	}

	err = s.store.Transition(ctx, p.ID, []models.PaymentStatus{models.PaymentPending}, models.PaymentProcessing, nil)
	if ledger.IsStale(err) {
		log.Debug().Msg("payment left PENDING concurrently, pipeline skipped")
		return nil
	}
	if err != nil {
		return u.SpanErr(span, err)
	}
	p.Status = models.PaymentProcessing
	s.publish(ctx, events.PaymentProcessing, p)

	r := &run{s: s, p: p, log: log}
	err = r.steps(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errSuperseded):
		log.Info().Msg("payment finished outside the pipeline")
		return nil
	case ctx.Err() != nil:
		// The worker was stopped mid-step. The provider outcome is unknown, so
		// the payment stays PROCESSING and its open rows are left to webhooks.
		u.SpanRecord(span, err)
		log.Warn().Err(err).Msg("payment pipeline interrupted, payment left PROCESSING")
		return nil
	}

	u.SpanRecord(span, err)
	log.Error().Err(err).Msg("payment pipeline failed")
	if ferr := r.fail(ctx, err); ferr != nil {
		return u.SpanErrf(span, "recording failure of payment %s: %w", p.ID, ferr)
	}
	return nil
}

func (r *run) steps(ctx context.Context) error {
	cfg := r.s.cfg
	r1 := r.s.rates.Rate(cfg.SourceCurrency, cfg.IntermediateCurrency)
	r2 := r.s.rates.Rate(cfg.IntermediateCurrency, cfg.DestinationCurrency)
	b := cfg.Fees.Price(r.p.SourceAmount, r1, r2, cfg.IntermediateCurrency, cfg.DestinationCurrency)

	if err := r.paymentIn(ctx); err != nil {
		return err
	}

	onramp, err := r.s.settle.Exchange(ctx, cfg.SourceCurrency, cfg.IntermediateCurrency, r.p.SourceAmount)
	if err := r.settled(ctx, models.TxExchangeAToB, b.Onramp, cfg.IntermediateCurrency, b.OnrampFee, onramp, err,
		map[string]string{"from": cfg.SourceCurrency, "to": cfg.IntermediateCurrency, "rate": r1.String()}); err != nil {
		return err
	}

	offramp, err := r.s.settle.Exchange(ctx, cfg.IntermediateCurrency, cfg.DestinationCurrency, b.Onramp.Sub(b.OnrampFee))
	if err := r.settled(ctx, models.TxExchangeBToC, b.Offramp, cfg.DestinationCurrency, b.OfframpFee, offramp, err,
		map[string]string{"from": cfg.IntermediateCurrency, "to": cfg.DestinationCurrency, "rate": r2.String()}); err != nil {
		return err
	}
	if err := r.update(ctx, map[string]any{"destination_amount": b.Payout}); err != nil {
		return err
	}

	vendor, err := r.s.store.FindVendor(ctx, r.p.VendorID)
	if err != nil {
		return err
	}
	if vendor.BankAccount == nil {
		return faults.With(faults.ErrVendorUnavailable, "vendor '%s' has no bank account", vendor.ID)
	}
	dest := settlement.Destination{
		VendorID:      vendor.ID,
		BankName:      vendor.BankAccount.BankName,
		RoutingNumber: vendor.BankAccount.RoutingNumber,
		AccountNumber: vendor.BankAccount.AccountNumberMasked,
		AccountHolder: vendor.BankAccount.AccountHolder,
		Currency:      cfg.DestinationCurrency,
	}
	payout, err := r.s.settle.Payout(ctx, dest, b.Delivered, cfg.DestinationCurrency)
	if err := r.settled(ctx, models.TxPayout, b.Payout, cfg.DestinationCurrency, b.PayoutFee, payout, err,
		map[string]string{"vendorId": vendor.ID, "bankName": dest.BankName}); err != nil {
		return err
	}

	now := r.s.now()
	err = r.s.store.Transition(ctx, r.p.ID, active, models.PaymentCompleted, map[string]any{
		"destination_amount":     b.Delivered,
		"actual_settlement_time": now,
	})
	if ledger.IsStale(err) {
		return errSuperseded
	}
	if err != nil {
		return err
	}
	r.p.Status = models.PaymentCompleted
	r.p.DestinationAmount = b.Delivered
	r.p.ActualSettlementTime = &now
	r.s.finished(ctx, models.PaymentCompleted)
	r.s.publish(ctx, events.PaymentCompleted, r.p)
	r.log.Info().Str("delivered", b.Delivered.String()).Msg("payment completed")
	return nil
}

// paymentIn records the intake of source funds and waits for them to clear.
func (r *run) paymentIn(ctx context.Context) error {
	cfg := r.s.cfg
	intent, err := r.s.settle.CreatePaymentIntent(ctx, r.p.SourceAmount, cfg.SourceCurrency)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("creating payment intent: %w", err)
	}
	if err != nil {
		r.record(ctx, models.TxPaymentIn, models.TxFailed, r.p.SourceAmount, cfg.SourceCurrency, decimal.Zero, settlement.Receipt{}, nil)
		return faults.Upstreamf(err, "creating payment intent")
	}

	tx, err := r.record(ctx, models.TxPaymentIn, models.TxPending, r.p.SourceAmount, cfg.SourceCurrency, decimal.Zero, intent, nil)
	if err != nil {
		return err
	}

	receipt, err := r.s.settle.AwaitPaymentIntent(ctx, intent.ExternalID)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("awaiting payment intent %s: %w", intent.ExternalID, err)
	}
	if err != nil {
		if settleErr := r.s.store.SettleTransaction(ctx, tx.ID, models.TxFailed, ""); settleErr != nil && !ledger.IsStale(settleErr) {
			r.log.Warn().Err(settleErr).Str("tx_id", tx.ID).Msg("could not mark payment intent failed")
		}
		return faults.Upstreamf(err, "awaiting payment intent %s", intent.ExternalID)
	}
	return r.confirm(ctx, tx, receipt.ProofHash)
}

// settled records a step the provider has already executed: a FAILED row
// when callErr is set, else a row that is confirmed right away. Nothing is
// recorded when the call was cut short by ctx.
func (r *run) settled(ctx context.Context, typ models.TransactionType, amount decimal.Decimal, currency string, fee decimal.Decimal, receipt settlement.Receipt, callErr error, meta map[string]string) error {
	if callErr != nil && ctx.Err() != nil {
		return fmt.Errorf("%s step: %w", typ, callErr)
	}
	if callErr != nil {
		r.record(ctx, typ, models.TxFailed, amount, currency, fee, settlement.Receipt{}, meta)
		return faults.Upstreamf(callErr, "%s step", typ)
	}
	tx, err := r.record(ctx, typ, models.TxPending, amount, currency, fee, receipt, meta)
	if err != nil {
		return err
	}
	return r.confirm(ctx, tx, receipt.ProofHash)
}

// confirm marks tx CONFIRMED. A webhook may have settled it first: a
// confirmation is accepted, a failure aborts the pipeline.
func (r *run) confirm(ctx context.Context, tx *models.Transaction, proofHash string) error {
	err := r.s.store.SettleTransaction(ctx, tx.ID, models.TxConfirmed, proofHash)
	if err == nil {
		return r.guard(ctx)
	}
	if !ledger.IsStale(err) {
		return err
	}

	current, err := r.s.store.FindTransaction(ctx, tx.ID)
	if err != nil {
		return err
	}
	if current.Status == models.TxFailed {
		return fmt.Errorf("%s transaction %s was reported failed", tx.Type, tx.ID)
	}
	r.log.Debug().Str("tx_id", tx.ID).Msg("transaction already confirmed")
	return r.guard(ctx)
}

// guard stops the pipeline once the payment is terminal.
func (r *run) guard(ctx context.Context) error {
	p, err := r.s.store.FindPayment(ctx, r.p.ID)
	if err != nil {
		return err
	}
	if p.Status.Terminal() {
		return errSuperseded
	}
	return nil
}

func (r *run) update(ctx context.Context, fields map[string]any) error {
	err := r.s.store.Transition(ctx, r.p.ID, []models.PaymentStatus{models.PaymentProcessing}, models.PaymentProcessing, fields)
	if ledger.IsStale(err) {
		return errSuperseded
	}
	return err
}

func (r *run) record(ctx context.Context, typ models.TransactionType, status models.TransactionStatus, amount decimal.Decimal, currency string, fee decimal.Decimal, receipt settlement.Receipt, meta map[string]string) (*models.Transaction, error) {
	tx := &models.Transaction{
		PaymentID:   r.p.ID,
		Type:        typ,
		Status:      status,
		Amount:      amount,
		Currency:    currency,
		FeeAmount:   fee,
		FeeCurrency: currency,
		ExternalID:  receipt.ExternalID,
	}
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		tx.Metadata = raw
	}
	if err := r.s.store.AppendTransaction(ctx, tx); err != nil {
		r.log.Error().Err(err).Str("type", string(typ)).Msg("recording transaction failed")
		return nil, err
	}
	return tx, nil
}

func (r *run) fail(ctx context.Context, cause error) error {
	reason := cause.Error()
	if len(reason) > 512 {
		reason = reason[:512]
	}
	err := r.s.store.Transition(context.WithoutCancel(ctx), r.p.ID, active, models.PaymentFailed, map[string]any{
		"failure_reason": reason,
	})
	if ledger.IsStale(err) {
		return nil
	}
	if err != nil {
		return err
	}
	r.p.Status = models.PaymentFailed
	r.p.FailureReason = reason
	r.s.finished(ctx, models.PaymentFailed)
	r.s.publish(context.WithoutCancel(ctx), events.PaymentFailed, r.p)
	return nil
}
