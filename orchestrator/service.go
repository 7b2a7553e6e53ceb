// Package orchestrator drives a payment from initiation through the
// conversion steps to a terminal status.
package orchestrator

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.nhat.io/otelsql/attribute"
	"go.opentelemetry.io/otel/metric"

	"git.sr.ht/~aondrejcak/payout-api/events"
	"git.sr.ht/~aondrejcak/payout-api/faults"
	"git.sr.ht/~aondrejcak/payout-api/kernel"
	"git.sr.ht/~aondrejcak/payout-api/ledger"
	"git.sr.ht/~aondrejcak/payout-api/models"
	"git.sr.ht/~aondrejcak/payout-api/rates"
	"git.sr.ht/~aondrejcak/payout-api/settlement"
	"git.sr.ht/~aondrejcak/payout-api/workqueue"
)

type Config struct {
	SourceCurrency       string
	IntermediateCurrency string
	DestinationCurrency  string

	MaxAmount     decimal.Decimal
	SettlementSLA time.Duration
	Fees          FeeSchedule
}

func ConfigFrom(art *kernel.AppRuntime) Config {
	return Config{
		SourceCurrency:       art.SourceCurrency,
		IntermediateCurrency: art.IntermediateCurrency,
		DestinationCurrency:  art.DestinationCurrency,
		MaxAmount:            art.MaxPaymentAmount,
		SettlementSLA:        art.SettlementSLA,
		Fees: FeeSchedule{
			OnrampBps:  art.FeeOnrampBps,
			OfframpBps: art.FeeOfframpBps,
			PayoutBps:  art.FeePayoutBps,
		},
	}
}

type Deps struct {
	Store      *ledger.Store
	Rates      rates.Provider
	Settlement settlement.Provider
	Pool       *workqueue.Pool
	Events     events.Publisher
	Diagnostic *kernel.AppDiagnostic
	Logger     zerolog.Logger
}

type Service struct {
	cfg    Config
	store  *ledger.Store
	rates  rates.Provider
	settle settlement.Provider
	pool   *workqueue.Pool
	events events.Publisher
	diag   *kernel.AppDiagnostic
	log    zerolog.Logger

	now func() time.Time
}

func New(cfg Config, deps Deps) *Service {
	pub := deps.Events
	if pub == nil {
		pub = events.NewLogPublisher(deps.Logger)
	}
	return &Service{
		cfg:    cfg,
		store:  deps.Store,
		rates:  deps.Rates,
		settle: deps.Settlement,
		pool:   deps.Pool,
		events: pub,
		diag:   deps.Diagnostic,
		log:    deps.Logger.With().Str("component", "orchestrator").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type InitiateRequest struct {
	VendorID          string          `json:"vendorId"`
	Amount            decimal.Decimal `json:"amount"`
	CustomerReference string          `json:"customerReference"`
	Description       string          `json:"description"`
	IdempotencyKey    string          `json:"idempotencyKey"`
}

type InitiateResult struct {
	Payment        *models.Payment
	IdempotencyKey string
	// Created is false when the idempotency key matched an existing payment.
	Created bool
}

func (s *Service) validate(req *InitiateRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.VendorID, validation.Required),
		validation.Field(&req.Amount, validation.By(func(any) error {
			if !req.Amount.IsPositive() {
				return errors.New("must be greater than 0")
			}
			if req.Amount.GreaterThan(s.cfg.MaxAmount) {
				return errors.New("must not exceed " + s.cfg.MaxAmount.String())
			}
			if req.Amount.Exponent() < -Scale(s.cfg.SourceCurrency) {
				return errors.New("has too many decimal places")
			}
			return nil
		})),
		validation.Field(&req.IdempotencyKey, is.UUID),
		validation.Field(&req.CustomerReference, validation.Length(0, 255)),
		validation.Field(&req.Description, validation.Length(0, 1024)),
	)
	if err != nil {
		return faults.Validationf("%v", err)
	}
	return nil
}

// Initiate records a PENDING payment and schedules its pipeline. A request
// whose idempotency key is already known returns the stored payment as is.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = kernel.IdempotencyKey()
	}

	if existing, found, err := s.store.FindPaymentByIdempotencyKey(ctx, req.IdempotencyKey); err != nil {
		return nil, err
	} else if found {
		s.log.Debug().Str("payment_id", existing.ID).Msg("idempotent replay")
		return &InitiateResult{Payment: existing, IdempotencyKey: req.IdempotencyKey}, nil
	}

	vendor, err := s.store.FindVendor(ctx, req.VendorID)
	if err != nil {
		if errors.Is(err, faults.ErrVendorNotFound) {
			return nil, faults.With(faults.ErrVendorUnavailable, "vendor '%s' does not exist", req.VendorID)
		}
		return nil, err
	}
	if !vendor.Payable() {
		return nil, faults.With(faults.ErrVendorUnavailable,
			"vendor '%s' cannot receive payouts (status %s)", vendor.ID, vendor.Status)
	}

	rate := rates.Compose(s.rates, s.cfg.SourceCurrency, s.cfg.IntermediateCurrency, s.cfg.DestinationCurrency)
	expected := s.now().Add(s.cfg.SettlementSLA)
	p := &models.Payment{
		ID:                     ledger.NewID(),
		IdempotencyKey:         req.IdempotencyKey,
		VendorID:               vendor.ID,
		SourceAmount:           req.Amount,
		SourceCurrency:         s.cfg.SourceCurrency,
		DestinationAmount:      Round(req.Amount.Mul(rate), s.cfg.DestinationCurrency),
		DestinationCurrency:    s.cfg.DestinationCurrency,
		ExchangeRate:           rate,
		Status:                 models.PaymentPending,
		CustomerReference:      req.CustomerReference,
		Description:            req.Description,
		ExpectedSettlementTime: &expected,
	}

	stored, created, err := s.store.CreatePayment(ctx, p)
	if err != nil {
		return nil, err
	}
	if !created {
		return &InitiateResult{Payment: stored, IdempotencyKey: req.IdempotencyKey}, nil
	}

	s.diag.PaymentsInitiated.Add(ctx, 1)
	s.publish(ctx, events.PaymentCreated, stored)
	s.schedule(stored.ID)

	return &InitiateResult{Payment: stored, IdempotencyKey: req.IdempotencyKey, Created: true}, nil
}

// schedule hands the pipeline to the pool. A rejected submission leaves the
// payment PENDING for ResumePending to pick up.
func (s *Service) schedule(paymentID string) bool {
	err := s.pool.Submit(paymentID, func(ctx context.Context) error {
		return s.Process(ctx, paymentID)
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, workqueue.ErrDuplicateKey):
		return false
	default:
		s.log.Warn().Err(err).Str("payment_id", paymentID).Msg("pipeline not scheduled")
		return false
	}
}

// ResumePending schedules pipelines for payments left PENDING, e.g. by a
// restart between creation and pickup.
func (s *Service) ResumePending(ctx context.Context) (int, error) {
	ids, err := s.store.PaymentIDsWithStatus(ctx, models.PaymentPending)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if s.schedule(id) {
			n++
		}
	}
	if n > 0 {
		s.log.Info().Int("count", n).Msg("resumed pending payments")
	}
	return n, nil
}

type VendorSummary struct {
	ID     string              `json:"id"`
	Name   string              `json:"name"`
	Email  string              `json:"email"`
	Status models.VendorStatus `json:"status"`
}

type StatusView struct {
	Payment      *models.Payment
	Transactions []models.Transaction
	Vendor       VendorSummary
}

func (s *Service) GetStatus(ctx context.Context, paymentID string) (*StatusView, error) {
	p, err := s.store.FindPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	v, err := s.store.FindVendor(ctx, p.VendorID)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		Payment:      p,
		Transactions: txs,
		Vendor:       VendorSummary{ID: v.ID, Name: v.Name, Email: v.Email, Status: v.Status},
	}, nil
}

func (s *Service) publish(ctx context.Context, typ events.Type, p *models.Payment) {
	ev := events.Event{
		ID:         ledger.NewID(),
		Type:       typ,
		PaymentID:  p.ID,
		Status:     string(p.Status),
		OccurredAt: s.now(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("payment_id", p.ID).Str("type", string(typ)).Msg("payment event not delivered")
	}
}

func (s *Service) finished(ctx context.Context, status models.PaymentStatus) {
	s.diag.PaymentsFinished.Add(ctx, 1,
		metric.WithAttributes(attribute.KeyValue("status", string(status))),
	)
}
