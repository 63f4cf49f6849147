package promotion

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wassimD28/store-go/internal/domain/product"
)

// ApplyRequest selects a promotion for a cart, by ID, by coupon code, or both.
// When both are given the code must unlock the promotion with that ID.
type ApplyRequest struct {
	StoreID     string
	Cart        []CartItem
	PromotionID string
	CouponCode  string
}

// PreviewRequest asks which promotions could apply to a cart. Automatic
// promotions are always considered; CouponCode adds the promotion it unlocks.
type PreviewRequest struct {
	StoreID    string
	Cart       []CartItem
	CouponCode string
}

// Quote is one entry of a cart preview. Outcome is set only when the
// promotion is eligible; nothing is committed.
type Quote struct {
	Eligibility EligibilityResult
	Outcome     *Outcome
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets where committed applications are announced.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithPublishTimeout bounds how long a commit waits for its event to be
// published. The commit itself is never undone by a failed publish.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.publishTimeout = timeout
		}
	}
}

// WithTelemetry sets the tracer and meter providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.tracerProvider = tp
		s.meterProvider = mp
	}
}

// WithPreviewConcurrency bounds how many promotions a preview calculates at once.
func WithPreviewConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.previewConcurrency = n
		}
	}
}

// Service resolves promotions, evaluates and calculates them against carts,
// and commits applications.
type Service struct {
	promotions Repository
	catalog    product.Repository
	publisher  Publisher
	lg         *zap.Logger
	now        func() time.Time

	previewConcurrency int
	publishTimeout     time.Duration
	tracerProvider     trace.TracerProvider
	meterProvider      metric.MeterProvider
	tracer             trace.Tracer
	applied            metric.Int64Counter
}

// NewService creates a Service.
func NewService(promotions Repository, catalog product.Repository, lg *zap.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		promotions:         promotions,
		catalog:            catalog,
		publisher:          nopPublisher{},
		lg:                 lg,
		now:                time.Now,
		previewConcurrency: 8,
		publishTimeout:     2 * time.Second,
		tracerProvider:     otel.GetTracerProvider(),
		meterProvider:      otel.GetMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	s.tracer = s.tracerProvider.Tracer("promotion")
	applied, err := s.meterProvider.Meter("promotion").Int64Counter("promotion.applied",
		metric.WithDescription("Committed promotion applications"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create applied counter")
	}
	s.applied = applied
	return s, nil
}

// Lines validates a cart and resolves it against a single catalog snapshot.
func (s *Service) Lines(ctx context.Context, storeID string, cart []CartItem) ([]Line, error) {
	if err := ValidateCart(cart); err != nil {
		return nil, err
	}
	snap, err := product.Load(ctx, s.catalog, storeID, ProductIDs(cart))
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}
	return ResolveLines(cart, snap)
}

// Apply resolves the requested promotion, checks that the cart is eligible,
// computes the discount and records one use. The usage counter is only
// incremented after eligibility and calculation succeed.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (_ *Outcome, rerr error) {
	ctx, span := s.tracer.Start(ctx, "promotion.Apply", trace.WithAttributes(
		attribute.String("store.id", req.StoreID),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, KindOf(rerr).String())
		}
		span.End()
	}()

	lines, err := s.Lines(ctx, req.StoreID, req.Cart)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p, err := s.resolve(ctx, req, now)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("promotion.id", p.ID),
		attribute.String("promotion.type", string(p.Type())),
	)

	res := Evaluate(lines, p)
	if !res.IsEligible {
		s.lg.Debug("Promotion rejected",
			zap.String("promotion_id", p.ID),
			zap.Int("required_actions", len(res.RequiredActions)),
		)
		return nil, &IneligibleError{Result: res}
	}

	out, err := Calculate(lines, p)
	if err != nil {
		return nil, err
	}

	count, err := s.promotions.IncrementUsage(ctx, p.ID)
	if err != nil {
		if errors.Is(err, ErrUsageLimitReached) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "increment usage of promotion %s", p.ID)
	}
	p.UsageCount = count

	s.applied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("promotion.type", string(p.Type())),
	))
	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	if err := s.publisher.PromotionApplied(publishCtx, Applied{
		PromotionID:  p.ID,
		StoreID:      p.StoreID,
		CouponCode:   p.CouponCode,
		DiscountType: p.Type(),
		Subtotal:     out.Subtotal,
		Discount:     out.Discount,
		FreeShipping: out.FreeShipping,
		UsageCount:   count,
		AppliedAt:    now,
	}); err != nil {
		s.lg.Warn("Publish promotion applied", zap.String("promotion_id", p.ID), zap.Error(err))
	}

	s.lg.Info("Promotion applied",
		zap.String("store_id", p.StoreID),
		zap.String("promotion_id", p.ID),
		zap.String("discount", out.Discount.StringFixed(2)),
		zap.Bool("free_shipping", out.FreeShipping),
		zap.Int("usage_count", count),
	)
	return out, nil
}

// resolve finds the promotion named by req and checks that it is usable now.
func (s *Service) resolve(ctx context.Context, req ApplyRequest, now time.Time) (*Promotion, error) {
	switch {
	case req.PromotionID != "":
		p, err := s.promotions.FindByID(ctx, req.StoreID, req.PromotionID)
		if err != nil {
			return nil, err
		}
		if err := usable(p, req, now); err != nil {
			return nil, err
		}
		return p, nil
	case req.CouponCode != "":
		p, err := s.promotions.FindByCouponCode(ctx, req.StoreID, req.CouponCode, now)
		if err != nil {
			return nil, err
		}
		if err := usable(p, req, now); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, &ValidationError{Reason: "promotion id or coupon code is required"}
	}
}

func usable(p *Promotion, req ApplyRequest, now time.Time) error {
	nf := &NotFoundError{StoreID: req.StoreID, PromotionID: req.PromotionID, CouponCode: req.CouponCode}
	switch {
	case p.StoreID != req.StoreID:
		nf.Reason = ReasonWrongStore
	case !p.IsActive:
		nf.Reason = ReasonInactive
	case !p.StartDate.IsZero() && now.Before(p.StartDate):
		nf.Reason = ReasonNotStarted
	case !p.EndDate.IsZero() && now.After(p.EndDate):
		nf.Reason = ReasonExpired
	case !p.Automatic() && req.CouponCode == "":
		nf.Reason = ReasonCodeRequired
	case req.CouponCode != "" && !p.MatchesCode(req.CouponCode):
		nf.Reason = ReasonCodeMismatch
	default:
		return nil
	}
	return nf
}

// Preview evaluates every automatic promotion of the store, plus the one
// unlocked by the request's coupon code, against the cart. Irrelevant
// promotions are omitted; eligible ones come first, largest discount first.
// Nothing is committed.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) ([]Quote, error) {
	ctx, span := s.tracer.Start(ctx, "promotion.Preview", trace.WithAttributes(
		attribute.String("store.id", req.StoreID),
	))
	defer span.End()

	lines, err := s.Lines(ctx, req.StoreID, req.Cart)
	if err != nil {
		return nil, err
	}

	now := s.now()
	promos, err := s.promotions.FindAutomatic(ctx, req.StoreID, now)
	if err != nil {
		return nil, errors.Wrap(err, "find automatic promotions")
	}
	if req.CouponCode != "" {
		p, err := s.resolve(ctx, ApplyRequest{StoreID: req.StoreID, CouponCode: req.CouponCode}, now)
		if err != nil {
			return nil, err
		}
		promos = append(promos, *p)
	}

	quotes := make([]Quote, len(promos))
	var g errgroup.Group
	g.SetLimit(s.previewConcurrency)
	for i := range promos {
		g.Go(func() error {
			p := &promos[i]
			q := Quote{Eligibility: Evaluate(lines, p)}
			if q.Eligibility.IsEligible {
				out, err := Calculate(lines, p)
				if err != nil {
					return err
				}
				q.Outcome = out
			}
			quotes[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	quotes = slices.DeleteFunc(quotes, func(q Quote) bool {
		return !q.Eligibility.Relevant()
	})
	slices.SortStableFunc(quotes, compareQuotes)
	return quotes, nil
}

// compareQuotes orders eligible quotes before ineligible ones and larger
// discounts before smaller ones.
func compareQuotes(a, b Quote) int {
	switch {
	case a.Outcome != nil && b.Outcome == nil:
		return -1
	case a.Outcome == nil && b.Outcome != nil:
		return 1
	case a.Outcome == nil:
		return 0
	default:
		return b.Outcome.Discount.Cmp(a.Outcome.Discount)
	}
}
