package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/internal/plans"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
	"github.com/inkwell-systems/comicforge-backend/pkg/razorpay"
)

const defaultCurrency = "INR"

// Service creates gateway orders and exposes payment lookups. Settlement
// itself happens through webhooks, never through this surface.
type Service struct {
	repo    paymentRepository
	users   userFinder
	gateway orderGateway
	plans   *plans.Service
	logg    *logger.Logger
}

type paymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Payment, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type orderGateway interface {
	CreateOrder(ctx context.Context, params razorpay.OrderParams) (*razorpay.Order, error)
	KeyID() string
}

// ServiceParams groups dependencies for the payments service.
type ServiceParams struct {
	Repo    paymentRepository
	Users   userFinder
	Gateway orderGateway
	Plans   *plans.Service
	Logger  *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Users == nil {
		return nil, errors.New("users repo is required")
	}
	if params.Gateway == nil {
		return nil, errors.New("gateway client is required")
	}
	if params.Plans == nil {
		return nil, errors.New("plans service is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		repo:    params.Repo,
		users:   params.Users,
		gateway: params.Gateway,
		plans:   params.Plans,
		logg:    params.Logger,
	}, nil
}

// CreateOrder registers a gateway order for a paid plan. The amount comes
// from server side pricing; whatever a client submits is ignored.
func (s *Service) CreateOrder(ctx context.Context, userID uuid.UUID, req CreateOrderRequest) (*CreateOrderResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	amount, err := s.plans.PriceMinor(req.Plan)
	if err != nil {
		return nil, err
	}
	if user.Plan == req.Plan {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("already on plan %s", req.Plan))
	}

	receipt := uuid.New().String()
	order, err := s.gateway.CreateOrder(ctx, razorpay.OrderParams{
		Amount:   amount,
		Currency: defaultCurrency,
		Receipt:  receipt,
		Notes: map[string]string{
			"user_id": user.ID.String(),
			"plan":    req.Plan.String(),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create gateway order")
	}

	payment := &models.Payment{
		UserID:      user.ID,
		OrderID:     order.ID,
		Plan:        req.Plan,
		AmountMinor: amount,
		Currency:    defaultCurrency,
		Status:      enums.PaymentStatusCreated,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		// the gateway order exists but was never persisted; it will
		// expire unpaid on the gateway side
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment")
	}

	ctx = s.logg.WithUserID(ctx, user.ID.String())
	s.logg.Info(ctx, fmt.Sprintf("created order %s for plan %s", order.ID, req.Plan))

	return &CreateOrderResponse{
		PaymentID:   payment.ID,
		OrderID:     order.ID,
		AmountMinor: amount,
		Currency:    defaultCurrency,
		Plan:        req.Plan,
		KeyID:       s.gateway.KeyID(),
	}, nil
}

// Get returns one of the caller's payments.
func (s *Service) Get(ctx context.Context, paymentID, userID uuid.UUID) (*PaymentDTO, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if payment.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}
	return FromModel(payment), nil
}

// List returns the caller's payments, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]PaymentDTO, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	out := make([]PaymentDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}
