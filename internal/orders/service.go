package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/address"
	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/clock"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/retry"
)

// Service is the OrderLifecycle: checkout, status transitions and returns.
type Service interface {
	PlaceOrder(ctx context.Context, buyerID uuid.UUID, input PlaceOrderInput) (*OrderDTO, error)
	GetOrderHistory(ctx context.Context, buyerID uuid.UUID) ([]OrderDTO, error)
	GetOrder(ctx context.Context, buyerID uuid.UUID, orderID string) (*OrderDTO, error)
	CancelOrder(ctx context.Context, buyerID uuid.UUID, orderID string) (*OrderDTO, error)
	RequestReturn(ctx context.Context, userID uuid.UUID, orderID string, input ReturnInput) (*OrderDTO, error)
	CompleteOrder(ctx context.Context, actorID uuid.UUID, orderID string) (*OrderDTO, error)
	ResolveReturn(ctx context.Context, actorID uuid.UUID, orderID string, input ResolveReturnInput) (*OrderDTO, error)
}

// ServiceParams bundles the order service dependencies.
type ServiceParams struct {
	Repo      *Repository
	Carts     cart.CartRepository
	Addresses *address.Repository
	Products  *products.Repository
	Inventory inventoryManager
	Outbox    outboxPublisher
	Tx        txRunner
	Clock     clock.Clock
	Retry     retry.Policy
	Metrics   *metrics.CommerceMetrics
	Logger    *logger.Logger
}

type service struct {
	repo      *Repository
	carts     cart.CartRepository
	addresses *address.Repository
	products  *products.Repository
	inventory inventoryManager
	outbox    outboxPublisher
	tx        txRunner
	clock     clock.Clock
	retry     retry.Policy
	metrics   *metrics.CommerceMetrics
	logg      *logger.Logger
}

// transition is one status change applied inside a transaction.
type transition struct {
	from, to enums.OrderStatus
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Addresses == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory manager required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Clock == nil {
		params.Clock = clock.System{}
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &service{
		repo:      params.Repo,
		carts:     params.Carts,
		addresses: params.Addresses,
		products:  params.Products,
		inventory: params.Inventory,
		outbox:    params.Outbox,
		tx:        params.Tx,
		clock:     params.Clock,
		retry:     params.Retry,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// PlaceOrder converts the buyer's active cart lines into an order shipped to
// one of the buyer's addresses. Saved-for-later and unavailable lines stay in
// the cart.
func (s *service) PlaceOrder(ctx context.Context, buyerID uuid.UUID, input PlaceOrderInput) (*OrderDTO, error) {
	ctx = s.logg.WithOperation(ctx, "orders.place")
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidUserID, "user id is required")
	}
	addressID, err := parseID(input.AddressID, pkgerrors.CodeInvalidAddressID, "address id")
	if err != nil {
		return nil, err
	}

	var orderID uuid.UUID
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			id, err := s.placeOrder(ctx, tx, buyerID, addressID)
			orderID = id
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithUserID(ctx, buyerID.String()), "order placed "+orderID.String())
	return s.loadOrder(ctx, orderID)
}

func (s *service) placeOrder(ctx context.Context, tx *gorm.DB, buyerID, addressID uuid.UUID) (uuid.UUID, error) {
	addr, err := s.addresses.WithTx(tx).FindOwned(ctx, buyerID, addressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}

	carts := s.carts.WithTx(tx)
	buyerCart, err := carts.LockByUser(ctx, buyerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	var active, kept []models.CartLine
	for _, line := range buyerCart.Lines {
		if line.Status == enums.CartLineStatusActive {
			active = append(active, line)
		} else {
			kept = append(kept, line)
		}
	}
	if len(active) == 0 {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart has no active items")
	}

	catalog, err := s.loadProducts(ctx, tx, active)
	if err != nil {
		return uuid.Nil, err
	}

	now := s.clock.Now()
	order := models.Order{
		BuyerID:         buyerID,
		AddressID:       addr.ID,
		OrderDate:       now,
		Status:          enums.OrderStatusShipping,
		ShippingAddress: addr.Snapshot(),
	}
	total := decimal.Zero
	for _, line := range active {
		product := catalog[line.ProductID]
		if err := checkPurchasable(product, line.Quantity); err != nil {
			return uuid.Nil, err
		}
		item := models.OrderItem{
			ProductID: line.ProductID,
			SellerID:  line.SellerID,
			Title:     product.Title,
			Quantity:  line.Quantity,
			UnitPrice: line.PriceAtTime,
			Position:  len(order.Items),
		}
		total = total.Add(item.LineTotal())
		order.Items = append(order.Items, item)
	}
	order.TotalPrice = total.Round(2)

	orders := s.repo.WithTx(tx)
	if err := orders.Create(ctx, &order); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	for _, item := range order.Items {
		if err := s.inventory.Reserve(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return uuid.Nil, err
		}
	}

	buyerCart.Lines = kept
	cart.ApplyTotals(buyerCart, now)
	if err := carts.ReplaceLines(ctx, buyerCart.ID, buyerCart.Lines); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset cart lines")
	}
	if err := carts.SaveTotals(ctx, buyerCart); err != nil {
		if errors.Is(err, cart.ErrStaleCart) {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeCartVersionConflict, err, "cart modified during checkout")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset cart")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: buyerID, Role: string(enums.RoleUser)},
		Data: outbox.OrderCreatedEvent{
			OrderID:    order.ID,
			BuyerID:    buyerID,
			ItemCount:  len(order.Items),
			TotalPrice: order.TotalPrice,
			OrderDate:  order.OrderDate,
		},
		OccurredAt: now,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created event")
	}
	return order.ID, nil
}

func (s *service) loadProducts(ctx context.Context, tx *gorm.DB, lines []models.CartLine) (map[uuid.UUID]models.Product, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	rows, err := s.products.WithTx(tx).FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	out := make(map[uuid.UUID]models.Product, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found").
				WithDetails(map[string]any{"productId": id})
		}
	}
	return out, nil
}

func checkPurchasable(product models.Product, qty int) error {
	details := map[string]any{"productId": product.ID}
	if product.Status != enums.ProductStatusAvailable {
		return pkgerrors.New(pkgerrors.CodeProductUnavailable, "product is not available").WithDetails(details)
	}
	if product.IsAuction {
		return pkgerrors.New(pkgerrors.CodeAuctionNotAllowed, "auction products cannot be ordered").WithDetails(details)
	}
	if product.Quantity < qty {
		details["availableQuantity"] = product.Quantity
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("only %d left in stock", product.Quantity)).WithDetails(details)
	}
	return nil
}

// GetOrderHistory lists the buyer's orders newest first with items and any
// return request attached.
func (s *service) GetOrderHistory(ctx context.Context, buyerID uuid.UUID) ([]OrderDTO, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidUserID, "user id is required")
	}
	rows, err := s.repo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	if len(rows) == 0 {
		return []OrderDTO{}, nil
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var (
		items   map[uuid.UUID][]models.OrderItem
		returns map[uuid.UUID]models.ReturnRequest
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.repo.ItemsByOrders(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		returns, err = s.repo.ReturnsByOrders(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order details")
	}

	out := make([]OrderDTO, 0, len(rows))
	for _, row := range rows {
		var ret *models.ReturnRequest
		if r, ok := returns[row.ID]; ok {
			ret = &r
		}
		out = append(out, newOrderDTO(row, items[row.ID], ret))
	}
	return out, nil
}

func (s *service) GetOrder(ctx context.Context, buyerID uuid.UUID, orderID string) (*OrderDTO, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidUserID, "user id is required")
	}
	id, err := parseID(orderID, pkgerrors.CodeInvalidOrderID, "order id")
	if err != nil {
		return nil, err
	}
	dto, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if dto.BuyerID != buyerID {
		return nil, orderNotFound()
	}
	return dto, nil
}

// CancelOrder cancels a shipping order owned by the buyer and puts its items
// back in stock.
func (s *service) CancelOrder(ctx context.Context, buyerID uuid.UUID, orderID string) (*OrderDTO, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidUserID, "user id is required")
	}
	actor := &outbox.ActorRef{UserID: buyerID, Role: string(enums.RoleUser)}
	return s.transact(ctx, "orders.cancel", orderID, func(ctx context.Context, tx *gorm.DB, order *models.Order) ([]transition, error) {
		if order.BuyerID != buyerID {
			return nil, orderNotFound()
		}
		step, err := s.move(ctx, tx, order, enums.OrderStatusCancelled, actor)
		if err != nil {
			return nil, err
		}
		items, err := s.repo.WithTx(tx).ItemsByOrders(ctx, []uuid.UUID{order.ID})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		for _, item := range items[order.ID] {
			if err := s.inventory.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return nil, err
			}
		}
		return []transition{step}, nil
	})
}

// RequestReturn opens the single return allowed for a completed order.
func (s *service) RequestReturn(ctx context.Context, userID uuid.UUID, orderID string, input ReturnInput) (*OrderDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidUserID, "user id is required")
	}
	if _, err := parseID(orderID, pkgerrors.CodeInvalidOrderID, "order id"); err != nil {
		return nil, err
	}
	reason := input.trimmed()
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMissingFields, "reason is required").
			WithDetails(map[string]any{"fields": []string{"reason"}})
	}

	actor := &outbox.ActorRef{UserID: userID, Role: string(enums.RoleUser)}
	return s.transact(ctx, "orders.request_return", orderID, func(ctx context.Context, tx *gorm.DB, order *models.Order) ([]transition, error) {
		if order.BuyerID != userID {
			return nil, orderNotFound()
		}
		orders := s.repo.WithTx(tx)
		existing, err := orders.FindReturnByOrder(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
		}
		if existing != nil {
			return nil, duplicateReturn()
		}
		if order.Status != enums.OrderStatusCompleted {
			return nil, pkgerrors.New(pkgerrors.CodeOrderNotEligible, "only completed orders can be returned").
				WithDetails(map[string]any{"status": order.Status})
		}

		step, err := s.move(ctx, tx, order, enums.OrderStatusReturnRequested, actor)
		if err != nil {
			return nil, err
		}
		ret := models.ReturnRequest{
			OrderID: order.ID,
			UserID:  userID,
			Reason:  reason,
			Status:  enums.ReturnRequestStatusPending,
		}
		if err := orders.CreateReturn(ctx, &ret); err != nil {
			if db.IsUniqueViolation(err, "") {
				return nil, duplicateReturn()
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return request")
		}
		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnRequested,
			AggregateType: enums.AggregateReturnRequest,
			AggregateID:   ret.ID,
			Actor:         actor,
			Data: outbox.ReturnRequestedEvent{
				ReturnRequestID: ret.ID,
				OrderID:         order.ID,
				UserID:          userID,
				Reason:          reason,
			},
			OccurredAt: s.clock.Now(),
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit return requested event")
		}
		return []transition{step}, nil
	})
}

// CompleteOrder marks a shipping order as delivered.
func (s *service) CompleteOrder(ctx context.Context, actorID uuid.UUID, orderID string) (*OrderDTO, error) {
	actor := &outbox.ActorRef{UserID: actorID, Role: string(enums.RoleAdmin)}
	return s.transact(ctx, "orders.complete", orderID, func(ctx context.Context, tx *gorm.DB, order *models.Order) ([]transition, error) {
		if order.Status != enums.OrderStatusShipping {
			return nil, invalidTransition(order.Status, enums.OrderStatusCompleted)
		}
		step, err := s.move(ctx, tx, order, enums.OrderStatusCompleted, actor)
		if err != nil {
			return nil, err
		}
		return []transition{step}, nil
	})
}

// ResolveReturn approves or rejects the order's pending return. Approval
// moves the order to returned; rejection puts it back to completed.
func (s *service) ResolveReturn(ctx context.Context, actorID uuid.UUID, orderID string, input ResolveReturnInput) (*OrderDTO, error) {
	actor := &outbox.ActorRef{UserID: actorID, Role: string(enums.RoleAdmin)}
	return s.transact(ctx, "orders.resolve_return", orderID, func(ctx context.Context, tx *gorm.DB, order *models.Order) ([]transition, error) {
		orders := s.repo.WithTx(tx)
		ret, err := orders.FindReturnByOrder(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
		}
		if ret == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order has no return request")
		}
		if ret.Status != enums.ReturnRequestStatusPending {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "return request already resolved").
				WithDetails(map[string]any{"status": ret.Status})
		}

		target, status := enums.OrderStatusCompleted, enums.ReturnRequestStatusRejected
		if input.Approve {
			target, status = enums.OrderStatusReturned, enums.ReturnRequestStatusApproved
		}
		step, err := s.move(ctx, tx, order, target, actor)
		if err != nil {
			return nil, err
		}
		ok, err := orders.ResolveReturn(ctx, ret.ID, status, s.clock.Now())
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve return request")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "return request already resolved")
		}
		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnResolved,
			AggregateType: enums.AggregateReturnRequest,
			AggregateID:   ret.ID,
			Actor:         actor,
			Data: outbox.ReturnResolvedEvent{
				ReturnRequestID: ret.ID,
				OrderID:         order.ID,
				Status:          status,
			},
			OccurredAt: s.clock.Now(),
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit return resolved event")
		}
		return []transition{step}, nil
	})
}

type lockedOrderFunc func(ctx context.Context, tx *gorm.DB, order *models.Order) ([]transition, error)

// transact locks the order and runs fn in one transaction under the retry
// policy. Transitions are counted only once the transaction commits.
func (s *service) transact(ctx context.Context, op, rawOrderID string, fn lockedOrderFunc) (*OrderDTO, error) {
	ctx = s.logg.WithOperation(ctx, op)
	id, err := parseID(rawOrderID, pkgerrors.CodeInvalidOrderID, "order id")
	if err != nil {
		return nil, err
	}

	var applied []transition
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		applied = nil
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			order, err := s.repo.WithTx(tx).LockOrder(ctx, id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return orderNotFound()
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
			}
			steps, err := fn(ctx, tx, order)
			if err != nil {
				return err
			}
			applied = steps
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	for _, step := range applied {
		s.metrics.OrderTransition(step.from, step.to)
		s.logg.InfoWith(ctx, "order status changed", map[string]any{
			"order_id": id.String(),
			"from":     step.from,
			"to":       step.to,
		})
	}
	return s.loadOrder(ctx, id)
}

// move applies one checked transition and queues its outbox event.
func (s *service) move(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, actor *outbox.ActorRef) (transition, error) {
	from := order.Status
	if err := ValidateTransition(from, to); err != nil {
		return transition{}, err
	}
	now := s.clock.Now()
	ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, order.ID, from, to, now)
	if err != nil {
		return transition{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		return transition{}, pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
	}
	order.Status = to

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: outbox.OrderStatusChangedEvent{
			OrderID: order.ID,
			BuyerID: order.BuyerID,
			From:    from,
			To:      to,
		},
		OccurredAt: now,
	})
	if err != nil {
		return transition{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order status event")
	}
	return transition{from: from, to: to}, nil
}

func (s *service) loadOrder(ctx context.Context, id uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindOrder(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orderNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	ret, err := s.repo.FindReturnByOrder(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
	}
	dto := newOrderDTO(*order, order.Items, ret)
	return &dto, nil
}

func orderNotFound() error {
	return pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
}

func duplicateReturn() error {
	return pkgerrors.New(pkgerrors.CodeDuplicateReturnRequest, "a return has already been requested for this order")
}

func parseID(raw string, invalid pkgerrors.Code, field string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeMissingFields, field+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(invalid, field+" is malformed")
	}
	return id, nil
}
