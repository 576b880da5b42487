package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

const resultOK = "ok"

// CommerceMetrics counts cart, address and order operations by outcome.
type CommerceMetrics struct {
	cartOps     *prometheus.CounterVec
	addressOps  *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	cartOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Cart operations by operation and result code.",
	}, []string{"op", "result"})
	addressOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "address_operations_total",
		Help: "Address book operations by operation and result code.",
	}, []string{"op", "result"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order status transitions.",
	}, []string{"from", "to"})
	reg.MustRegister(cartOps, addressOps, transitions)
	return &CommerceMetrics{cartOps: cartOps, addressOps: addressOps, transitions: transitions}
}

// CartOp records a cart operation; err == nil counts as "ok", otherwise the error code.
func (c *CommerceMetrics) CartOp(op string, err error) {
	if c == nil || c.cartOps == nil {
		return
	}
	c.cartOps.WithLabelValues(normalizeLabel(op), resultLabel(err)).Inc()
}

func (c *CommerceMetrics) AddressOp(op string, err error) {
	if c == nil || c.addressOps == nil {
		return
	}
	c.addressOps.WithLabelValues(normalizeLabel(op), resultLabel(err)).Inc()
}

func (c *CommerceMetrics) OrderTransition(from, to enums.OrderStatus) {
	if c == nil || c.transitions == nil {
		return
	}
	c.transitions.WithLabelValues(normalizeLabel(string(from)), normalizeLabel(string(to))).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return resultOK
	}
	return string(pkgerrors.CodeOf(err))
}
