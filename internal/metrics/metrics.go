package metrics

import (
	"github.com/linemk/farm-shop/internal/domain/models"
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics: счётчики жизненного цикла заказа. Нулевое значение и nil безопасны.
type OrderMetrics struct {
	ordersCreated    prometheus.Counter
	checkoutFailures *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	restoredUnits    prometheus.Counter
}

// NewOrderMetrics регистрирует метрики на переданном registerer
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shop_orders_created_total",
			Help: "Orders created at checkout.",
		}),
		checkoutFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_checkout_failures_total",
			Help: "Rejected or failed checkouts by reason.",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_order_transitions_total",
			Help: "Applied order status transitions.",
		}, []string{"from", "to"}),
		restoredUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shop_stock_restored_units_total",
			Help: "Units returned to stock by cancellations.",
		}),
	}
	reg.MustRegister(m.ordersCreated, m.checkoutFailures, m.transitions, m.restoredUnits)
	return m
}

func (m *OrderMetrics) IncOrderCreated() {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *OrderMetrics) IncCheckoutFailure(reason string) {
	if m == nil || m.checkoutFailures == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.checkoutFailures.WithLabelValues(reason).Inc()
}

func (m *OrderMetrics) IncTransition(from, to models.OrderStatus) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *OrderMetrics) AddRestoredUnits(n int) {
	if m == nil || m.restoredUnits == nil || n <= 0 {
		return
	}
	m.restoredUnits.Add(float64(n))
}
