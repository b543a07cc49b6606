package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/restaurant-orders/utils"
)

// PaymentMetrics menyimpan hasil kerja monitor
type PaymentMetrics struct {
	Runs    int64
	Expired int64
	Errors  int64
	LastRun time.Time
}

// PaymentMonitor secara berkala menandai pembayaran online yang tidak
// selesai dalam Timeout sebagai failed.
type PaymentMonitor struct {
	Orders   *OrderService
	Interval time.Duration
	Timeout  time.Duration
	StopChan chan struct{}

	metrics  PaymentMetrics
	mutex    sync.Mutex
	stopOnce sync.Once
	log      *logrus.Entry
}

func NewPaymentMonitor(orders *OrderService, interval, timeout time.Duration) *PaymentMonitor {
	return &PaymentMonitor{
		Orders:   orders,
		Interval: interval,
		Timeout:  timeout,
		StopChan: make(chan struct{}),
		log:      utils.Component("payment-monitor"),
	}
}

// Start runs the monitor in its own goroutine until Stop is called.
func (pm *PaymentMonitor) Start() {
	go func() {
		if err := pm.Run(context.Background()); err != nil {
			pm.log.WithError(err).Error("payment monitor stopped")
		}
	}()
}

// Run blocks until ctx is done or Stop is called.
func (pm *PaymentMonitor) Run(ctx context.Context) error {
	pm.log.WithFields(logrus.Fields{"interval": pm.Interval, "timeout": pm.Timeout}).Info("payment monitor started")
	ticker := time.NewTicker(pm.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pm.Check(ctx)
		case <-pm.StopChan:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (pm *PaymentMonitor) Stop() {
	pm.stopOnce.Do(func() { close(pm.StopChan) })
}

// Check runs one sweep.
func (pm *PaymentMonitor) Check(ctx context.Context) int {
	n, err := pm.Orders.ExpireStalePayments(ctx, pm.Timeout)

	pm.mutex.Lock()
	pm.metrics.Runs++
	pm.metrics.Expired += int64(n)
	pm.metrics.LastRun = time.Now()
	if err != nil {
		pm.metrics.Errors++
	}
	pm.mutex.Unlock()

	if err != nil {
		pm.log.WithError(err).Error("checking stale payments")
		return 0
	}
	if n > 0 {
		pm.log.WithField("count", n).Info("expired stale online payments")
	}
	return n
}

func (pm *PaymentMonitor) GetMetrics() PaymentMetrics {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	return pm.metrics
}
