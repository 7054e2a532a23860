package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeromicro/go-zero/core/logx"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dipper_cycles_total",
		Help: "Completed scan cycles by status.",
	}, []string{"status"})

	tradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipper_trades_total",
		Help: "Buy orders successfully submitted.",
	})

	skipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dipper_skips_total",
		Help: "Opportunities skipped, by reason code.",
	}, []string{"reason"})

	deployedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipper_deployed_dollars_total",
		Help: "Notional dollars deployed into submitted orders.",
	})

	ordersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipper_orders_cancelled_total",
		Help: "Orders cancelled after the fill timeout.",
	})

	equity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dipper_equity_dollars",
		Help: "Account equity at the last snapshot.",
	})

	leverageRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dipper_leverage_ratio",
		Help: "Total position value over equity at the last snapshot.",
	})

	brakeEngaged = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dipper_brake_engaged",
		Help: "1 while the emergency brake is engaged, else 0.",
	})
)

// RecordCycle updates the gauges and counters from one cycle outcome.
func RecordCycle(ok bool, equityVal, ratio float64, braked bool, executed int, deployed float64, cancelled int, skips map[string]int) {
	status := "ok"
	if !ok {
		status = "error"
	}
	cyclesTotal.WithLabelValues(status).Inc()
	if !ok {
		return
	}

	equity.Set(equityVal)
	leverageRatio.Set(ratio)
	if braked {
		brakeEngaged.Set(1)
	} else {
		brakeEngaged.Set(0)
	}
	tradesTotal.Add(float64(executed))
	deployedTotal.Add(deployed)
	ordersCancelled.Add(float64(cancelled))
	for reason, n := range skips {
		skipsTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// Serve exposes /metrics on addr in a background goroutine. Errors are
// logged, not fatal; the engine trades fine without metrics.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Errorw("metrics server stopped", logx.Field("error", err.Error()))
		}
	}()
}
