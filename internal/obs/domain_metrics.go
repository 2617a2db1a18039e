package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingComputationsTotal counts pricing computations by operation and outcome.
	PricingComputationsTotal *prometheus.CounterVec
	// ReceiptDecisionsTotal counts stock receipts committed by pricing mode and decision.
	ReceiptDecisionsTotal *prometheus.CounterVec
	// SettingsCacheTotal counts tax settings cache lookups.
	SettingsCacheTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingComputationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_computations_total",
			Help:      "Count of pricing computations by operation and result.",
		}, []string{"operation", "result"})
		ReceiptDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_receipt_decisions_total",
			Help:      "Count of committed stock receipts by pricing mode and decision.",
		}, []string{"mode", "decision"})
		SettingsCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_cache_total",
			Help:      "Count of tax settings cache lookups by result.",
		}, []string{"result"})

		mustRegisterCollector(reg, PricingComputationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingComputationsTotal = v
			}
		})
		mustRegisterCollector(reg, ReceiptDecisionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReceiptDecisionsTotal = v
			}
		})
		mustRegisterCollector(reg, SettingsCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SettingsCacheTotal = v
			}
		})
	})
}

// ObservePricing records a pricing computation outcome. It is a no-op before registration.
func ObservePricing(operation, result string) {
	if PricingComputationsTotal != nil {
		PricingComputationsTotal.WithLabelValues(operation, result).Inc()
	}
}

// ObserveReceiptDecision records a committed stock receipt.
func ObserveReceiptDecision(mode, decision string) {
	if ReceiptDecisionsTotal != nil {
		if decision == "" {
			decision = "none"
		}
		ReceiptDecisionsTotal.WithLabelValues(mode, decision).Inc()
	}
}

// ObserveSettingsCache records a settings cache hit or miss.
func ObserveSettingsCache(hit bool) {
	if SettingsCacheTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	SettingsCacheTotal.WithLabelValues(result).Inc()
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
