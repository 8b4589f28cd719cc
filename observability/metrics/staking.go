package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type StakingMetrics struct {
	deposits    prometheus.Counter
	withdrawals prometheus.Counter
	earlyExits  prometheus.Counter
	claims      prometheus.Counter
	opErrors    *prometheus.CounterVec
	totalStaked prometheus.Gauge
	rewardsPaid prometheus.Counter
	penalties   prometheus.Counter
}

var (
	stakingOnce     sync.Once
	stakingRegistry *StakingMetrics
)

func Staking() *StakingMetrics {
	stakingOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_deposits_total",
				Help: "Count of successful deposits.",
			}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_withdrawals_total",
				Help: "Count of successful unlocked withdrawals.",
			}),
			earlyExits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_early_exits_total",
				Help: "Count of early exits with penalty.",
			}),
			claims: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_claims_total",
				Help: "Count of reward claims that paid out.",
			}),
			opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_operation_errors_total",
				Help: "Count of failed operations by method.",
			}, []string{"method"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_total_staked",
				Help: "Current pool-wide staked principal.",
			}),
			rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_rewards_paid_total",
				Help: "Cumulative reward units paid out.",
			}),
			penalties: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_penalties_total",
				Help: "Cumulative early-exit penalties collected.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.deposits,
			stakingRegistry.withdrawals,
			stakingRegistry.earlyExits,
			stakingRegistry.claims,
			stakingRegistry.opErrors,
			stakingRegistry.totalStaked,
			stakingRegistry.rewardsPaid,
			stakingRegistry.penalties,
		)
	})
	return stakingRegistry
}

func gaugeValue(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

func (m *StakingMetrics) ObserveDeposit(totalStaked *big.Int) {
	if m == nil {
		return
	}
	m.deposits.Inc()
	m.totalStaked.Set(gaugeValue(totalStaked))
}

func (m *StakingMetrics) ObserveWithdraw(reward, totalStaked *big.Int) {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
	m.rewardsPaid.Add(gaugeValue(reward))
	m.totalStaked.Set(gaugeValue(totalStaked))
}

func (m *StakingMetrics) ObserveEarlyExit(penalty, totalStaked *big.Int) {
	if m == nil {
		return
	}
	m.earlyExits.Inc()
	m.penalties.Add(gaugeValue(penalty))
	m.totalStaked.Set(gaugeValue(totalStaked))
}

func (m *StakingMetrics) ObserveClaim(reward *big.Int) {
	if m == nil {
		return
	}
	if reward != nil && reward.Sign() > 0 {
		m.claims.Inc()
		m.rewardsPaid.Add(gaugeValue(reward))
	}
}

func (m *StakingMetrics) ObserveError(method string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.opErrors.WithLabelValues(method).Inc()
}
