// Package metrics exposes the simulator's Prometheus counters and gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HeartbeatsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocpp_emu_heartbeats_total",
		Help: "Total Heartbeat calls sent to the CSMS",
	})

	MeterValuesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_emu_meter_values_total",
		Help: "Total MeterValues calls sent to the CSMS, by connector",
	}, []string{"connector_id"})

	TransactionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_emu_transactions_started_total",
		Help: "Total StartTransaction calls accepted by the CSMS, by connector",
	}, []string{"connector_id"})

	TransactionsStopped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_emu_transactions_stopped_total",
		Help: "Total StopTransaction calls sent to the CSMS, by connector and reason",
	}, []string{"connector_id", "reason"})

	RPCErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_emu_rpc_errors_total",
		Help: "Total outbound Call failures, by action",
	}, []string{"action"})

	ConnectorStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ocpp_emu_connector_status",
		Help: "1 if the connector currently holds the labeled status, else 0",
	}, []string{"connector_id", "status"})
)
