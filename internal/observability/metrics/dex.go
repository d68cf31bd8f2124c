package metrics

import "time"

// RPCCall records one node JSON-RPC call.
func RPCCall(method, result string, d time.Duration) {
	if !enabled {
		return
	}
	rpcCallsTotal.WithLabelValues(method, result).Inc()
	rpcDuration.WithLabelValues(method).Observe(d.Seconds())
}

// DeployBuild records a deploy build for one of the DEX operations.
func DeployBuild(operation, status string) {
	if !enabled {
		return
	}
	deployBuildTotal.WithLabelValues(operation, status).Inc()
}

// DeploySubmit records a deploy submission.
func DeploySubmit(status string) {
	if !enabled {
		return
	}
	deploySubmitTotal.WithLabelValues(status).Inc()
}

// DeployResult records the outcome of waiting on a deploy.
func DeployResult(result string) {
	if !enabled {
		return
	}
	deployResultTotal.WithLabelValues(result).Inc()
}

// BalanceProbe records one dictionary probe.
func BalanceProbe(kind, result string) {
	if !enabled {
		return
	}
	balanceProbeTotal.WithLabelValues(kind, result).Inc()
}

// BalanceResolve records a finished token balance resolution.
func BalanceResolve(token, result string) {
	if !enabled {
		return
	}
	balanceResolveTotal.WithLabelValues(token, result).Inc()
}
