package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily はレジストリから指定名のメトリクスファミリーを取得する。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// labelValue はメトリクスから指定ラベルの値を返す。
func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordGateDecision_IncrementsCounterWithLabels はゲート判定がラベル付きで記録されることを検証する。
func TestRecordGateDecision_IncrementsCounterWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGateDecision("dashboard", "redirect_login")
	c.RecordGateDecision("dashboard", "redirect_login")
	c.RecordGateDecision("public", "allow")

	mf := findMetricFamily(t, reg, "souvenir_gate_decisions_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		class := labelValue(m, "class")
		decision := labelValue(m, "decision")
		val := m.GetCounter().GetValue()
		switch {
		case class == "dashboard" && decision == "redirect_login":
			if val != 2 {
				t.Errorf("gate_decisions{dashboard,redirect_login} = %v, want 2", val)
			}
		case class == "public" && decision == "allow":
			if val != 1 {
				t.Errorf("gate_decisions{public,allow} = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected labels: class=%s decision=%s", class, decision)
		}
	}
}

// TestRecordVerifyFailure_IncrementsCounterByReason は検証失敗が理由別に記録されることを検証する。
func TestRecordVerifyFailure_IncrementsCounterByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordVerifyFailure("unauthorized")
	c.RecordVerifyFailure("network_error")
	c.RecordVerifyFailure("unauthorized")

	mf := findMetricFamily(t, reg, "souvenir_verify_failures_total")
	for _, m := range mf.GetMetric() {
		reason := labelValue(m, "reason")
		val := m.GetCounter().GetValue()
		switch reason {
		case "unauthorized":
			if val != 2 {
				t.Errorf("verify_failures{unauthorized} = %v, want 2", val)
			}
		case "network_error":
			if val != 1 {
				t.Errorf("verify_failures{network_error} = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected reason label: %s", reason)
		}
	}
}

// TestRecordPredictOutcome_IncrementsCounter は分類結果カウンタが増加することを検証する。
func TestRecordPredictOutcome_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPredictOutcome("timeout")

	mf := findMetricFamily(t, reg, "souvenir_predict_outcomes_total")
	if got := labelValue(mf.GetMetric()[0], "outcome"); got != "timeout" {
		t.Errorf("outcome label = %q, want %q", got, "timeout")
	}
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 1 {
		t.Errorf("predict_outcomes{timeout} = %v, want 1", val)
	}
}

// TestPredictInFlight_TracksStartAndFinish は処理中ゲージが増減することを検証する。
func TestPredictInFlight_TracksStartAndFinish(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.PredictStarted()
	c.PredictStarted()
	c.PredictFinished()

	mf := findMetricFamily(t, reg, "souvenir_predict_in_flight")
	if val := mf.GetMetric()[0].GetGauge().GetValue(); val != 1 {
		t.Errorf("predict_in_flight = %v, want 1", val)
	}

	c.PredictFinished()
	mf = findMetricFamily(t, reg, "souvenir_predict_in_flight")
	if val := mf.GetMetric()[0].GetGauge().GetValue(); val != 0 {
		t.Errorf("predict_in_flight = %v, want 0", val)
	}
}

// TestRecordPredictLatency_ObservesHistogram は分類レイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordPredictLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPredictLatency(500 * time.Millisecond)
	c.RecordPredictLatency(2 * time.Second)

	mf := findMetricFamily(t, reg, "souvenir_predict_latency_seconds")
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.5 + 2.0 = 2.5秒
	if h.GetSampleSum() < 2.4 || h.GetSampleSum() > 2.6 {
		t.Errorf("sample_sum = %v, want ~2.5", h.GetSampleSum())
	}
}

// TestRecordUpstreamFailure_IncrementsCounterWithLabels はドメインAPI失敗が記録されることを検証する。
func TestRecordUpstreamFailure_IncrementsCounterWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamFailure("products", "invalid_response")

	mf := findMetricFamily(t, reg, "souvenir_upstream_failures_total")
	m := mf.GetMetric()[0]
	if labelValue(m, "resource") != "products" || labelValue(m, "reason") != "invalid_response" {
		t.Errorf("unexpected labels: %v", m.GetLabel())
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(302)

	mf := findMetricFamily(t, reg, "souvenir_http_status_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		label := labelValue(m, "status_code")
		val := m.GetCounter().GetValue()
		switch label {
		case "200":
			if val != 2 {
				t.Errorf("http_status_total{status_code=200} = %v, want 2", val)
			}
		case "302":
			if val != 1 {
				t.Errorf("http_status_total{status_code=302} = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected label value: %s", label)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordPredictOutcome("success")
	c2.RecordPredictOutcome("success")
	c2.RecordPredictOutcome("success")

	val1 := findMetricFamily(t, reg1, "souvenir_predict_outcomes_total").GetMetric()[0].GetCounter().GetValue()
	val2 := findMetricFamily(t, reg2, "souvenir_predict_outcomes_total").GetMetric()[0].GetCounter().GetValue()

	if val1 != 1 {
		t.Errorf("reg1 predict_outcomes = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 predict_outcomes = %v, want 2", val2)
	}
}
