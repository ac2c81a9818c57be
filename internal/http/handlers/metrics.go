package handlers

import (
	"net/http"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type metricPoint struct {
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value,omitempty"`
	Count      uint64            `json:"count,omitempty"`
	Sum        float64           `json:"sum,omitempty"`
}

type metricSeries struct {
	Name   string        `json:"name"`
	Unit   string        `json:"unit,omitempty"`
	Points []metricPoint `json:"points"`
}

// MetricsSnapshot reports the current value of every engine instrument.
func (a *App) MetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	if a.metrics == nil {
		a.json(w, http.StatusOK, map[string]any{"items": []metricSeries{}})
		return
	}
	var rm metricdata.ResourceMetrics
	if err := a.metrics.Collect(r.Context(), &rm); err != nil {
		a.fail(w, r, err)
		return
	}

	series := []metricSeries{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			s := metricSeries{Name: m.Name, Unit: m.Unit}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					s.Points = append(s.Points, metricPoint{Attributes: attrs(dp.Attributes.ToSlice()), Value: float64(dp.Value)})
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					s.Points = append(s.Points, metricPoint{Attributes: attrs(dp.Attributes.ToSlice()), Value: dp.Value})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					s.Points = append(s.Points, metricPoint{Attributes: attrs(dp.Attributes.ToSlice()), Count: dp.Count, Sum: dp.Sum})
				}
			default:
				continue
			}
			series = append(series, s)
		}
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Name < series[j].Name })
	a.json(w, http.StatusOK, map[string]any{"items": series})
}

func attrs(kvs []attribute.KeyValue) map[string]string {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}
