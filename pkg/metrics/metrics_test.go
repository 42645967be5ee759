package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

// sample returns the summed counter/gauge value, or histogram sample count,
// of every series in family name whose labels include want.
func sample(reg prometheus.Gatherer, name string, want map[string]string) float64 {
	families, err := reg.Gather()
	if err != nil {
		return -1
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, want) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	for k, v := range want {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then metrics are registered under rollcall_attendance", func() {
				So(manager, ShouldNotBeNil)
				manager.submissions.WithLabelValues(ResultOK).Inc()
				So(sample(registry, "rollcall_attendance_submissions_total", nil), ShouldEqual, 1)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("school"),
				WithSubsystem("ledger"),
				WithMetricPrefix("v2_"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.recordsWritten.Add(3)

			Convey("Then names, prefix and constant labels are applied", func() {
				So(sample(registry, "school_ledger_v2_records_written_total", map[string]string{"env": "test"}), ShouldEqual, 3)
			})
		})

		Convey("When disabling observation", func() {
			m := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()), WithMetricsEnabled(false))

			Convey("Then the manager reports disabled", func() {
				So(m.enabled, ShouldBeFalse)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics registry", t, func() {
		reg := GetRegistry()
		So(Enabled(), ShouldBeTrue)

		Convey("When recording submissions", func() {
			okBefore := sample(reg, "rollcall_attendance_submissions_total", map[string]string{"result": ResultOK})
			conflictBefore := sample(reg, "rollcall_attendance_submissions_total", map[string]string{"result": ResultConflict})
			writtenBefore := sample(reg, "rollcall_attendance_records_written_total", nil)
			replacedBefore := sample(reg, "rollcall_attendance_records_replaced_total", nil)

			RecordSubmission(ResultOK)
			RecordSubmission(ResultOK)
			RecordSubmission(ResultConflict)
			RecordRecordsWritten(5)
			RecordRecordsWritten(0)
			RecordRecordsReplaced(2)
			RecordRecordsReplaced(-1)

			Convey("Then counters move by the recorded amounts", func() {
				So(sample(reg, "rollcall_attendance_submissions_total", map[string]string{"result": ResultOK})-okBefore, ShouldEqual, 2)
				So(sample(reg, "rollcall_attendance_submissions_total", map[string]string{"result": ResultConflict})-conflictBefore, ShouldEqual, 1)
				So(sample(reg, "rollcall_attendance_records_written_total", nil)-writtenBefore, ShouldEqual, 5)
				So(sample(reg, "rollcall_attendance_records_replaced_total", nil)-replacedBefore, ShouldEqual, 2)
			})
		})

		Convey("When recording reads and latencies", func() {
			before := sample(reg, "rollcall_attendance_query_latency_milliseconds", map[string]string{"kind": "history"})
			RecordQuery("history", 1.5)
			RecordSubmitLatency(3)
			RecordRepositoryQueryLatency(0.2)
			RecordRepositoryUpdateLatency(0.4)

			Convey("Then histograms observe samples", func() {
				So(sample(reg, "rollcall_attendance_query_latency_milliseconds", map[string]string{"kind": "history"})-before, ShouldEqual, 1)
			})
		})

		Convey("When updating gauges", func() {
			UpdateStudentsTotal(120)
			UpdateFacultyTotal(4)
			UpdateTimetableEntries(68)
			UpdateRepositoryRecordsTotal(900)

			Convey("Then gauges hold the last value", func() {
				So(sample(reg, "rollcall_attendance_students_total", nil), ShouldEqual, 120)
				So(sample(reg, "rollcall_attendance_faculty_total", nil), ShouldEqual, 4)
				So(sample(reg, "rollcall_attendance_timetable_entries", nil), ShouldEqual, 68)
				So(sample(reg, "rollcall_attendance_repository_records_total", nil), ShouldEqual, 900)
			})
		})

		Convey("When recording snapshots", func() {
			before := sample(reg, "rollcall_attendance_repository_snapshots_total", nil)
			RecordRepositorySnapshotRebuildDuration(0.25)
			IncrementRepositorySnapshotCount()

			Convey("Then the count and last duration are tracked", func() {
				So(sample(reg, "rollcall_attendance_repository_snapshots_total", nil)-before, ShouldEqual, 1)
				So(sample(reg, "rollcall_attendance_repository_snapshot_last_duration_milliseconds", nil), ShouldEqual, 0.25)
				So(sample(reg, "rollcall_attendance_repository_snapshot_last_unix", nil), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When recording HTTP, error and system metrics", func() {
			So(func() {
				RecordHTTPRequest("/attendance", "POST", "201")
				RecordHTTPRequestDuration("/attendance", "POST", "201", 12)
				RecordErrorByComponent("repository", "conflict")
				RecordErrorByType("storage", "error")
				RecordErrorByEndpoint("/attendance", "POST", "conflict")
				RecordErrorLatency("ledger", "storage", 7)
				RecordTimetableAnomaly("CSE-A")
				RecordFacultyUpsert()
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)

			Convey("Then labelled series exist", func() {
				So(sample(reg, "rollcall_attendance_http_requests_total", map[string]string{"endpoint": "/attendance", "status_code": "201"}), ShouldBeGreaterThanOrEqualTo, 1)
				So(sample(reg, "rollcall_attendance_timetable_anomalies_total", map[string]string{"section": "CSE-A"}), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})
	})
}
