package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/cropdesk/cropdesk/internal/store/model"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const collectTimeout = 5 * time.Second

type HistoryStatsSource interface {
	Statistics(ctx context.Context) (model.HistoryStats, error)
}

type historyStatsCollector struct {
	source       HistoryStatsSource
	totalRecords *prometheus.Desc
	totalUsers   *prometheus.Desc
	totalByTool  *prometheus.Desc
}

func NewHistoryStatsCollector(s HistoryStatsSource) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_history_%s", namespace, name)
	}

	return &historyStatsCollector{
		source: s,
		totalRecords: prometheus.NewDesc(
			fqName("records_total"),
			"Total number of history records.",
			nil,
			prometheus.Labels{},
		),
		totalUsers: prometheus.NewDesc(
			fqName("users_total"),
			"Total number of distinct users with history.",
			nil,
			prometheus.Labels{},
		),
		totalByTool: prometheus.NewDesc(
			fqName("records_by_tool_total"),
			"Total history records by tool",
			[]string{toolLabel},
			prometheus.Labels{},
		),
	}
}

func (c *historyStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalRecords
	ch <- c.totalUsers
	ch <- c.totalByTool
}

// Collect implements Collector.
func (c *historyStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	stats, err := c.source.Statistics(ctx)
	if err != nil {
		zap.S().Named("history_collector").Errorf("failed to collect history statistics: %s", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.totalRecords, prometheus.GaugeValue, float64(stats.TotalRecords))
	ch <- prometheus.MustNewConstMetric(c.totalUsers, prometheus.GaugeValue, float64(stats.TotalUsers))

	for tool, total := range stats.ByTool {
		ch <- prometheus.MustNewConstMetric(c.totalByTool, prometheus.GaugeValue, float64(total), tool)
	}
}
