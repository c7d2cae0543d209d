// Package plugins registers all built-in plugins.
package plugins

import (
	"firestige.xyz/pcapcpu/pkg/plugin"
	"firestige.xyz/pcapcpu/plugins/reporter/chart"
	"firestige.xyz/pcapcpu/plugins/reporter/console"
	"firestige.xyz/pcapcpu/plugins/reporter/csv"
	"firestige.xyz/pcapcpu/plugins/reporter/kafka"
	"firestige.xyz/pcapcpu/plugins/reporter/sqlite"
	"firestige.xyz/pcapcpu/plugins/reporter/xlsx"
)

func init() {
	plugin.RegisterReporter("console", console.NewConsoleReporter)
	plugin.RegisterReporter("csv", csv.NewCSVReporter)
	plugin.RegisterReporter("xlsx", xlsx.NewXLSXReporter)
	plugin.RegisterReporter("chart", chart.NewChartReporter)
	plugin.RegisterReporter("sqlite", sqlite.NewSQLiteReporter)
	plugin.RegisterReporter("kafka", kafka.NewKafkaReporter)
}
