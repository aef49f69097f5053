package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_processor_records_consumed_total",
		Help: "Broker records pulled from the input topics.",
	})
	recordsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_processor_records_processed_total",
		Help: "Records whose message was processed successfully.",
	})
	processingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_processor_processing_failures_total",
		Help: "Records that failed deserialisation or workflow execution.",
	})
	recordsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_processor_records_published_total",
		Help: "Processed messages produced to the output topic.",
	})
	publishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_processor_publish_failures_total",
		Help: "Produce attempts that failed or timed out.",
	})
)
