package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	allocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "review",
		Name:      "allocations_total",
		Help:      "Judge allocation requests by outcome code.",
	}, []string{"result"})

	assignmentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "review",
		Name:      "assignments_created_total",
		Help:      "Assignments created by the allocator.",
	})

	submissionsUploadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "review",
		Name:      "submissions_uploaded_total",
		Help:      "Evaluation file uploads by outcome code.",
	}, []string{"result"})

	reviewsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "review",
		Name:      "reviews_submitted_total",
		Help:      "Score submissions by outcome code.",
	}, []string{"result"})

	templatesGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "review",
		Name:      "templates_generated_total",
		Help:      "Evaluation templates materialized for GENERATED assignments.",
	})
)

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(CodeOf(err))
}
