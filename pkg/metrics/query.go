package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// TeamMetrics are aggregates read back from Prometheus for the dashboard.
type TeamMetrics struct {
	WorkItemsSucceeded int64 `json:"work_items_succeeded"`
	WorkItemsFailed    int64 `json:"work_items_failed"`
	Approvals          int64 `json:"approvals"`
	ChangesRequested   int64 `json:"changes_requested"`
	Merges             int64 `json:"merges"`
	GenerationTokens   int64 `json:"generation_tokens"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	queryAPI  v1.API
	namespace string
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL, namespace string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		queryAPI:  v1.NewAPI(client),
		namespace: namespace,
	}, nil
}

func (q *QueryService) metric(name string) string {
	if q.namespace == "" {
		return name
	}
	return q.namespace + "_" + name
}

// scalar runs query and returns the first sample of a vector result, or 0.
func (q *QueryService) scalar(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to query %q: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}

type metricQuery struct {
	dst   *int64
	query string
}

// GetTeamMetrics retrieves aggregated work, review and merge totals.
func (q *QueryService) GetTeamMetrics(ctx context.Context) (*TeamMetrics, error) {
	m := &TeamMetrics{}
	queries := []metricQuery{
		{&m.WorkItemsSucceeded, fmt.Sprintf(`sum(%s{outcome=%q})`, q.metric("work_items_total"), OutcomeSuccess)},
		{&m.WorkItemsFailed, fmt.Sprintf(`sum(%s{outcome=%q})`, q.metric("work_items_total"), OutcomeFailed)},
		{&m.Approvals, fmt.Sprintf(`sum(%s{verdict="approved"})`, q.metric("reviews_total"))},
		{&m.ChangesRequested, fmt.Sprintf(`sum(%s{verdict="changes_requested"})`, q.metric("reviews_total"))},
		{&m.Merges, fmt.Sprintf(`sum(%s{outcome="merged"})`, q.metric("merges_total"))},
		{&m.GenerationTokens, fmt.Sprintf(`sum(%s)`, q.metric("generation_tokens_total"))},
	}

	for _, item := range queries {
		v, err := q.scalar(ctx, item.query)
		if err != nil {
			return nil, err
		}
		*item.dst = v
	}
	return m, nil
}
