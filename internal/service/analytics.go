package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/screenlens/demo-gateway/internal/repository"
)

// AnalyticsService summarizes the request log. Its main consumer is the
// velocity review: spotting identities whose request pattern looks scripted.
type AnalyticsService struct {
	repository repository.RequestLogRepository
}

func NewAnalyticsService(repo repository.RequestLogRepository) *AnalyticsService {
	return &AnalyticsService{repository: repo}
}

// Holds analytics summary data
type AnalyticsSummary struct {
	TotalRequests   int64                             `json:"total_requests"`
	AvgResponseTime float64                           `json:"avg_response_time_ms"`
	ErrorRate       float64                           `json:"error_rate"`
	SuccessRate     float64                           `json:"success_rate"`
	ClientErrorRate float64                           `json:"client_error_rate"`
	ServerErrorRate float64                           `json:"server_error_rate"`
	TopIdentities   []repository.IdentityRequestCount `json:"top_identities"`
}

// Retrieves analytics summary for a time range
func (s *AnalyticsService) GetSummary(ctx context.Context, from, to time.Time) (*AnalyticsSummary, error) {
	summary := &AnalyticsSummary{}

	totalRequests, err := s.repository.CountByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.TotalRequests = totalRequests

	if totalRequests == 0 {
		return summary, nil
	}

	avgResponseTime, err := s.repository.GetAverageResponseTime(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.AvgResponseTime = avgResponseTime

	clientErrors, err := s.repository.CountByStatusCodeRange(ctx, 400, 499, from, to)
	if err != nil {
		return nil, err
	}

	serverErrors, err := s.repository.CountByStatusCodeRange(ctx, 500, 599, from, to)
	if err != nil {
		return nil, err
	}

	totalErrors := clientErrors + serverErrors
	summary.ErrorRate = (float64(totalErrors) / float64(totalRequests)) * 100
	summary.SuccessRate = 100 - summary.ErrorRate
	summary.ClientErrorRate = (float64(clientErrors) / float64(totalRequests)) * 100
	summary.ServerErrorRate = (float64(serverErrors) / float64(totalRequests)) * 100

	top, err := s.repository.TopIdentities(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}
	summary.TopIdentities = top

	return summary, nil
}

// RequestRate returns how many requests an identity made within the trailing
// window. Used by operators to double-check a velocity rejection.
func (s *AnalyticsService) RequestRate(ctx context.Context, identityID uuid.UUID, window time.Duration) (int64, error) {
	return s.repository.CountSince(ctx, identityID, time.Now().Add(-window))
}
