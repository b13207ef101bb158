package procedures

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
	"github.com/louisbranch/duet/internal/platform/timeouts"
	"github.com/louisbranch/duet/internal/services/duet/domain/report"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
)

// Report builds the final report of a finished session.
func (s *Service) Report(ctx context.Context, sessionID, viewerID string) (report.Report, error) {
	state, err := s.loadMember(ctx, sessionID, viewerID)
	if err != nil {
		return report.Report{}, err
	}
	if state.Status != session.StatusFinished {
		return report.Report{}, apperrors.New(apperrors.CodeReportNotReady,
			fmt.Sprintf("session %s has not finished", sessionID))
	}
	responses, err := s.store.ListResponses(ctx, sessionID)
	if err != nil {
		return report.Report{}, err
	}
	return report.Build(state, responses), nil
}

// Analysis asks the analysis capability for a written reading of the final
// report. Any capability failure is ANALYSIS_UNAVAILABLE; the report itself
// stays available.
func (s *Service) Analysis(ctx context.Context, sessionID, viewerID string) (string, error) {
	r, err := s.Report(ctx, sessionID, viewerID)
	if err != nil {
		return "", err
	}
	if s.analyzer == nil {
		return "", apperrors.New(apperrors.CodeAnalysisUnavailable, "analysis is not configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, timeouts.AnalysisCall)
	defer cancel()
	text, err := s.analyzer.Analyze(callCtx, r)
	if err != nil {
		s.logger.Warn("analysis failed", zap.String("session_id", sessionID), zap.Error(err))
		return "", apperrors.Wrap(apperrors.CodeAnalysisUnavailable, "analysis failed", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.New(apperrors.CodeAnalysisUnavailable, "analysis returned no text")
	}
	return text, nil
}
