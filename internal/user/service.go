package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/metrics"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/userapi"
)

// Service implements userapi.UserServer over a Directory.
type Service struct {
	dir     Directory
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ userapi.UserServer = (*Service)(nil)

// NewService returns a Service. m and logger may be nil.
func NewService(dir Directory, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dir: dir, metrics: m, logger: logger}
}

// GetUserInfo looks uid up exactly as given. Only the empty string is
// rejected.
func (s *Service) GetUserInfo(ctx context.Context, uid string) (string, error) {
	ctx, span := otel.Tracer(userapi.ServerName).Start(ctx, "user.lookup")
	defer span.End()
	span.SetAttributes(attribute.String("user.uid", uid))

	if uid == "" {
		s.metrics.ObserveLookup(metrics.OutcomeInvalid)
		span.SetStatus(codes.Error, "empty uid")
		return "", fmt.Errorf("empty uid: %w", ErrInvalidUID)
	}

	info, err := s.dir.Lookup(ctx, uid)
	switch {
	case err == nil:
		s.metrics.ObserveLookup(metrics.OutcomeFound)
		return info.String(), nil
	case errors.Is(err, ErrNotFound):
		s.metrics.ObserveLookup(metrics.OutcomeNotFound)
		s.logger.DebugContext(ctx, "user not found", "uid", uid)
		return "", err
	default:
		s.metrics.ObserveLookup(metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		s.logger.ErrorContext(ctx, "user lookup failed", "uid", uid, "err", err)
		return "", fmt.Errorf("looking up %s: %w", uid, err)
	}
}
