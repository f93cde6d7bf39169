package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"invigil/internal/identity"
	"invigil/internal/session"
	"invigil/internal/session/store/account"
	"invigil/internal/telemetry"
	"invigil/internal/telemetry/sink"
	id "invigil/pkg/domain"
)

type RouterSuite struct {
	suite.Suite

	store    *account.InMemoryStore
	cache    *session.InMemoryCache
	verifier *identity.Verifier
	sink     *sink.MemorySink
	ingestor *telemetry.Ingestor
	router   http.Handler
	cancel   context.CancelFunc

	student id.UserID
	admin   id.UserID
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.Default()
	s.store = account.NewInMemoryStore()
	s.cache = session.NewInMemoryCache()
	s.verifier = identity.NewVerifier("test-signing-key", "invigil")
	s.sink = sink.NewMemorySink()

	authority := session.NewAuthority(s.store, s.cache, 300*time.Second, time.Second, logger)
	s.ingestor = telemetry.NewIngestor(telemetry.IngestorConfig{
		QueueCapacity: 128,
		RateLimit:     100,
		RateWindow:    time.Minute,
		Classifier:    telemetry.NewClassifier(10 * time.Minute),
		Heartbeats:    telemetry.NewHeartbeatTracker(30 * time.Second),
		Sinks:         []sink.Sink{s.sink},
		Logger:        logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() { _ = s.ingestor.Run(ctx) }()

	s.router = NewRouter(Deps{
		Verifier:  s.verifier,
		Authority: authority,
		Ingestor:  s.ingestor,
		Logger:    logger,
	})

	s.student = s.seedAccount("student", true, []string{"proctoring"})
	s.admin = s.seedAccount("admin", true, []string{"proctoring"})
}

func (s *RouterSuite) TearDownTest() {
	s.cancel()
}

func (s *RouterSuite) seedAccount(role string, active bool, flags []string) id.UserID {
	userID := id.NewUserID()
	s.Require().NoError(s.store.Save(context.Background(), account.Account{
		ID:           userID,
		OrgID:        id.NewOrgID(),
		Role:         role,
		Active:       active,
		FeatureFlags: flags,
	}))
	return userID
}

func (s *RouterSuite) token(userID id.UserID, role string) string {
	token, err := s.verifier.Issue(userID, role, time.Minute)
	s.Require().NoError(err)
	return token
}

func (s *RouterSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) TestHealthzIsPublic() {
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestMetricsIsPublic() {
	rec := s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestMissingCredentialIsUnauthorized() {
	rec := s.do(http.MethodGet, "/session/me", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestExpiredCredentialIsUnauthorized() {
	token, err := s.verifier.Issue(s.student, "student", -time.Minute)
	s.Require().NoError(err)

	rec := s.do(http.MethodGet, "/session/me", token, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestSessionMeReturnsProjection() {
	rec := s.do(http.MethodGet, "/session/me", s.token(s.student, "student"), nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var projection session.Projection
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &projection))
	s.Equal(s.student, projection.UserID)
	s.Equal("student", projection.Role)
	s.True(projection.Active)
	s.Contains(projection.FeatureFlags, "proctoring")
}

func (s *RouterSuite) TestRequestIDIsEchoed() {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal("req-42", rec.Header().Get("X-Request-ID"))
}

func (s *RouterSuite) TestHeaderCredentialBeatsCookie() {
	s.Run("header subject wins over cookie subject", func() {
		req := httptest.NewRequest(http.MethodGet, "/session/me", nil)
		req.Header.Set("Authorization", "Bearer "+s.token(s.admin, "admin"))
		req.AddCookie(&http.Cookie{Name: "invigil_token", Value: s.token(s.student, "student")})
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		s.Require().Equal(http.StatusOK, rec.Code)
		var projection session.Projection
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &projection))
		s.Equal(s.admin, projection.UserID)
	})

	s.Run("valid header outranks expired cookie", func() {
		expired, err := s.verifier.Issue(s.student, "student", -time.Minute)
		s.Require().NoError(err)

		req := httptest.NewRequest(http.MethodGet, "/session/me", nil)
		req.Header.Set("Authorization", "Bearer "+s.token(s.student, "student"))
		req.AddCookie(&http.Cookie{Name: "invigil_token", Value: expired})
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("rejected header is not rescued by valid cookie", func() {
		req := httptest.NewRequest(http.MethodGet, "/session/me", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		req.AddCookie(&http.Cookie{Name: "invigil_token", Value: s.token(s.student, "student")})
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}

func (s *RouterSuite) TestSuspendTakesEffectBeforeCacheTTL() {
	studentToken := s.token(s.student, "student")

	// Warm the cache.
	rec := s.do(http.MethodGet, "/session/me", studentToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/admin/accounts/"+s.student.String()+"/suspend", s.token(s.admin, "admin"), nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	// Next request must fail even though the cached entry was within TTL.
	rec = s.do(http.MethodGet, "/session/me", studentToken, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestReinstateRestoresAccess() {
	s.Require().Equal(http.StatusOK,
		s.do(http.MethodPost, "/admin/accounts/"+s.student.String()+"/suspend", s.token(s.admin, "admin"), nil).Code)
	s.Require().Equal(http.StatusUnauthorized,
		s.do(http.MethodGet, "/session/me", s.token(s.student, "student"), nil).Code)

	s.Require().Equal(http.StatusOK,
		s.do(http.MethodPost, "/admin/accounts/"+s.student.String()+"/reinstate", s.token(s.admin, "admin"), nil).Code)
	s.Equal(http.StatusOK,
		s.do(http.MethodGet, "/session/me", s.token(s.student, "student"), nil).Code)
}

func (s *RouterSuite) TestSuspendRequiresAdminRole() {
	rec := s.do(http.MethodPost, "/admin/accounts/"+s.admin.String()+"/suspend", s.token(s.student, "student"), nil)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *RouterSuite) TestSuspendUnknownAccountIsNotFound() {
	rec := s.do(http.MethodPost, "/admin/accounts/"+id.NewUserID().String()+"/suspend", s.token(s.admin, "admin"), nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RouterSuite) TestSuspendRejectsMalformedAccountID() {
	rec := s.do(http.MethodPost, "/admin/accounts/not-a-uuid/suspend", s.token(s.admin, "admin"), nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RouterSuite) TestTelemetryRequiresFeatureFlag() {
	bare := s.seedAccount("student", true, nil)
	rec := s.do(http.MethodPost, "/telemetry/events", s.token(bare, "student"), map[string]any{
		"exam_id":    id.NewExamID().String(),
		"event_type": "tab-blur",
	})
	s.Equal(http.StatusForbidden, rec.Code)

	var envelope map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &envelope))
	s.Equal("feature_disabled", envelope["error"])
}

func (s *RouterSuite) TestEventAcceptedAndDelivered() {
	examID := id.NewExamID()
	rec := s.do(http.MethodPost, "/telemetry/events", s.token(s.student, "student"), map[string]any{
		"exam_id":    examID.String(),
		"event_type": "tab-blur",
		"message":    "window lost focus",
	})
	s.Require().Equal(http.StatusAccepted, rec.Code)

	s.Require().Eventually(func() bool {
		return len(s.sink.Records()) == 1
	}, time.Second, time.Millisecond)

	record := s.sink.Records()[0]
	s.Equal("monitoring", record.Kind)
	s.Equal(s.student.String(), record.Key)

	var event telemetry.MonitoringEvent
	s.Require().NoError(json.Unmarshal(record.Value, &event))
	s.Equal(examID, event.ExamID)
	s.Equal(s.student, event.StudentID, "subject defaults to the authenticated user")
	s.False(event.EmittedAt.IsZero())
}

func (s *RouterSuite) TestViolationIsClassifiedBeforeDelivery() {
	rec := s.do(http.MethodPost, "/telemetry/violations", s.token(s.student, "student"), map[string]any{
		"exam_id":       id.NewExamID().String(),
		"event_type":    "secondary-display",
		"severity":      "critical",
		"auto_detected": true,
	})
	s.Require().Equal(http.StatusAccepted, rec.Code)

	s.Require().Eventually(func() bool {
		return len(s.sink.Records()) == 1
	}, time.Second, time.Millisecond)

	record := s.sink.Records()[0]
	s.Equal("violation", record.Kind)

	var classified telemetry.ClassifiedViolation
	s.Require().NoError(json.Unmarshal(record.Value, &classified))
	s.Equal(telemetry.SeverityCritical, classified.Decision.Severity)
	s.Equal(telemetry.ActionTerminateSession, classified.Decision.Action)
}

func (s *RouterSuite) TestEventSubjectMismatchIsForbidden() {
	rec := s.do(http.MethodPost, "/telemetry/events", s.token(s.student, "student"), map[string]any{
		"exam_id":    id.NewExamID().String(),
		"student_id": id.NewUserID().String(),
		"event_type": "tab-blur",
	})
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *RouterSuite) TestEventValidation() {
	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing exam id", map[string]any{"event_type": "tab-blur"}},
		{"missing event type", map[string]any{"exam_id": id.NewExamID().String()}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			rec := s.do(http.MethodPost, "/telemetry/events", s.token(s.student, "student"), tc.body)
			s.Equal(http.StatusBadRequest, rec.Code)
		})
	}
}

func (s *RouterSuite) TestEventRejectsUnknownFields() {
	rec := s.do(http.MethodPost, "/telemetry/events", s.token(s.student, "student"), map[string]any{
		"exam_id":    id.NewExamID().String(),
		"event_type": "tab-blur",
		"surprise":   true,
	})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RouterSuite) TestHeartbeatAccepted() {
	rec := s.do(http.MethodPost, "/telemetry/heartbeat", s.token(s.student, "student"), map[string]any{
		"exam_id": id.NewExamID().String(),
	})
	s.Equal(http.StatusNoContent, rec.Code)
	s.Empty(s.sink.Records(), "heartbeats never reach the archive sink")
}

func (s *RouterSuite) TestTelemetryRateLimitSurfacesAs429() {
	// Rebuild the ingestor with a tight limit; the router captures it by
	// reference so a fresh router is needed.
	logger := slog.Default()
	authority := session.NewAuthority(s.store, s.cache, 300*time.Second, time.Second, logger)
	tight := telemetry.NewIngestor(telemetry.IngestorConfig{
		QueueCapacity: 16,
		RateLimit:     2,
		RateWindow:    time.Minute,
		Classifier:    telemetry.NewClassifier(10 * time.Minute),
		Heartbeats:    telemetry.NewHeartbeatTracker(30 * time.Second),
		Sinks:         []sink.Sink{s.sink},
		Logger:        logger,
	})
	s.router = NewRouter(Deps{Verifier: s.verifier, Authority: authority, Ingestor: tight, Logger: logger})

	token := s.token(s.student, "student")
	body := func(n int) map[string]any {
		return map[string]any{
			"exam_id":    id.NewExamID().String(),
			"event_type": "tab-blur",
			"message":    fmt.Sprintf("event %d", n),
		}
	}
	s.Require().Equal(http.StatusAccepted, s.do(http.MethodPost, "/telemetry/events", token, body(0)).Code)
	s.Require().Equal(http.StatusAccepted, s.do(http.MethodPost, "/telemetry/events", token, body(1)).Code)
	s.Equal(http.StatusTooManyRequests, s.do(http.MethodPost, "/telemetry/events", token, body(2)).Code)
}

func TestCookieCredentialAccepted(t *testing.T) {
	logger := slog.Default()
	store := account.NewInMemoryStore()
	verifier := identity.NewVerifier("test-signing-key", "invigil")
	authority := session.NewAuthority(store, session.NewInMemoryCache(), 300*time.Second, time.Second, logger)
	ingestor := telemetry.NewIngestor(telemetry.IngestorConfig{
		Classifier: telemetry.NewClassifier(10 * time.Minute),
		Heartbeats: telemetry.NewHeartbeatTracker(30 * time.Second),
		Logger:     logger,
	})
	router := NewRouter(Deps{Verifier: verifier, Authority: authority, Ingestor: ingestor, Logger: logger})

	userID := id.NewUserID()
	require.NoError(t, store.Save(context.Background(), account.Account{
		ID: userID, OrgID: id.NewOrgID(), Role: "student", Active: true,
	}))
	token, err := verifier.Issue(userID, "student", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/session/me", nil)
	req.AddCookie(&http.Cookie{Name: "invigil_token", Value: token})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
