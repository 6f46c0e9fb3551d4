//go:build integration

package relay_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	id "minimizer/pkg/domain"
	audit "minimizer/pkg/platform/audit"
	"minimizer/pkg/platform/audit/relay"
	auditpostgres "minimizer/pkg/platform/audit/store/postgres"
	"minimizer/pkg/testutil/containers"
)

type RelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	brokers  []string
	store    *auditpostgres.Store
	ctx      context.Context
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.brokers = mgr.GetRedpanda(s.T()).Brokers
	s.store = auditpostgres.New(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "outbox", "audit_events"))
}

func (s *RelaySuite) TestFlushPublishesOutboxToKafka() {
	topic := "audit-" + time.Now().Format("150405.000000")

	producer, err := relay.NewKafkaClient(s.brokers, topic)
	s.Require().NoError(err)
	defer producer.Close()
	s.Require().NoError(relay.EnsureTopic(s.ctx, producer, topic, 1, 1))

	for _, pid := range []string{"P1", "P2", "P3"} {
		event, err := audit.NewEvent("T1", audit.ActionPatientEnrolled, "alice", "req-1", time.Now(),
			map[string]string{"patient_id": pid})
		s.Require().NoError(err)
		s.Require().NoError(s.store.Append(s.ctx, event))
	}

	r := relay.New(s.store, producer, topic,
		relay.WithBatchSize(2),
		relay.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	n, err := r.Flush(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)

	pending, err := s.store.PendingOutbox(s.ctx)
	s.Require().NoError(err)
	s.Zero(pending)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	var records []*kgo.Record
	for len(records) < 3 && ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		fetches.EachRecord(func(rec *kgo.Record) {
			records = append(records, rec)
		})
	}
	s.Require().Len(records, 3)

	for _, rec := range records {
		s.Equal("T1", string(rec.Key))
		s.Equal(string(audit.ActionPatientEnrolled), header(rec, "event_type"))
		s.NotEmpty(header(rec, "outbox_id"))

		var event audit.Event
		s.Require().NoError(json.Unmarshal(rec.Value, &event))
		s.Equal(id.TrialID("T1"), event.TrialID)
		s.Equal(id.Username("alice"), event.Actor)
	}

	n, err = r.Flush(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func header(rec *kgo.Record, key string) string {
	for _, h := range rec.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
