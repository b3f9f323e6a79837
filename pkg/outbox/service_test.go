package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

func TestEmitWritesEnvelopeKeyedByRowID(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), logger.Nop())
	svc.now = func() time.Time { return baseTime }
	payoutID := uuid.New()

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventPayoutRequested,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payoutID,
		Actor:         &ActorRef{Role: string(enums.ActorRoleSystem)},
		Data:          map[string]string{"amount": "40.00"},
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row, "aggregate_id = ?", payoutID).Error)
	envelope, err := DecodeEnvelope(row.Payload)
	require.NoError(t, err)
	require.Equal(t, row.ID.String(), envelope.EventID)
	require.Equal(t, currentEnvelopeVersion, envelope.Version)
	require.True(t, baseTime.Equal(envelope.OccurredAt))
	require.JSONEq(t, `{"amount":"40.00"}`, string(envelope.Data))
}

func TestEmitRejectsIncompleteEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	ctx := context.Background()
	valid := DomainEvent{EventType: enums.EventPayoutRequested, AggregateType: enums.AggregatePayout, AggregateID: uuid.New()}

	require.Error(t, svc.Emit(ctx, nil, valid))

	bad := valid
	bad.EventType = "payout_teleported"
	require.Error(t, svc.Emit(ctx, conn, bad))

	bad = valid
	bad.AggregateID = uuid.Nil
	require.Error(t, svc.Emit(ctx, conn, bad))

	bad = valid
	bad.Data = make(chan int)
	require.Error(t, svc.Emit(ctx, conn, bad))

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}
