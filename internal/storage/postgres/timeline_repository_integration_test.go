package postgres

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

func TestTimelineRepository_AppendAndList_Integration(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	base := time.Now().UTC().Truncate(time.Microsecond)

	events := []domain.TimelineEvent{
		{OrderID: 1, Type: "OrderCreated", Occurred: base},
		{OrderID: 1, Type: "OrderFulfilled", Occurred: base.Add(time.Second)},
		{OrderID: 2, Type: "OrderCreated", Occurred: base},
	}
	for _, event := range events {
		if err := repo.Append(event); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := repo.List(1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events for order 1, got %d", len(got))
	}
	if got[0].Type != "OrderCreated" || got[1].Type != "OrderFulfilled" {
		t.Fatalf("unexpected events: %v", got)
	}
}
