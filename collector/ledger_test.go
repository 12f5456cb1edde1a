package collector_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networkteam/netinspector/collector"
)

func record(url string) collector.Request {
	return collector.Request{
		ID:             uuid.Must(uuid.NewV7()),
		Surface:        collector.SurfaceHTTP,
		Method:         "GET",
		URL:            url,
		RequestHeaders: map[string]string{},
		Status:         collector.Pending{},
	}
}

func TestLedger_KeepsNewestRecords(t *testing.T) {
	t.Parallel()

	ledger := collector.NewLedger(0)
	defer ledger.Close()

	assert.Equal(t, collector.DefaultCapacity, ledger.Capacity())

	for i := 1; i <= 60; i++ {
		ledger.Append(record(fmt.Sprintf("/r%d", i)))
	}

	snapshot := ledger.Snapshot()
	require.Len(t, snapshot, 50)
	assert.Equal(t, "/r60", snapshot[0].URL)
	assert.Equal(t, "/r11", snapshot[49].URL)
	assert.Equal(t, 50, ledger.Len())
}

func TestLedger_UpdateByID(t *testing.T) {
	t.Parallel()

	ledger := collector.NewLedger(3)
	defer ledger.Close()

	rec := record("/a")
	ledger.Append(rec)
	ledger.Append(record("/b"))

	updated := ledger.UpdateByID(rec.ID, func(r *collector.Request) {
		r.Status = collector.Success{Code: 200, Text: "OK"}
		// The identity cannot be changed by a mutation
		r.ID = uuid.Nil
	})
	require.True(t, updated)

	got, ok := ledger.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, collector.Success{Code: 200, Text: "OK"}, got.Status)

	// Position is unchanged: /b is still the newest
	snapshot := ledger.Snapshot()
	assert.Equal(t, "/b", snapshot[0].URL)
	assert.Equal(t, "/a", snapshot[1].URL)
}

func TestLedger_UpdateUnknownIDIsDropped(t *testing.T) {
	t.Parallel()

	ledger := collector.NewLedger(1)
	defer ledger.Close()

	evicted := record("/old")
	ledger.Append(evicted)
	ledger.Append(record("/new"))

	changes := collector.Collect(t, ledger.Subscribe)

	assert.False(t, ledger.UpdateByID(evicted.ID, func(r *collector.Request) {
		r.Status = collector.Failure{Message: "late"}
	}))
	assert.False(t, ledger.UpdateByID(uuid.Must(uuid.NewV7()), func(*collector.Request) {}))

	ledger.Clear()

	// Only the clear was signalled
	items := changes.Wait(1)
	assert.Equal(t, collector.ChangeCleared, items[0].Kind)
	assert.Len(t, changes.Stop(), 1)
}

func TestLedger_ChangeSignals(t *testing.T) {
	t.Parallel()

	ledger := collector.NewLedger(10)
	defer ledger.Close()

	changes := collector.Collect(t, ledger.Subscribe)

	rec := record("/x")
	ledger.Append(rec)
	ledger.UpdateByID(rec.ID, func(r *collector.Request) {
		r.Status = collector.Success{Code: 204}
	})
	ledger.Clear()

	items := changes.Wait(3)
	assert.Equal(t, []collector.Change{
		{Kind: collector.ChangeAppended, ID: rec.ID, Size: 1},
		{Kind: collector.ChangeUpdated, ID: rec.ID, Size: 1},
		{Kind: collector.ChangeCleared, Size: 0},
	}, items[:3])
}

func TestLedger_SubscribeFunc(t *testing.T) {
	t.Parallel()

	ledger := collector.NewLedger(10)
	defer ledger.Close()

	received := make(chan collector.Change, 1)
	unsubscribe := ledger.SubscribeFunc(func(c collector.Change) {
		received <- c
	})
	defer unsubscribe()

	ledger.Append(record("/y"))

	select {
	case c := <-received:
		assert.Equal(t, collector.ChangeAppended, c.Kind)
	case <-time.After(time.Second):
		t.Fatal("no change received")
	}
}

func TestLedger_SubscriberMissesEarlierChanges(t *testing.T) {
	t.Parallel()

	ledger := collector.NewLedger(10)
	defer ledger.Close()

	ledger.Append(record("/before"))

	ch := ledger.Subscribe(t.Context())
	select {
	case c := <-ch:
		t.Fatalf("unexpected change %+v", c)
	case <-time.After(50 * time.Millisecond):
	}

	later := record("/after")
	ledger.Append(later)

	select {
	case c := <-ch:
		assert.Equal(t, collector.ChangeAppended, c.Kind)
		assert.Equal(t, later.ID, c.ID)
		assert.Equal(t, 2, c.Size)
	case <-time.After(time.Second):
		t.Fatal("no change received")
	}
}

func TestLedger_SlowSubscriberReceivesLastChange(t *testing.T) {
	t.Parallel()

	ledger := collector.NewLedgerWithOptions(50, collector.LedgerOptions{
		NotifierOptions: &collector.NotifierOptions{SubscriberBufferSize: 4},
	})
	defer ledger.Close()

	var (
		mu   sync.Mutex
		last collector.Change
	)
	unsubscribe := ledger.SubscribeFunc(func(c collector.Change) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		last = c
		mu.Unlock()
	})
	defer unsubscribe()

	var final collector.Request
	for i := 0; i < 300; i++ {
		final = record("/burst")
		ledger.Append(final)
	}
	ledger.UpdateByID(final.ID, func(r *collector.Request) {
		r.Status = collector.Success{Code: 200}
	})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last.Kind == collector.ChangeUpdated && last.ID == final.ID
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLedger_SnapshotIsIsolated(t *testing.T) {
	t.Parallel()

	ledger := collector.NewLedger(10)
	defer ledger.Close()

	rec := record("/z")
	ledger.Append(rec)

	snapshot := ledger.Snapshot()
	ledger.UpdateByID(rec.ID, func(r *collector.Request) {
		r.Status = collector.Failure{Message: "boom"}
	})
	ledger.Append(record("/later"))

	require.Len(t, snapshot, 1)
	assert.Equal(t, collector.Pending{}, snapshot[0].Status)
}

func TestLedger_ClearEmptiesSnapshot(t *testing.T) {
	t.Parallel()

	ledger := collector.NewLedger(10)
	defer ledger.Close()

	ledger.Append(record("/1"))
	ledger.Append(record("/2"))
	ledger.Clear()

	assert.Empty(t, ledger.Snapshot())
	assert.Equal(t, 0, ledger.Len())

	ledger.Append(record("/3"))
	assert.Len(t, ledger.Snapshot(), 1)
}

func TestLedger_Metrics(t *testing.T) {
	t.Parallel()

	metrics := collector.NewMetricsWithRegistry(prometheus.NewRegistry())
	ledger := collector.NewLedgerWithOptions(2, collector.LedgerOptions{Metrics: metrics})
	defer ledger.Close()

	ledger.Append(record("/1"))
	ledger.Append(record("/2"))
	ledger.Append(record("/3"))
	ledger.UpdateByID(uuid.Must(uuid.NewV7()), func(*collector.Request) {})

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LedgerEvictions))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DroppedUpdates))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.LedgerSize))
}
