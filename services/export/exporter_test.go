package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/analytics-tools/config"
	"github.com/upb/analytics-tools/internal/shared"
	"github.com/upb/analytics-tools/services"
	"github.com/upb/analytics-tools/services/mixpanel"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// MockObjectStore is a mock implementation of ObjectStore
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Upload(ctx context.Context, localPath, name string) (string, error) {
	args := m.Called(ctx, localPath, name)
	return args.String(0), args.Error(1)
}

// staticFetcher returns a prepared result.
type staticFetcher struct {
	result mixpanel.FetchResult
}

func (f staticFetcher) Fetch(context.Context, mixpanel.DateRange) mixpanel.FetchResult {
	return f.result
}

type exportFixture struct {
	exporter *Exporter
	output   string
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T, fetcher Fetcher) *exportFixture {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	output := filepath.Join(t.TempDir(), "mixpanel_events.csv")

	return &exportFixture{
		exporter: NewExporter(fetcher, NewProjector("_"), NewCSVWriter(logger), output, logger),
		output:   output,
		logs:     logs,
	}
}

func newMixpanelServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func newMixpanelClient(url string, logger *zap.Logger) *mixpanel.Client {
	return mixpanel.NewClient(config.MixpanelConfig{
		APISecret: "secret",
		ProjectID: "1",
		ExportURL: url,
	}, logger)
}

func januaryRange() mixpanel.DateRange {
	return mixpanel.DateRange{
		From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestExporter_Run_TwoEvents(t *testing.T) {
	server := newMixpanelServer(t,
		`{"event":"login","properties":{"ip":"1.2.3.4"}}`+"\n"+
			`{"event":"click","properties":{"target":"btn"}}`+"\n")

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	output := filepath.Join(t.TempDir(), "mixpanel_events.csv")
	exporter := NewExporter(newMixpanelClient(server.URL, logger), NewProjector("_"), NewCSVWriter(logger), output, logger)

	summary, err := exporter.Run(context.Background(), januaryRange())

	require.NoError(t, err)
	assert.True(t, summary.Written)
	assert.Equal(t, 2, summary.Events)
	assert.Equal(t, []string{"event_name", "ip", "target"}, summary.Columns)
	assert.NotEmpty(t, summary.RunID)

	assert.Equal(t, [][]string{
		{"event_name", "ip", "target"},
		{"login", "1.2.3.4", ""},
		{"click", "", "btn"},
	}, readCSV(t, output))

	for _, entry := range logs.FilterMessage("export complete").All() {
		assert.Equal(t, summary.RunID, entry.ContextMap()["run_id"])
	}
}

func TestExporter_Run_EmptyResponse(t *testing.T) {
	server := newMixpanelServer(t, "")
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	output := filepath.Join(t.TempDir(), "mixpanel_events.csv")
	exporter := NewExporter(newMixpanelClient(server.URL, logger), NewProjector("_"), NewCSVWriter(logger), output, logger)

	summary, err := exporter.Run(context.Background(), januaryRange())

	require.NoError(t, err)
	assert.False(t, summary.Written)
	assert.Zero(t, summary.Events)
	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, 1, logs.FilterMessageSnippet("no data retrieved").Len())
}

func TestExporter_Run_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	output := filepath.Join(t.TempDir(), "mixpanel_events.csv")
	exporter := NewExporter(newMixpanelClient(url, logger), NewProjector("_"), NewCSVWriter(logger), output, logger)

	summary, err := exporter.Run(context.Background(), januaryRange())

	require.NoError(t, err, "transport failures never reach the caller")
	assert.False(t, summary.Written)
	assert.Equal(t, 1, logs.FilterMessage("export request failed").Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("no data retrieved").Len())
	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExporter_Run_FetchFailed(t *testing.T) {
	fx := newFixture(t, staticFetcher{result: &mixpanel.FetchFailed{Reason: services.ErrTransport}})

	summary, err := fx.exporter.Run(context.Background(), januaryRange())

	require.NoError(t, err)
	assert.False(t, summary.Written)
}

func TestExporter_Run_StreamInterrupted(t *testing.T) {
	body := io.MultiReader(
		strings.NewReader(`{"event":"login","properties":{"ip":"1.2.3.4"}}`+"\n"),
		&failingReader{err: errors.New("connection reset by peer")},
	)
	stream := mixpanel.NewEventStream(body, zap.NewNop())
	fx := newFixture(t, staticFetcher{result: &mixpanel.Fetched{Stream: stream}})

	summary, err := fx.exporter.Run(context.Background(), januaryRange())

	require.NoError(t, err)
	assert.False(t, summary.Written, "partial streams are discarded")
	_, statErr := os.Stat(fx.output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExporter_Run_MalformedLine(t *testing.T) {
	stream := mixpanel.NewEventStream(strings.NewReader("{\"event\":\"a\"}\n{oops\n"), zap.NewNop())
	fx := newFixture(t, staticFetcher{result: &mixpanel.Fetched{Stream: stream}})

	_, err := fx.exporter.Run(context.Background(), januaryRange())

	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrMalformedEvent)
}

func TestExporter_Run_MissingEventField(t *testing.T) {
	server := newMixpanelServer(t,
		`{"event":"login","properties":{"ip":"1.2.3.4"}}`+"\n"+
			`{"properties":{"target":"btn"}}`+"\n")
	fx := newFixture(t, newMixpanelClient(server.URL, zap.NewNop()))

	summary, err := fx.exporter.Run(context.Background(), januaryRange())

	require.Error(t, err)
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, services.ErrMissingEventField)
	assert.Contains(t, err.Error(), "event 1")
	_, statErr := os.Stat(fx.output)
	assert.True(t, os.IsNotExist(statErr), "nothing is written when projection fails")
}

func TestExporter_Run_InvalidRange(t *testing.T) {
	fx := newFixture(t, staticFetcher{})
	r := januaryRange()

	_, err := fx.exporter.Run(context.Background(), mixpanel.DateRange{From: r.To, To: r.From})

	assert.True(t, services.IsValidationError(err))
}

func TestExporter_Run_UnexpectedResult(t *testing.T) {
	fx := newFixture(t, staticFetcher{result: nil})

	_, err := fx.exporter.Run(context.Background(), januaryRange())

	assert.Equal(t, services.ErrorTypeInternal, services.GetErrorType(err))
}

func TestExporter_Run_Upload(t *testing.T) {
	server := newMixpanelServer(t, `{"event":"login","properties":{"ip":"1.2.3.4"}}`+"\n")
	fx := newFixture(t, newMixpanelClient(server.URL, zap.NewNop()))

	store := &MockObjectStore{}
	store.On("Upload", mock.Anything, fx.output, "mixpanel_events_2024-01-01_2024-01-02.csv").
		Return("exports/mixpanel_events_2024-01-01_2024-01-02.csv", nil)
	fx.exporter.WithObjectStore(store)

	ctx := shared.WithRunID(context.Background(), "run-42")
	summary, err := fx.exporter.Run(ctx, januaryRange())

	require.NoError(t, err)
	assert.Equal(t, "run-42", summary.RunID)
	assert.Equal(t, "exports/mixpanel_events_2024-01-01_2024-01-02.csv", summary.ObjectKey)
	store.AssertExpectations(t)
}

func TestExporter_Run_UploadFailure(t *testing.T) {
	server := newMixpanelServer(t, `{"event":"login"}`+"\n")
	fx := newFixture(t, newMixpanelClient(server.URL, zap.NewNop()))

	store := &MockObjectStore{}
	store.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return("", services.ErrUploadFailed)
	fx.exporter.WithObjectStore(store)

	_, err := fx.exporter.Run(context.Background(), januaryRange())

	assert.ErrorIs(t, err, services.ErrUploadFailed)
	_, statErr := os.Stat(fx.output)
	assert.NoError(t, statErr, "the local file stays when the upload fails")
}

func TestExporter_Run_NoUploadWithoutData(t *testing.T) {
	server := newMixpanelServer(t, "")
	fx := newFixture(t, newMixpanelClient(server.URL, zap.NewNop()))
	store := &MockObjectStore{}
	fx.exporter.WithObjectStore(store)

	_, err := fx.exporter.Run(context.Background(), januaryRange())

	require.NoError(t, err)
	store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
}

func TestExporter_Run_RandomEvents(t *testing.T) {
	faker := gofakeit.New(7)
	var body strings.Builder
	names := map[string]bool{}
	const n = 50
	for i := 0; i < n; i++ {
		name := faker.RandomString([]string{"login", "click", "purchase", "logout"})
		names[name] = true
		fmt.Fprintf(&body, `{"event":%q,"properties":{"ip":%q,"city":%q,"browser":{"name":%q}}}`+"\n",
			name, faker.IPv4Address(), faker.City(), faker.RandomString([]string{"chrome", "firefox"}))
	}
	server := newMixpanelServer(t, body.String())
	fx := newFixture(t, newMixpanelClient(server.URL, zap.NewNop()))

	summary, err := fx.exporter.Run(context.Background(), januaryRange())

	require.NoError(t, err)
	assert.Equal(t, n, summary.Events)
	rows := readCSV(t, fx.output)
	require.Len(t, rows, n+1)
	assert.Equal(t, []string{"browser_name", "city", "event_name", "ip"}, rows[0])
	for _, row := range rows[1:] {
		assert.Len(t, row, 4)
		assert.True(t, names[row[2]])
	}
}

type failingReader struct {
	err error
}

func (r *failingReader) Read([]byte) (int, error) {
	return 0, r.err
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "mixpanel_events_2024-01-01_2024-01-02.csv", ObjectName(januaryRange()))
}

func TestExporter_Run_Cancelled(t *testing.T) {
	server := newMixpanelServer(t, `{"event":"login","properties":{"ip":"1.2.3.4"}}`+"\n")
	fx := newFixture(t, newMixpanelClient(server.URL, zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := fx.exporter.Run(ctx, januaryRange())

	require.Error(t, err)
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(fx.output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExporter_Run_CancelledMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	body := io.MultiReader(
		strings.NewReader(`{"event":"login"}`+"\n"),
		&cancellingReader{cancel: cancel},
	)
	stream := mixpanel.NewEventStream(body, zap.NewNop())
	fx := newFixture(t, staticFetcher{result: &mixpanel.Fetched{Stream: stream}})

	_, err := fx.exporter.Run(ctx, januaryRange())

	assert.ErrorIs(t, err, context.Canceled)
}

// cancellingReader cancels the run and then fails the read, as an HTTP body
// does when its request context is cancelled.
type cancellingReader struct {
	cancel context.CancelFunc
}

func (r *cancellingReader) Read([]byte) (int, error) {
	r.cancel()
	return 0, context.Canceled
}
