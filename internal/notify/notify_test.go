package notify

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"tg_harvest/internal/harvester"
	"tg_harvest/internal/model"
	"tg_harvest/internal/pipeline"
)

type sentMsg struct {
	ChatID int64
	Text   string
}

type mockAPI struct {
	mu   sync.Mutex
	sent []sentMsg
	err  error
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text})
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendMessage(t *testing.T) {
	api := &mockAPI{}
	n := newWithAPI(api, -100500, discardLogger())

	n.SendMessage("hello")
	n.SendMessage("world")

	want := []sentMsg{{ChatID: -100500, Text: "hello"}, {ChatID: -100500, Text: "world"}}
	if diff := cmp.Diff(want, api.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestSendMessageFailureIsLogged(t *testing.T) {
	api := &mockAPI{err: errors.New("bad gateway")}
	n := newWithAPI(api, 1, discardLogger())

	n.SendMessage("hello")

	if len(api.sent) != 1 {
		t.Fatalf("expected one attempt, got %d", len(api.sent))
	}
}

func TestNilNotifier(t *testing.T) {
	var n *Notifier
	n.SendMessage("ignored")
}

func TestFormatSummary(t *testing.T) {
	tests := []struct {
		name string
		sum  harvester.Summary
		want string
	}{
		{
			name: "harvest",
			sum: harvester.Summary{
				Kind: model.RunHarvest, RunID: "r1", Total: 3, Succeeded: 2, Failed: 1, Records: 40,
			},
			want: "[harvest] run r1\n\nEndpoints: 3\nSucceeded: 2\nFailed: 1\nRecords saved: 40\n",
		},
		{
			name: "resumed join",
			sum: harvester.Summary{
				Kind: model.RunJoin, RunID: "r2", Total: 5, Succeeded: 2, Failed: 0, Skipped: 3,
			},
			want: "[join] run r2\n\nEndpoints: 5\nSucceeded: 2\nFailed: 0\nSkipped (already done): 3\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FormatSummary(tt.sum)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatCategorize(t *testing.T) {
	res := pipeline.Result{Categorized: 7, Deleted: 2, Records: make([]model.Record, 8)}

	if diff := cmp.Diff("[categorize]\n\nCategorized: 7\n", FormatCategorize(res, false)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	want := "[categorize]\n\nCategorized: 7\nDeleted (location only): 2\nRemaining: 8\n"
	if diff := cmp.Diff(want, FormatCategorize(res, true)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatRuns(t *testing.T) {
	if got := FormatRuns(nil); got != "No runs recorded yet." {
		t.Errorf("FormatRuns(nil) = %q", got)
	}

	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Minute)
	runs := []model.Run{
		{ID: "b", Kind: model.RunHarvest, StartedAt: started, OK: 1, Failed: 2},
		{ID: "a", Kind: model.RunJoin, StartedAt: started, FinishedAt: &finished, OK: 4},
	}

	want := "b  harvest  started 2024-03-01 10:00 UTC  [unfinished]\n" +
		"   1 ok, 2 failed\n" +
		"a  join     started 2024-03-01 10:00 UTC  [finished 2024-03-01 11:30 UTC]\n" +
		"   4 ok, 0 failed\n"
	if diff := cmp.Diff(want, FormatRuns(runs)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatRunResults(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &model.Run{ID: "r1", Kind: model.RunHarvest, StartedAt: started, OK: 1, Failed: 1}

	results := []model.EndpointResult{
		{RunID: "r1", Endpoint: "phangan_chat", Status: model.StatusOK, Records: 12},
		{RunID: "r1", Endpoint: "private_one", Status: model.StatusFailed, Error: "resolve entity: USERNAME_INVALID"},
	}
	want := "r1  harvest  started 2024-03-01 10:00 UTC  [unfinished]\n" +
		"   1 ok, 1 failed\n" +
		"\n" +
		"ok    phangan_chat (12 records)\n" +
		"FAIL  private_one: resolve entity: USERNAME_INVALID\n"
	if diff := cmp.Diff(want, FormatRunResults(run, results)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	empty := FormatRunResults(&model.Run{ID: "r2", Kind: model.RunJoin, StartedAt: started}, nil)
	if !strings.HasSuffix(empty, "\nNo endpoints processed.\n") {
		t.Errorf("unexpected output for empty run: %q", empty)
	}
}
