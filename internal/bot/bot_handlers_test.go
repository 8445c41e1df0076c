package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"pagewatch/internal/config"
	"pagewatch/internal/model"
	"pagewatch/internal/registry"
	"pagewatch/internal/snapshot"
	"pagewatch/internal/storage"
)

// --- mocks ---

type sentMsg struct {
	ChatID int64
	Text   string
	Markup any
}

type mockAPI struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text, Markup: msg.ReplyMarkup})
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) last() sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMsg{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockAPI) lastText() string {
	return m.last().Text
}

func (m *mockAPI) allTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Text
	}
	return out
}

func (m *mockAPI) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

type mockRunner struct {
	checked []string
}

func (r *mockRunner) CheckSites(_ context.Context, sites []model.Site) []model.Outcome {
	var out []model.Outcome
	for _, s := range sites {
		r.checked = append(r.checked, s.URL)
		out = append(out, model.Outcome{SiteID: s.ID, URL: s.URL, Name: s.Name, Kind: model.OutcomeUnchanged})
	}
	return out
}

// --- helpers ---

func newTestBot(t *testing.T) (*Bot, *mockAPI, *registry.Registry, *mockRunner) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	snaps, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new snapshot store: %v", err)
	}

	api := &mockAPI{}
	reg := registry.New(store, snaps)
	runner := &mockRunner{}
	b := &Bot{
		api:      api,
		registry: reg,
		runner:   runner,
		cfg:      &config.Config{CheckIntervalMinutes: 60, TelegramChatID: 555},
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return b, api, reg, runner
}

func seedSite(t *testing.T, reg *registry.Registry, name, url string) *model.Site {
	t.Helper()
	s, err := reg.Add(context.Background(), registry.AddRequest{URL: url, Name: name})
	if err != nil {
		t.Fatalf("seed site: %v", err)
	}
	return s
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

// --- handler tests ---

func TestHandleStart(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	b.handleStart(100)
	requireContains(t, api.lastText(), "Welcome to Page Watch")
}

func TestHandleHelp(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	b.handleHelp(100)
	requireContains(t, api.lastText(), "/add")
	requireContains(t, api.lastText(), "/check")
}

func TestHandleAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("no args", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleAdd(ctx, 100, "")
		requireContains(t, api.lastText(), "usage")
	})

	t.Run("success with selector", func(t *testing.T) {
		b, api, reg, _ := newTestBot(t)
		b.handleAdd(ctx, 100, "https://example.com/news #headlines")
		requireContains(t, api.lastText(), "Site added")
		requireContains(t, api.lastText(), "Selector: #headlines")

		site, err := reg.Get(ctx, "https://example.com/news")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if diff := cmp.Diff("#headlines", site.Selector); diff != "" {
			t.Errorf("selector mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		b, api, reg, _ := newTestBot(t)
		seedSite(t, reg, "Ex", "https://example.com")
		b.handleAdd(ctx, 100, "https://example.com")
		requireContains(t, api.lastText(), "already being watched")
	})

	t.Run("invalid url", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleAdd(ctx, 100, "example.com")
		requireContains(t, api.lastText(), "Failed to add site")
	})

	t.Run("invalid selector", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleAdd(ctx, 100, "https://example.com div[")
		requireContains(t, api.lastText(), "invalid selector")
	})
}

func TestHandleList(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleList(ctx, 100)
		requireContains(t, api.lastText(), "No sites")
	})

	t.Run("with sites", func(t *testing.T) {
		b, api, reg, _ := newTestBot(t)
		seedSite(t, reg, "Alpha", "https://a.com")
		seedSite(t, reg, "Beta", "https://b.com")
		b.handleList(ctx, 100)
		requireContains(t, api.lastText(), "#1 Alpha")
		requireContains(t, api.lastText(), "#2 Beta")
		requireContains(t, api.lastText(), "every 60 min")
	})
}

func TestHandleInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		b, api, reg, _ := newTestBot(t)
		seedSite(t, reg, "Alpha", "https://a.com")
		b.handleInfo(ctx, 100, "1")
		last := api.last()
		requireContains(t, last.Text, "#1 Alpha [pending]")
		requireContains(t, last.Text, "URL: https://a.com")
		markup, ok := last.Markup.(tgbotapi.InlineKeyboardMarkup)
		if !ok {
			t.Fatalf("expected inline keyboard, got %T", last.Markup)
		}
		var data []string
		for _, btn := range markup.InlineKeyboard[0] {
			data = append(data, *btn.CallbackData)
		}
		if diff := cmp.Diff([]string{"check:1", "delete_confirm:1"}, data); diff != "" {
			t.Errorf("callback data (-want +got):\n%s", diff)
		}
	})

	t.Run("not found", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleInfo(ctx, 100, "9")
		requireContains(t, api.lastText(), "Site #9 not found")
	})

	t.Run("bad args", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleInfo(ctx, 100, "")
		requireContains(t, api.lastText(), "Usage: /info")
	})
}

func TestHandleRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("by id", func(t *testing.T) {
		b, api, reg, _ := newTestBot(t)
		seedSite(t, reg, "Alpha", "https://a.com")
		b.handleRemove(ctx, 100, "1")
		requireContains(t, api.lastText(), "Site #1 \"Alpha\" deleted")
		if _, err := reg.GetByID(ctx, 1); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("by url", func(t *testing.T) {
		b, api, reg, _ := newTestBot(t)
		seedSite(t, reg, "Alpha", "https://a.com")
		b.handleRemove(ctx, 100, "https://a.com")
		requireContains(t, api.lastText(), "https://a.com deleted")
	})

	t.Run("unknown id", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleRemove(ctx, 100, "3")
		requireContains(t, api.lastText(), "Site #3 not found")
	})

	t.Run("unknown url", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleRemove(ctx, 100, "https://nope.com")
		requireContains(t, api.lastText(), "is not being watched")
	})

	t.Run("no args", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleRemove(ctx, 100, "")
		requireContains(t, api.lastText(), "Usage: /remove")
	})
}

func TestHandleRename(t *testing.T) {
	ctx := context.Background()
	b, api, reg, _ := newTestBot(t)
	seedSite(t, reg, "Old", "https://a.com")

	b.handleRename(ctx, 100, "1 Release Notes")
	requireContains(t, api.lastText(), "renamed to \"Release Notes\"")
	site, _ := reg.GetByID(ctx, 1)
	if diff := cmp.Diff("Release Notes", site.Name); diff != "" {
		t.Errorf("name mismatch (-want +got):\n%s", diff)
	}

	b.handleRename(ctx, 100, "7 Ghost")
	requireContains(t, api.lastText(), "Site #7 not found")

	b.handleRename(ctx, 100, "1")
	requireContains(t, api.lastText(), "usage")
}

func TestHandleInterval(t *testing.T) {
	ctx := context.Background()
	b, api, reg, _ := newTestBot(t)
	seedSite(t, reg, "A", "https://a.com")

	b.handleInterval(ctx, 100, "1 15")
	requireContains(t, api.lastText(), "interval set to 15 min")

	b.handleInterval(ctx, 100, "1 0")
	requireContains(t, api.lastText(), "interval set to 60 min")
	site, _ := reg.GetByID(ctx, 1)
	if diff := cmp.Diff(0, site.IntervalMinutes); diff != "" {
		t.Errorf("interval mismatch (-want +got):\n%s", diff)
	}

	b.handleInterval(ctx, 100, "1 5000")
	requireContains(t, api.lastText(), "between 0 and 1440")

	b.handleInterval(ctx, 100, "8 10")
	requireContains(t, api.lastText(), "Site #8 not found")
}

func TestHandleCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("single site", func(t *testing.T) {
		b, api, reg, runner := newTestBot(t)
		seedSite(t, reg, "A", "https://a.com")
		seedSite(t, reg, "B", "https://b.com")
		b.handleCheck(ctx, 100, "2")
		if diff := cmp.Diff([]string{"https://b.com"}, runner.checked); diff != "" {
			t.Errorf("checked sites (-want +got):\n%s", diff)
		}
		requireContains(t, api.lastText(), "B: unchanged")
	})

	t.Run("all sites", func(t *testing.T) {
		b, api, reg, runner := newTestBot(t)
		seedSite(t, reg, "A", "https://a.com")
		seedSite(t, reg, "B", "https://b.com")
		b.handleCheck(ctx, 100, "")
		if diff := cmp.Diff([]string{"https://a.com", "https://b.com"}, runner.checked); diff != "" {
			t.Errorf("checked sites (-want +got):\n%s", diff)
		}
		requireContains(t, api.lastText(), "Checked 2, changed 0, failed 0")
	})

	t.Run("not found", func(t *testing.T) {
		b, api, _, runner := newTestBot(t)
		b.handleCheck(ctx, 100, "4")
		requireContains(t, api.lastText(), "Site #4 not found")
		if len(runner.checked) != 0 {
			t.Errorf("runner should not be called, got %v", runner.checked)
		}
	})
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()

	makeMsg := func(cmd, args string) *tgbotapi.Message {
		text := "/" + cmd
		if args != "" {
			text += " " + args
		}
		return &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: 100},
			Text: text,
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: len("/" + cmd)},
			},
		}
	}

	t.Run("dispatches known commands", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)

		cmds := []struct {
			cmd      string
			args     string
			contains string
		}{
			{"start", "", "Welcome"},
			{"help", "", "/add"},
			{"list", "", "No sites"},
			{"add", "https://x.com", "Site added"},
			{"info", "1", "#1 https://x.com"},
			{"rename", "1 X", "renamed"},
			{"interval", "1 30", "30 min"},
			{"check", "1", "Checked 1"},
			{"remove", "1", "deleted"},
			{"unknown_cmd", "", "Unknown command"},
		}

		for _, tc := range cmds {
			api.reset()
			b.handleCommand(ctx, makeMsg(tc.cmd, tc.args))
			requireContains(t, api.lastText(), tc.contains)
		}
	})
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	cbQuery := func(data string) *tgbotapi.CallbackQuery {
		return &tgbotapi.CallbackQuery{
			ID:      "cb",
			Data:    data,
			From:    &tgbotapi.User{ID: 1},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
	}

	t.Run("invalid data format", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleCallback(ctx, cbQuery("nocolon"))
		if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleCallback(ctx, cbQuery("check:abc"))
		if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
	})

	t.Run("check callback", func(t *testing.T) {
		b, api, reg, runner := newTestBot(t)
		seedSite(t, reg, "A", "https://a.com")
		b.handleCallback(ctx, cbQuery("check:1"))
		if diff := cmp.Diff(1, len(runner.checked)); diff != "" {
			t.Errorf("checked count (-want +got):\n%s", diff)
		}
		requireContains(t, api.lastText(), "A: unchanged")
	})

	t.Run("delete_confirm callback", func(t *testing.T) {
		b, api, reg, _ := newTestBot(t)
		seedSite(t, reg, "A", "https://a.com")
		b.handleCallback(ctx, cbQuery("delete_confirm:1"))
		last := api.last()
		requireContains(t, last.Text, "Stop watching #1")
		if _, ok := last.Markup.(tgbotapi.InlineKeyboardMarkup); !ok {
			t.Errorf("expected confirmation keyboard, got %T", last.Markup)
		}
	})

	t.Run("delete callback", func(t *testing.T) {
		b, api, reg, _ := newTestBot(t)
		seedSite(t, reg, "A", "https://a.com")
		b.handleCallback(ctx, cbQuery(fmt.Sprintf("delete:%d", 1)))
		requireContains(t, api.lastText(), "deleted")
		sites, _ := reg.List(ctx)
		if diff := cmp.Diff(0, len(sites)); diff != "" {
			t.Errorf("sites remaining (-want +got):\n%s", diff)
		}
	})
}

func TestSinkUsesConfiguredChat(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	ev := model.ErrorEvent{Site: model.Site{Name: "A", URL: "https://a.com"}, Error: "timeout"}
	if err := b.Sink().NotifyError(context.Background(), ev); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if diff := cmp.Diff(int64(555), api.last().ChatID); diff != "" {
		t.Errorf("chat id (-want +got):\n%s", diff)
	}
}
