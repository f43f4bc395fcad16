package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"duskrelay/internal/api"
	"duskrelay/internal/extractor"
	"duskrelay/internal/health"
	"duskrelay/internal/pnde"
)

func handleFetch(ctx context.Context, args []string) error {
	fs, cfgPath, logLevel, jsonOut := commonFlags("fetch")
	url := fs.String("url", "", "URL to fetch")
	dest := fs.String("dest", "", "destination path (default: current dir + inferred filename)")
	plain := fs.Bool("plain", false, "use a plain, non-interactive progress bar instead of the live dashboard")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *url == "" {
		return errors.New("--url required")
	}

	core, _, err := newCoreFromFlags(*cfgPath, *logLevel, *jsonOut)
	if err != nil {
		return err
	}
	defer core.Close()

	destPath := *dest
	if destPath == "" {
		destPath = filepath.Join(".", "download")
	}

	decision := core.RouteURL(ctx, *url)
	req := api.DownloadRequest{ID: uuid.NewString(), URL: *url, OutputPath: destPath, Decision: decision}

	if decision.Engine == health.EngineMediaExtractor {
		return runExtractorFetch(ctx, core, req, *plain)
	}
	return runNativeFetch(ctx, core, req, *plain)
}

func runNativeFetch(ctx context.Context, core *api.Core, req api.DownloadRequest, plain bool) error {
	progressCh := make(chan pnde.Progress, 16)
	resultCh := make(chan pnde.Result, 1)
	go func() {
		resultCh <- core.StartNative(ctx, req, progressCh)
	}()
	return drainProgress(plain, progressCh, func() error {
		result := <-resultCh
		if !result.Success {
			return fmt.Errorf("download failed: %s", result.Error)
		}
		fmt.Printf("done: %s (%s)\n", req.OutputPath, humanize.Bytes(uint64(result.BytesDownloaded)))
		return nil
	})
}

func runExtractorFetch(ctx context.Context, core *api.Core, req api.DownloadRequest, plain bool) error {
	progressCh := make(chan extractor.Progress, 16)
	resultCh := make(chan extractor.Result, 1)
	go func() {
		resultCh <- core.StartExtractor(ctx, req, progressCh)
	}()
	return drainProgress(plain, progressCh, func() error {
		result := <-resultCh
		if !result.Success {
			return fmt.Errorf("extractor fetch failed: %s", result.Error)
		}
		fmt.Printf("done: %s (%s)\n", req.OutputPath, humanize.Bytes(uint64(result.BytesDownloaded)))
		return nil
	})
}

// drainProgress renders pnde.Progress events (PNDE and extractor share the
// same shape) either through a plain schollz/progressbar (non-interactive
// hosts, piped output, --plain) or the live bubbletea dashboard, then calls
// finish once the channel closes.
func drainProgress(plain bool, ch <-chan pnde.Progress, finish func() error) error {
	if plain || !isatty.IsTerminal(os.Stdout.Fd()) {
		bar := progressbar.NewOptions(100,
			progressbar.OptionSetDescription("fetching"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*1e6),
			progressbar.OptionOnCompletion(func() { fmt.Fprint(os.Stderr, "\n") }),
		)
		for ev := range ch {
			_ = bar.Set(int(ev.Progress))
		}
		_ = bar.Finish()
		return finish()
	}

	p := tea.NewProgram(newFetchModel(ch))
	if _, err := p.Run(); err != nil {
		return err
	}
	return finish()
}

// fetchModel is a minimal single-download bubbletea dashboard, grounded in
// the teacher's internal/tui/v2 Model (bubbles/progress bar, a tick loop)
// but scoped to one in-flight transfer rather than a full download library.
type fetchModel struct {
	bar   progress.Model
	ch    <-chan pnde.Progress
	last  pnde.Progress
	done  bool
}

func newFetchModel(ch <-chan pnde.Progress) fetchModel {
	return fetchModel{bar: progress.New(progress.WithDefaultGradient()), ch: ch}
}

type progressEventMsg pnde.Progress
type channelClosedMsg struct{}

func (m fetchModel) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m fetchModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.ch
		if !ok {
			return channelClosedMsg{}
		}
		return progressEventMsg(ev)
	}
}

func (m fetchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case progressEventMsg:
		m.last = pnde.Progress(msg)
		return m, m.waitForEvent()
	case channelClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m fetchModel) View() string {
	if m.done {
		return ""
	}
	pct := m.last.Progress / 100
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}
	return fmt.Sprintf("%s  %s  %s\n%s\n",
		m.last.Filename, m.last.Speed, m.last.ETA, m.bar.ViewAs(pct))
}
