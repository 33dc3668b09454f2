package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/memohai/deckcrm/internal/config"
	"github.com/memohai/deckcrm/internal/handlers"
	"github.com/memohai/deckcrm/internal/logger"
	"github.com/memohai/deckcrm/internal/timeline"
	"github.com/memohai/deckcrm/internal/version"
)

type cliOptions struct {
	configPath  string
	apiBaseURL  string
	customerID  string
	timezone    string
	timeout     time.Duration
	once        bool
	showVersion bool
}

func main() {
	opts := parseFlags()
	if opts.showVersion {
		fmt.Printf("deckcrm CLI %s\n", version.GetInfo())
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)

	if strings.TrimSpace(opts.apiBaseURL) == "" {
		opts.apiBaseURL = defaultAPIBaseURL(cfg.Server.Addr)
	}
	if strings.TrimSpace(opts.apiBaseURL) == "" {
		logger.Error("api url is required")
		os.Exit(1)
	}
	opts.apiBaseURL = normalizeBaseURL(opts.apiBaseURL)

	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		logger.Error("invalid timezone", slog.Any("error", err))
		os.Exit(1)
	}

	w := &watcher{
		baseURL:    opts.apiBaseURL,
		customerID: strings.TrimSpace(opts.customerID),
		loc:        loc,
		out:        os.Stdout,
		client:     &http.Client{},
		timeout:    opts.timeout,
	}
	w.session = timeline.NewSession(w.customerID, cfg.Timeline.Limit)
	defer w.session.Close()

	if opts.once {
		err = w.loadOnce(ctx)
	} else {
		err = w.watch(ctx)
	}
	if err != nil && ctx.Err() == nil {
		logger.Error("timeline watch failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func parseFlags() cliOptions {
	var opts cliOptions
	defaultConfig := os.Getenv("CONFIG_PATH")
	if strings.TrimSpace(defaultConfig) == "" {
		defaultConfig = config.DefaultConfigPath
	}

	flag.StringVar(&opts.configPath, "config", defaultConfig, "Path to config.toml")
	flag.StringVar(&opts.apiBaseURL, "api-url", "", "API server base URL (e.g. http://127.0.0.1:8080)")
	flag.StringVar(&opts.customerID, "customer", "", "Customer id (empty watches every customer)")
	flag.StringVar(&opts.timezone, "tz", "Local", "Time zone used for day headings")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout for the initial load")
	flag.BoolVar(&opts.once, "once", false, "Print the timeline once and exit")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version information")
	flag.Parse()

	return opts
}

func normalizeBaseURL(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), "/")
}

func defaultAPIBaseURL(addr string) string {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return normalizeBaseURL(trimmed)
	}
	if strings.HasPrefix(trimmed, ":") {
		return "http://127.0.0.1" + trimmed
	}
	return "http://" + trimmed
}

// watcher keeps a local timeline session in sync with the server stream.
type watcher struct {
	baseURL    string
	customerID string
	loc        *time.Location
	out        io.Writer
	client     *http.Client
	timeout    time.Duration
	session    *timeline.Session
}

func (w *watcher) endpoint(path string) string {
	query := url.Values{}
	if w.customerID != "" {
		query.Set("customer_id", w.customerID)
	}
	if len(query) == 0 {
		return w.baseURL + path
	}
	return w.baseURL + path + "?" + query.Encode()
}

func (w *watcher) loadOnce(ctx context.Context) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint("/timeline"), nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api server error: %s", strings.TrimSpace(string(payload)))
	}
	var body handlers.TimelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	if err := w.session.Reset(body.Items); err != nil {
		return err
	}
	w.render(time.Now())
	return nil
}

func (w *watcher) watch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint("/timeline/events"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api server error: %s", strings.TrimSpace(string(payload)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		var frame handlers.TimelineFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			logger.Warn("skip malformed frame", slog.Any("error", err))
			continue
		}
		changed, err := w.apply(frame)
		if err != nil {
			return err
		}
		if changed {
			w.render(time.Now())
		}
	}
	return scanner.Err()
}

// apply folds one stream frame into the session and reports whether the view changed.
func (w *watcher) apply(frame handlers.TimelineFrame) (bool, error) {
	switch frame.Type {
	case handlers.FramePing:
		return false, nil
	case handlers.FrameSnapshot:
		return true, w.session.Reset(frame.Items)
	}
	if frame.Item == nil {
		return false, nil
	}
	// Reload frames never reach clients; the server answers them with a snapshot.
	_, err := w.session.Apply(timeline.Event{Op: timeline.Op(frame.Type), Item: frame.Item, CustomerID: frame.Item.CustomerID})
	return err == nil, err
}

func (w *watcher) render(now time.Time) {
	fmt.Fprint(w.out, "\033[H\033[2J")
	for _, bucket := range timeline.GroupByDay(w.session.Items(), now, w.loc) {
		fmt.Fprintf(w.out, "== %s ==\n", bucket.Label)
		for _, item := range bucket.Items {
			fmt.Fprintf(w.out, "  %s  %-8s %-9s %s\n",
				item.Timestamp.In(w.loc).Format("15:04"), item.Type, item.Direction, item.Title)
			if desc := strings.TrimSpace(item.Description); desc != "" {
				fmt.Fprintf(w.out, "         %s\n", firstLine(desc, 80))
			}
		}
	}
	if unreplied := w.session.Unreplied(); len(unreplied) > 0 {
		fmt.Fprintf(w.out, "\nAwaiting reply: %s\n", strings.Join(unreplied, ", "))
	}
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > max {
		return s[:max-1] + "…"
	}
	return s
}
