package app

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"podplay/internal/config"
	"podplay/internal/domain"
	"podplay/internal/fuzzy"
	"podplay/internal/opml"
	"podplay/internal/player"
	"podplay/internal/podcasts"
	"podplay/internal/podindex"
	"podplay/internal/repository"
)

type commandHandler func(context.Context, []string) (CommandResult, error)

type command struct {
	usage   string
	summary string
	handler commandHandler
}

// CommandResult is what a command hands back to the REPL for rendering.
type CommandResult struct {
	Message    string
	Quit       bool
	Feeds      []FeedResult
	FeedsTitle string
	Episodes   []domain.Episode
	Progress   []domain.ProgressWithEpisode
}

// FeedResult is one feed row in a search or subscription listing.
type FeedResult struct {
	Feed         domain.Feed
	Score        float64
	IsSubscribed bool
}

type App struct {
	config     config.Config
	configPath string
	db         *sql.DB
	httpClient *http.Client
	catalog    podcasts.CatalogClient
	podcasts   *podcasts.Service
	commands   map[string]*command

	mpv         *player.MPVEngine
	adapter     *player.Adapter
	coordinator *player.Coordinator

	stateMu   sync.Mutex
	lastState player.State
}

// Dependencies allows tests to substitute the network and engine
// boundaries.
type Dependencies struct {
	HTTPClient *http.Client
	Catalog    podcasts.CatalogClient
	Engine     player.Engine
}

func New(cfg config.Config, configPath string, db *sql.DB) *App {
	return NewWithDependencies(cfg, configPath, db, Dependencies{})
}

func NewWithDependencies(cfg config.Config, configPath string, db *sql.DB, deps Dependencies) *App {
	httpClient := deps.HTTPClient
	if httpClient == nil {
		transport := &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.TLSVerify},
		}
		if proxyURL := strings.TrimSpace(cfg.Proxy); proxyURL != "" {
			if parsed, err := url.Parse(proxyURL); err == nil {
				transport.Proxy = http.ProxyURL(parsed)
			}
		}
		httpClient = &http.Client{Timeout: 15 * time.Second, Transport: transport}
	}

	catalog := deps.Catalog
	if catalog == nil {
		client := podindex.NewClient(httpClient, "", cfg.IndexKey, cfg.IndexSecret)
		client.SetUserAgent(cfg.UserAgent)
		catalog = client
	}

	store := repository.New(db)
	service := podcasts.NewService(store, catalog)

	engine := deps.Engine
	var mpv *player.MPVEngine
	if engine == nil {
		mpv = player.NewMPVEngine(cfg.PlayerBinary)
		engine = mpv
	}
	adapter := player.NewAdapter(engine, service)
	coordinator := player.NewCoordinator(adapter, service)

	application := &App{
		config:      cfg,
		configPath:  configPath,
		db:          db,
		httpClient:  httpClient,
		catalog:     catalog,
		podcasts:    service,
		commands:    make(map[string]*command),
		mpv:         mpv,
		adapter:     adapter,
		coordinator: coordinator,
	}
	application.registerCommands()
	return application
}

func (a *App) Config() config.Config {
	return a.config
}

func (a *App) CommandNames() []string {
	names := make([]string, 0, len(a.commands))
	for name := range a.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartPlayer launches the engine and the adapter/coordinator loops. The
// loops stop when ctx is cancelled; a missing player binary degrades to a
// browse-only session instead of failing startup.
func (a *App) StartPlayer(ctx context.Context) {
	if a.mpv != nil {
		if err := a.mpv.Start(ctx); err != nil {
			log.Printf("app: playback unavailable: %v", err)
			return
		}
	}
	go a.adapter.Run(ctx)
	go a.coordinator.Run(ctx)
	go a.trackState(ctx)
}

func (a *App) trackState(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-a.coordinator.States():
			a.stateMu.Lock()
			a.lastState = state
			a.stateMu.Unlock()
		}
	}
}

// PlayerState returns the most recent unified player state.
func (a *App) PlayerState() player.State {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.lastState
}

func (a *App) Close() error {
	if a.mpv != nil {
		a.mpv.Close()
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *App) Execute(ctx context.Context, input string) (CommandResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return CommandResult{}, nil
	}

	args, err := shellquote.Split(input)
	if err != nil {
		return CommandResult{}, err
	}
	if len(args) == 0 {
		return CommandResult{}, nil
	}

	cmdName := strings.ToLower(args[0])
	cmd, ok := a.commands[cmdName]
	if !ok {
		return CommandResult{Message: fmt.Sprintf("unknown command: %s", args[0])}, nil
	}

	return cmd.handler(ctx, args[1:])
}

func (a *App) registerCommands() {
	a.registerCommand("help", "help", "List available commands", a.helpCommand, "h")
	a.registerCommand("config", "config [show]", "View or edit application configuration", a.configCommand)
	a.registerCommand("exit", "exit", "Exit the application", a.exitCommand, "quit")
	a.registerCommand("search", "search <query>", "Search the catalog for podcasts", a.searchCommand, "s")
	a.registerCommand("feed", "feed <catalog_id>", "Show a catalog feed and its episodes", a.feedCommand, "f")
	a.registerCommand("subscribe", "subscribe <catalog_id>", "Subscribe to a feed and store its episodes", a.subscribeCommand, "sub")
	a.registerCommand("unsubscribe", "unsubscribe <feed_id>", "Unsubscribe from a feed (keeps history)", a.unsubscribeCommand, "unsub")
	a.registerCommand("subscriptions", "subscriptions [filter]", "List subscribed feeds", a.subscriptionsCommand, "ls", "list")
	a.registerCommand("episodes", "episodes <feed_id>", "List stored episodes of a local feed", a.episodesCommand, "e")
	a.registerCommand("play", "play [episode_id]", "Play an episode, or unpause with no argument", a.playCommand, "p")
	a.registerCommand("resume", "resume <episode_id>", "Resume an episode from its saved position", a.resumeCommand, "r")
	a.registerCommand("pause", "pause", "Pause playback", a.pauseCommand)
	a.registerCommand("next", "next", "Skip to the next queued item", a.nextCommand)
	a.registerCommand("prev", "prev", "Skip to the previous item", a.prevCommand)
	a.registerCommand("seek", "seek <seconds>", "Seek to an absolute position", a.seekCommand)
	a.registerCommand("enqueue", "enqueue <episode_id>", "Append an episode to the play queue", a.enqueueCommand, "q")
	a.registerCommand("status", "status", "Show what is playing", a.statusCommand, "playing")
	a.registerCommand("continue", "continue", "List episodes with saved positions", a.continueCommand, "c")
	a.registerCommand("import", "import <file>", "Import subscriptions from an OPML file", a.importCommand)
	a.registerCommand("export", "export <file>", "Export subscriptions to an OPML file", a.exportCommand)
}

func (a *App) registerCommand(name, usage, summary string, handler commandHandler, aliases ...string) {
	cmd := &command{usage: usage, summary: summary, handler: handler}
	names := append([]string{name}, aliases...)
	for _, alias := range names {
		a.commands[alias] = cmd
	}
}

func (a *App) helpCommand(_ context.Context, _ []string) (CommandResult, error) {
	seen := map[*command]bool{}
	lines := make([]string, 0, len(a.commands))
	for _, name := range a.CommandNames() {
		cmd := a.commands[name]
		if seen[cmd] {
			continue
		}
		seen[cmd] = true
		lines = append(lines, fmt.Sprintf("%-38s %s", cmd.usage, cmd.summary))
	}
	return CommandResult{Message: strings.Join(lines, "\n")}, nil
}

func (a *App) configCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) == 0 {
		return a.editConfig(ctx)
	}
	switch strings.ToLower(args[0]) {
	case "show":
		shown := a.config
		if shown.IndexSecret != "" {
			shown.IndexSecret = "********"
		}
		data, err := yaml.Marshal(shown)
		if err != nil {
			return CommandResult{}, err
		}
		return CommandResult{Message: string(data)}, nil
	default:
		return CommandResult{Message: "Usage: config [show]"}, nil
	}
}

func (a *App) editConfig(ctx context.Context) (CommandResult, error) {
	updated, err := config.EditInteractive(ctx, a.config)
	if err != nil {
		return CommandResult{}, err
	}
	if err := config.Save(a.configPath, updated); err != nil {
		return CommandResult{}, err
	}
	a.config = updated
	log.Println("configuration updated")
	return CommandResult{Message: "Configuration saved."}, nil
}

func (a *App) exitCommand(_ context.Context, _ []string) (CommandResult, error) {
	return CommandResult{Quit: true}, nil
}

func (a *App) searchCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) == 0 {
		return CommandResult{Message: "Usage: search <query>"}, nil
	}

	term := strings.Join(args, " ")
	feeds, err := a.podcasts.SearchFeeds(ctx, term, a.config.SearchLimit, a.config.CleanSearch, false)
	if err != nil {
		return CommandResult{}, err
	}
	if len(feeds) == 0 {
		return CommandResult{Message: "No podcasts found."}, nil
	}

	scored := make([]FeedResult, 0, len(feeds))
	for _, feed := range feeds {
		titleScore := fuzzy.MatchScore(feed.Title, term)
		authorScore := fuzzy.MatchScore(feed.Author, term) * 0.5
		score := titleScore
		if authorScore > score {
			score = authorScore
		}
		if score <= 0.3 {
			continue
		}
		result := FeedResult{Feed: feed, Score: score}
		if local, ok, err := a.localTwin(ctx, feed); err != nil {
			return CommandResult{}, err
		} else if ok {
			result.Feed = local
			result.IsSubscribed = local.IsSubscribed()
		}
		scored = append(scored, result)
	}
	if len(scored) == 0 {
		return CommandResult{Message: "No podcasts found."}, nil
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > 10 {
		scored = scored[:10]
	}

	return CommandResult{Feeds: scored, FeedsTitle: "Search Results"}, nil
}

// localTwin finds the stored row for a catalog feed, if any. Search results
// stay display-only, so this never reaches for the network.
func (a *App) localTwin(ctx context.Context, feed domain.Feed) (domain.Feed, bool, error) {
	if feed.IndexID == 0 {
		return domain.Feed{}, false, nil
	}
	return a.podcasts.LocalFeedByIndexID(ctx, feed.IndexID)
}

func (a *App) feedCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: feed <catalog_id>"}, nil
	}
	indexID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return CommandResult{Message: "Catalog id must be a number."}, nil
	}

	feed, err := a.podcasts.FeedByIndexID(ctx, indexID, false)
	if err != nil {
		return CommandResult{}, err
	}
	episodes, err := a.podcasts.EpisodesByIndexFeedID(ctx, indexID, false)
	if err != nil {
		return CommandResult{}, err
	}

	return CommandResult{
		Feeds:      []FeedResult{{Feed: feed, IsSubscribed: feed.IsSubscribed()}},
		FeedsTitle: feed.Title,
		Episodes:   episodes,
	}, nil
}

func (a *App) subscribeCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: subscribe <catalog_id>"}, nil
	}
	indexID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return CommandResult{Message: "Catalog id must be a number."}, nil
	}

	feed, err := a.podcasts.FeedByIndexID(ctx, indexID, false)
	if err != nil {
		return CommandResult{}, err
	}

	local, err := a.podcasts.EnsureLocal(ctx, feed)
	if err != nil {
		return CommandResult{}, err
	}
	if local.IsSubscribed() {
		return CommandResult{Message: fmt.Sprintf("Already subscribed to %s.", local.Title)}, nil
	}

	added, err := a.storeEpisodes(ctx, local, indexID)
	if err != nil {
		return CommandResult{}, err
	}

	if _, err := a.podcasts.Subscribe(ctx, local); err != nil {
		return CommandResult{}, err
	}
	return CommandResult{Message: fmt.Sprintf("Subscribed to %s (%d new episodes).", local.Title, added)}, nil
}

// storeEpisodes persists the catalog's episode listing for a feed, inserting
// unseen episodes and backfilling the feed id on rows stored before the feed
// itself existed locally.
func (a *App) storeEpisodes(ctx context.Context, feed domain.Feed, indexID int64) (int, error) {
	listing, err := a.podcasts.EpisodesByIndexFeedID(ctx, indexID, false)
	if err != nil {
		return 0, err
	}

	missing := make([]domain.Episode, 0, len(listing))
	for _, episode := range listing {
		existing, ok, err := a.podcasts.EpisodeByIndexID(ctx, episode.IndexID)
		if err != nil {
			return 0, err
		}
		if ok {
			if existing.FeedID == 0 {
				existing.FeedID = feed.ID
				if err := a.podcasts.UpdateEpisode(ctx, existing); err != nil {
					return 0, err
				}
			}
			continue
		}
		episode.FeedID = feed.ID
		missing = append(missing, episode)
	}

	if len(missing) == 0 {
		return 0, nil
	}
	if _, err := a.podcasts.InsertEpisodes(ctx, missing); err != nil {
		return 0, err
	}
	return len(missing), nil
}

func (a *App) unsubscribeCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: unsubscribe <feed_id>"}, nil
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return CommandResult{Message: "Feed id must be a number."}, nil
	}

	feed, err := a.podcasts.LocalFeedByID(ctx, id)
	if err != nil {
		if errors.Is(err, podcasts.ErrFeedNotFound) {
			return CommandResult{Message: "No such feed."}, nil
		}
		return CommandResult{}, err
	}
	if !feed.IsSubscribed() {
		return CommandResult{Message: fmt.Sprintf("Not subscribed to %s.", feed.Title)}, nil
	}

	if _, err := a.podcasts.Unsubscribe(ctx, feed); err != nil {
		return CommandResult{}, err
	}
	return CommandResult{Message: fmt.Sprintf("Unsubscribed from %s. Episodes and progress kept.", feed.Title)}, nil
}

func (a *App) subscriptionsCommand(ctx context.Context, args []string) (CommandResult, error) {
	feeds, err := a.podcasts.SubscribedFeeds(ctx)
	if err != nil {
		return CommandResult{}, err
	}
	if len(feeds) == 0 {
		return CommandResult{Message: "No subscriptions yet."}, nil
	}

	if len(args) > 0 {
		filter := strings.Join(args, " ")
		filtered := make([]domain.Feed, 0, len(feeds))
		for _, feed := range feeds {
			if fuzzy.Contains(feed.Title, filter) || fuzzy.Contains(feed.Author, filter) {
				filtered = append(filtered, feed)
			}
		}
		feeds = filtered
		if len(feeds) == 0 {
			return CommandResult{Message: fmt.Sprintf("No subscriptions matching '%s'.", filter)}, nil
		}
	}

	results := make([]FeedResult, 0, len(feeds))
	for _, feed := range feeds {
		results = append(results, FeedResult{Feed: feed, IsSubscribed: true})
	}
	return CommandResult{Feeds: results, FeedsTitle: "Subscriptions"}, nil
}

func (a *App) episodesCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: episodes <feed_id>"}, nil
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return CommandResult{Message: "Feed id must be a number."}, nil
	}

	view, err := a.podcasts.FeedWithEpisodes(ctx, id)
	if err != nil {
		if errors.Is(err, podcasts.ErrFeedNotFound) {
			return CommandResult{Message: "No such feed."}, nil
		}
		return CommandResult{}, err
	}
	if len(view.Episodes) == 0 {
		return CommandResult{Message: "No episodes stored for this feed."}, nil
	}
	return CommandResult{
		Feeds:      []FeedResult{{Feed: view.Feed, IsSubscribed: view.Feed.IsSubscribed()}},
		FeedsTitle: view.Feed.Title,
		Episodes:   view.Episodes,
	}, nil
}

func (a *App) playCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) == 0 {
		if err := a.coordinator.Play(ctx); err != nil {
			return CommandResult{}, err
		}
		return CommandResult{}, nil
	}
	if len(args) != 1 {
		return CommandResult{Message: "Usage: play [episode_id]"}, nil
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return CommandResult{Message: "Episode id must be a number."}, nil
	}

	if err := a.coordinator.PlayEpisode(ctx, id); err != nil {
		if errors.Is(err, podcasts.ErrEpisodeNotFound) {
			return CommandResult{Message: "No such episode."}, nil
		}
		if errors.Is(err, player.ErrEngineNotReady) {
			return CommandResult{Message: "Player is still starting up."}, nil
		}
		return CommandResult{}, err
	}
	return CommandResult{Message: fmt.Sprintf("Playing episode %d.", id)}, nil
}

func (a *App) resumeCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: resume <episode_id>"}, nil
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return CommandResult{Message: "Episode id must be a number."}, nil
	}

	if err := a.coordinator.ResumeEpisode(ctx, id); err != nil {
		if errors.Is(err, podcasts.ErrEpisodeNotFound) {
			return CommandResult{Message: "No such episode."}, nil
		}
		if errors.Is(err, player.ErrEngineNotReady) {
			return CommandResult{Message: "Player is still starting up."}, nil
		}
		return CommandResult{}, err
	}
	return CommandResult{Message: fmt.Sprintf("Resuming episode %d.", id)}, nil
}

func (a *App) pauseCommand(ctx context.Context, _ []string) (CommandResult, error) {
	if err := a.coordinator.Pause(ctx); err != nil {
		return CommandResult{}, err
	}
	return CommandResult{Message: "Paused."}, nil
}

func (a *App) nextCommand(ctx context.Context, _ []string) (CommandResult, error) {
	if err := a.coordinator.SeekNext(ctx); err != nil {
		return CommandResult{}, err
	}
	return CommandResult{}, nil
}

func (a *App) prevCommand(ctx context.Context, _ []string) (CommandResult, error) {
	if err := a.coordinator.SeekPrevious(ctx); err != nil {
		return CommandResult{}, err
	}
	return CommandResult{}, nil
}

func (a *App) seekCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: seek <seconds>"}, nil
	}
	seconds, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || seconds < 0 {
		return CommandResult{Message: "Position must be a non-negative number of seconds."}, nil
	}
	if err := a.coordinator.SetPosition(ctx, seconds*1000); err != nil {
		return CommandResult{}, err
	}
	return CommandResult{}, nil
}

func (a *App) enqueueCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: enqueue <episode_id>"}, nil
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return CommandResult{Message: "Episode id must be a number."}, nil
	}

	if err := a.coordinator.AddEpisodeToQueue(ctx, id); err != nil {
		if errors.Is(err, podcasts.ErrEpisodeNotFound) {
			return CommandResult{Message: "No such episode."}, nil
		}
		return CommandResult{}, err
	}
	return CommandResult{Message: fmt.Sprintf("Episode %d queued.", id)}, nil
}

func (a *App) statusCommand(_ context.Context, _ []string) (CommandResult, error) {
	state := a.PlayerState()
	if !state.Active {
		if state.IsLoading {
			return CommandResult{Message: "Loading..."}, nil
		}
		return CommandResult{Message: "Nothing playing."}, nil
	}

	verb := "Paused"
	if state.IsPlaying {
		verb = "Playing"
	}
	seconds := state.PositionMS / 1000
	return CommandResult{Message: fmt.Sprintf("%s: %s (%s) at %d:%02d",
		verb, state.Episode.Title, state.Feed.Title, seconds/60, seconds%60)}, nil
}

func (a *App) continueCommand(ctx context.Context, _ []string) (CommandResult, error) {
	progress, err := a.podcasts.ListProgress(ctx)
	if err != nil {
		return CommandResult{}, err
	}
	if len(progress) == 0 {
		return CommandResult{Message: "Nothing in progress."}, nil
	}
	return CommandResult{Progress: progress}, nil
}

func (a *App) exportCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: export <file>"}, nil
	}
	count, err := a.ExportOPML(ctx, args[0])
	if err != nil {
		return CommandResult{}, err
	}
	return CommandResult{Message: fmt.Sprintf("Exported %d subscriptions.", count)}, nil
}

func (a *App) importCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: import <file>"}, nil
	}
	imported, skipped, err := a.ImportOPML(ctx, args[0])
	if err != nil {
		return CommandResult{}, err
	}
	msg := fmt.Sprintf("Imported %d subscriptions", imported)
	if skipped > 0 {
		msg += fmt.Sprintf(", skipped %d", skipped)
	}
	return CommandResult{Message: msg + "."}, nil
}

// ExportOPML writes the subscribed feeds to an OPML file.
func (a *App) ExportOPML(ctx context.Context, filePath string) (int, error) {
	feeds, err := a.podcasts.SubscribedFeeds(ctx)
	if err != nil {
		return 0, err
	}
	if len(feeds) == 0 {
		return 0, errors.New("no subscriptions to export")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	if err := opml.Export(file, feeds); err != nil {
		return 0, err
	}
	return len(feeds), nil
}

// ImportOPML subscribes to every feed in an OPML file. Feeds are matched by
// canonical URL; already-subscribed entries are skipped.
func (a *App) ImportOPML(ctx context.Context, filePath string) (imported, skipped int, err error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	subscriptions, err := opml.Import(file)
	if err != nil {
		return 0, 0, err
	}
	if len(subscriptions) == 0 {
		return 0, 0, errors.New("no subscriptions found in OPML file")
	}

	feeds, err := a.allFeedsByURL(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, sub := range subscriptions {
		feed, ok := feeds[sub.FeedURL]
		if ok && feed.IsSubscribed() {
			skipped++
			continue
		}
		if !ok {
			feed, err = a.podcasts.EnsureLocal(ctx, domain.Feed{
				Title: sub.Title,
				URL:   sub.FeedURL,
				Link:  sub.SiteURL,
			})
			if err != nil {
				return imported, skipped, err
			}
		}
		if _, err := a.podcasts.Subscribe(ctx, feed); err != nil {
			return imported, skipped, err
		}
		imported++
	}
	return imported, skipped, nil
}

func (a *App) allFeedsByURL(ctx context.Context) (map[string]domain.Feed, error) {
	all, err := a.podcasts.AllFeeds(ctx)
	if err != nil {
		return nil, err
	}
	feeds := make(map[string]domain.Feed, len(all))
	for _, feed := range all {
		if feed.URL != "" {
			feeds[feed.URL] = feed
		}
	}
	return feeds, nil
}
