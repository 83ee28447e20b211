// Command librarian browses the library and runs the admin actions against
// a running backend.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"

	"intizar/internal/catalog"
	"intizar/internal/client"
	"intizar/internal/library"
	"intizar/internal/models"
	"intizar/internal/telemetry"

	"github.com/joho/godotenv"
)

const defaultEndpoint = "http://localhost:8090/exec"

const usage = `usage: librarian [-endpoint URL] <command> [flags]

commands:
  health                              backend status
  list [-search s] [-type t] [-sort o] [-featured]
  browse                              interactive search, refreshed every 5 minutes
  stats                               library and admin counts
  ask <question>                      ask the assistant
  login -username u [-password p]     start an admin session
  upload -title t -author a <file>    upload a .pdf or .docx file
  generate -title t -author a (-body text | -file path)
  logout                              end the admin session
`

type app struct {
	api   *client.Client
	state *library.State
	admin *library.Admin

	mu  sync.Mutex
	out io.Writer
}

// fetched serves an already downloaded catalog to a library.State.
type fetched []models.Document

func (f fetched) Documents(context.Context) ([]models.Document, error) { return f, nil }

func main() {
	_ = godotenv.Load()
	telemetry.NewLoggerWithWriter(os.Stderr, envOr("LOG_LEVEL", "warn"))

	fs := flag.NewFlagSet("librarian", flag.ExitOnError)
	endpoint := fs.String("endpoint", envOr("INTIZAR_ENDPOINT", defaultEndpoint), "backend action endpoint")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = fs.Parse(os.Args[1:])
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(*endpoint)
	var adminOpts []library.AdminOption
	if path, err := sessionPath(); err == nil {
		adminOpts = append(adminOpts, library.WithSessionFile(path))
	}
	a := &app{
		api:   api,
		state: library.NewState(library.DefaultFallback()),
		admin: library.NewAdmin(api, adminOpts...),
		out:   os.Stdout,
	}

	if err := a.run(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "health":
		return a.health(ctx)
	case "list":
		return a.list(ctx, args)
	case "browse":
		return a.browse(ctx, os.Stdin)
	case "stats":
		return a.stats(ctx)
	case "ask":
		return a.ask(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "upload":
		return a.upload(ctx, args)
	case "generate":
		return a.generate(ctx, args)
	case "logout":
		if err := a.admin.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Logged out.")
		return nil
	}
	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

func (a *app) health(ctx context.Context) error {
	h, err := a.api.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "status: %s (%s)\n", h.Status, h.Timestamp)
	for _, name := range []string{"drive", "sheets", "ai"} {
		fmt.Fprintf(a.out, "  %-7s %v\n", name, h.Services[name])
	}
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	search := fs.String("search", "", "match title, author or description")
	docType := fs.String("type", library.TypeAll, "PDF, DOCX, Generated PDF or all")
	order := fs.String("sort", string(library.SortDateDesc), "date-desc, date-asc, title or author")
	featured := fs.Bool("featured", false, "show the three newest remote documents only")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.state.Load(ctx, a.api); err != nil {
		fmt.Fprintf(os.Stderr, "could not load the catalog (%v); showing the core collection. Run the command again to retry.\n", err)
	}
	if *featured {
		a.render(a.state.Featured(3))
		return nil
	}
	a.state.SetFilters(library.FilterState{Search: *search, Type: *docType, Sort: library.SortOrder(*order)})
	a.render(a.state.View())
	return nil
}

// browse reads search terms line by line and re-renders the view once typing
// settles, while a refresher keeps the catalog current.
func (a *app) browse(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.state.Load(ctx, a.api); err != nil {
		fmt.Fprintf(a.out, "catalog unavailable (%v); showing the core collection\n", err)
	}
	a.render(a.state.View())

	refresher := library.NewRefresher(a.state, a.api, library.DefaultRefreshInterval)
	refresher.OnLoad = func(err error) {
		if err == nil {
			a.render(a.state.View())
		}
	}
	refresher.Start(ctx)

	debounce := library.NewDebouncer(library.DefaultDebounce)
	defer debounce.Stop()

	fmt.Fprintln(a.out, "type to search, empty line clears, ctrl-d quits")
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		a.state.SetSearch(scanner.Text())
		debounce.Trigger(func() { a.render(a.state.View()) })
	}
	return scanner.Err()
}

func (a *app) stats(ctx context.Context) error {
	docs, err := a.api.Documents(ctx)
	if err != nil {
		return err
	}
	if err := a.state.Load(ctx, fetched(docs)); err != nil {
		return err
	}
	st := a.state.Stats()
	admin := catalog.Summarize(docs)
	fmt.Fprintf(a.out, "library: %d documents, %d added this month\n", st.Total, st.Recent)
	fmt.Fprintf(a.out, "catalog: %d total, %d PDF, %d DOCX, %d generated\n", admin.Total, admin.PDF, admin.DOCX, admin.Generated)
	return nil
}

func (a *app) ask(ctx context.Context, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return errors.New("ask needs a question")
	}
	ans, err := a.api.Ask(ctx, question)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, ans.Response)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("username", os.Getenv("INTIZAR_USERNAME"), "admin username")
	password := fs.String("password", os.Getenv("INTIZAR_PASSWORD"), "admin password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.admin.Login(ctx, *username, *password); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s.\n", a.admin.Name())
	return nil
}

func (a *app) upload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	title := fs.String("title", "", "document title")
	author := fs.String("author", "", "document author")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("upload needs exactly one file")
	}
	res, err := a.admin.Upload(ctx, fs.Arg(0), *title, *author)
	if err != nil {
		return err
	}
	a.printStored(res)
	return nil
}

func (a *app) generate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	title := fs.String("title", "", "document title")
	author := fs.String("author", "", "document author")
	body := fs.String("body", "", "document text")
	file := fs.String("file", "", "read the document text from a file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text := *body
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		text = string(data)
	}
	res, err := a.admin.Generate(ctx, *title, *author, text)
	if err != nil {
		return err
	}
	a.printStored(res)
	return nil
}

func (a *app) printStored(res client.StoredDocument) {
	fmt.Fprintln(a.out, res.Message)
	fmt.Fprintf(a.out, "  file: %s\n  url:  %s\n", res.FileName, res.FileURL)
}

func (a *app) render(entries []library.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tAUTHOR\tTYPE\tDATE\tURL")
	for _, e := range entries {
		title := e.Title
		if e.Recent {
			title += " [new]"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", title, e.Author, e.Type, e.DateLabel(), e.URL)
	}
	w.Flush()
	fmt.Fprintf(a.out, "%d documents\n", len(entries))
}

func sessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "intizar", "session.json"), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
