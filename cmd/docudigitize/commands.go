package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/zepposd/docudigitize/internal/autosave"
	"github.com/zepposd/docudigitize/internal/export"
	"github.com/zepposd/docudigitize/internal/inbox"
	"github.com/zepposd/docudigitize/internal/ingest"
	"github.com/zepposd/docudigitize/internal/mcpserver"
	"github.com/zepposd/docudigitize/internal/models"
	"github.com/zepposd/docudigitize/internal/server"
	"github.com/zepposd/docudigitize/internal/workspace"
	"golang.org/x/sync/errgroup"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"serve":   runServe,
	"ingest":  runIngest,
	"backup":  runBackup,
	"restore": runRestore,
	"merge":   runMerge,
	"export":  runExport,
	"history": runHistory,
	"users":   runUsers,
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)

	return fs
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// oneArg parses fs and returns its single positional argument.
func oneArg(fs *flag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}

	if fs.NArg() != 1 {
		return "", fmt.Errorf("%w: %s expects exactly one %s", errUsage, fs.Name(), what)
	}

	return fs.Arg(0), nil
}

// runServe starts the MCP server and the inbox watcher until the context
// is cancelled. Pending title edits are saved on the way out.
func runServe(ctx context.Context, a *app, args []string) error {
	if err := a.flags("serve").Parse(args); err != nil {
		return err
	}

	if err := a.cfg.ValidateServe(); err != nil {
		return err
	}

	sched := autosave.New(a.st, a.clock, a.cfg.Autosave(), a.logger)
	defer func() {
		if err := sched.Flush(); err != nil {
			a.logger.Warn("saving title settings on shutdown", slog.String("error", err.Error()))
		}

		sched.Close()
	}()

	ws := a.workspace(sched)

	a.logger.Info("docudigitize starting",
		slog.String("version", Version),
		slog.String("data_dir", a.cfg.DataDir),
		slog.Bool("mcp", a.cfg.EnableMCP),
		slog.String("inbox", a.cfg.InboxDir),
	)

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.EnableMCP {
		mcpServer := mcp.NewServer(&mcp.Implementation{Name: "docudigitize", Version: Version}, nil)
		mcpserver.RegisterTools(mcpServer, mcpserver.Deps{
			Workspace: ws,
			Pipeline:  ingest.New(a.st, a.ai, a.clock, a.logger),
			Autosave:  sched,
			Clock:     a.clock,
		})

		mux := server.NewMux(server.MuxConfig{
			MCPHandler: mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpServer }, nil),
			APIKey:     a.cfg.MCPAPIKey,
			Health: func() server.Health {
				return server.Health{Status: "ok", Files: len(ws.Files()), Autosave: string(sched.Status())}
			},
			Logger: a.logger,
		})

		if a.cfg.MCPAPIKey == "" {
			a.logger.Warn("MCP_API_KEY is not set; /mcp accepts unauthenticated requests",
				slog.String("listen", a.cfg.MCPListenAddr))
		}

		g.Go(func() error {
			return server.ListenAndServe(gctx, a.cfg.MCPListenAddr, mux, a.logger)
		})
	}

	if a.cfg.InboxDir != "" {
		if _, err := ws.Login(a.cfg.User); err != nil {
			return fmt.Errorf("registering inbox user: %w", err)
		}

		pipeline := ingest.New(a.st, a.ai, a.clock, a.logger)
		w := inbox.New(a.cfg.InboxDir, pipeline, a.cfg.DuplicatePolicy(), a.cfg.User, a.logger)

		g.Go(func() error {
			return w.Watch(gctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		a.logger.Info("docudigitize stopped")
		return nil
	}

	return err
}

// ingestOutput is the JSON report printed by the ingest command.
type ingestOutput struct {
	ingest.Report
	Rejected []string `json:"rejected"`
}

func runIngest(ctx context.Context, a *app, args []string) error {
	fs := a.flags("ingest")
	user := fs.String("user", a.cfg.User, "name of the uploading user")
	onDuplicate := fs.String("on-duplicate", a.cfg.InboxOnDuplicate, "what to do with duplicates: skip or replace")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() == 0 {
		return fmt.Errorf("%w: ingest expects at least one path", errUsage)
	}

	policy := ingest.DuplicatePolicy(*onDuplicate)
	if !policy.Valid() {
		return fmt.Errorf("-on-duplicate must be %q or %q, got %q", ingest.OnDuplicateSkip, ingest.OnDuplicateReplace, *onDuplicate)
	}

	if strings.TrimSpace(*user) == "" {
		return errors.New("-user or DOCUDIGITIZE_USER is required")
	}

	u, err := a.workspace(nil).Login(*user)
	if err != nil {
		return fmt.Errorf("registering user: %w", err)
	}

	out := ingestOutput{Rejected: []string{}}

	uploads := make([]ingest.Upload, 0, fs.NArg())
	for _, path := range fs.Args() {
		up, err := ingest.LoadFile(path)
		if err != nil {
			out.Failed = append(out.Failed, ingest.Failure{Name: path, Err: err.Error()})
			continue
		}

		uploads = append(uploads, up)
	}

	pipeline := ingest.New(a.st, a.ai, a.clock, a.logger)
	res := pipeline.Enqueue(uploads...)
	out.Rejected = append(out.Rejected, res.Rejected...)

	rep, err := pipeline.RunAll(ctx, u.Name, policy)
	out.Created = rep.Created
	out.Replaced = rep.Replaced
	out.Skipped = rep.Skipped
	out.Failed = append(out.Failed, rep.Failed...)

	if perr := a.printJSON(out); perr != nil {
		return perr
	}

	return err
}

func runBackup(_ context.Context, a *app, args []string) error {
	fs := a.flags("backup")
	dir := fs.String("dir", ".", "directory to write the backup into")

	if err := fs.Parse(args); err != nil {
		return err
	}

	path, err := a.workspace(nil).WriteBackup(*dir)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, path)

	return nil
}

func runRestore(_ context.Context, a *app, args []string) error {
	path, err := oneArg(a.flags("restore"), args, "backup file")
	if err != nil {
		return err
	}

	if err := a.workspace(nil).RestoreFile(path); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "restored %d files and %d metadata titles\n", a.st.Files.Len(), a.st.MetadataTitles.Len())

	return nil
}

func runMerge(_ context.Context, a *app, args []string) error {
	path, err := oneArg(a.flags("merge"), args, "backup file")
	if err != nil {
		return err
	}

	sum, err := a.workspace(nil).MergeFile(path)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, sum.String())

	return nil
}

func runExport(_ context.Context, a *app, args []string) error {
	fs := a.flags("export")
	formatFlag := fs.String("format", string(export.FormatTXT), "txt, csv, xlsx or md")
	dir := fs.String("dir", ".", "directory to write into")
	idsFlag := fs.String("ids", "", "comma-separated file ids (default all)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	format, err := export.ParseFormat(*formatFlag)
	if err != nil {
		return err
	}

	var ids []string
	if *idsFlag != "" {
		for _, id := range strings.Split(*idsFlag, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	ws := a.workspace(nil)
	files := export.Select(ws.Files(), ids)

	var paths []string
	if format == export.FormatMarkdown {
		paths, err = export.MarkdownDir(*dir, files)
	} else {
		var path string
		path, err = export.WriteFile(*dir, format, files, ws.Titles(), a.clock.Now())
		paths = []string{path}
	}

	if err != nil {
		return err
	}

	for _, p := range paths {
		fmt.Fprintln(a.stdout, p)
	}

	return nil
}

func runHistory(_ context.Context, a *app, args []string) error {
	fs := a.flags("history")
	from := fs.String("from", "", "snapshot to diff from")
	to := fs.String("to", "", "snapshot to diff to (default the live titles)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	ws := a.workspace(nil)

	if *from == "" {
		for i, h := range ws.History() {
			ref := h.ID
			if ref == "" {
				ref = fmt.Sprintf("#%d", i+1)
			}

			fmt.Fprintf(a.stdout, "%s\t%s\t%s\n", ref, h.SavedAt.UTC().Format(time.RFC3339),
				strings.Join(models.TitleNames(h.MetadataTitles), ", "))
		}

		return nil
	}

	lines, err := ws.DiffHistory(*from, *to)
	if err != nil {
		return err
	}

	fmt.Fprint(a.stdout, workspace.FormatDiff(lines))

	return nil
}

func runUsers(_ context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: users expects list, add or delete", errUsage)
	}

	ws := a.workspace(nil)

	switch args[0] {
	case "list":
		for _, u := range ws.Users() {
			fmt.Fprintln(a.stdout, u.Name)
		}

		return nil

	case "add":
		name, err := oneArg(a.flags("users add"), args[1:], "name")
		if err != nil {
			return err
		}

		u, err := ws.AddUser(name)
		if err != nil {
			return err
		}

		fmt.Fprintln(a.stdout, u.Name)

		return nil

	case "delete":
		name, err := oneArg(a.flags("users delete"), args[1:], "name")
		if err != nil {
			return err
		}

		return ws.DeleteUser(name)

	default:
		return fmt.Errorf("%w: unknown users command %q", errUsage, args[0])
	}
}
