package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/robertmeta/feedcore/hierarchy"
	"github.com/robertmeta/feedcore/ingest"
	"github.com/robertmeta/feedcore/model"
	"github.com/robertmeta/feedcore/opml"
	"github.com/robertmeta/feedcore/server"
	"github.com/robertmeta/feedcore/store"
)

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "serve",
			Usage: "Run the HTTP API and the refresh scheduler",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Usage: "Listen address (overrides config)"},
				&cli.BoolFlag{Name: "no-refresh", Usage: "Disable scheduled refreshes"},
			},
			Action: withCore(serve),
		},
		{
			Name:  "source",
			Usage: "Manage sources",
			Subcommands: []*cli.Command{
				{Name: "list", Usage: "List sources", Action: withCore(listSources)},
				{Name: "add", Usage: "Add a source", ArgsUsage: "<title>", Action: withCore(addSource)},
				{Name: "remove", Usage: "Remove a source and everything under it", ArgsUsage: "<source-id>", Action: withCore(removeSource)},
				{Name: "tree", Usage: "Show the folder/feed tree of a source", ArgsUsage: "<source-id>", Action: withCore(showTree)},
			},
		},
		{
			Name:  "folder",
			Usage: "Manage folders",
			Subcommands: []*cli.Command{
				{
					Name:      "add",
					Usage:     "Add a folder",
					ArgsUsage: "<title>",
					Flags: []cli.Flag{
						sourceFlag(),
						&cli.Int64Flag{Name: "parent", Aliases: []string{"p"}, Usage: "Parent folder ID (default: source root)"},
					},
					Action: withCore(addFolder),
				},
				{Name: "rename", Usage: "Rename a folder", ArgsUsage: "<folder-id> <title>", Action: withCore(renameFolder)},
				{
					Name:      "move",
					Usage:     "Move a folder",
					ArgsUsage: "<folder-id>",
					Flags: []cli.Flag{
						&cli.Int64Flag{Name: "parent", Aliases: []string{"p"}, Usage: "New parent folder ID (0 for the source root)"},
					},
					Action: withCore(moveFolder),
				},
				{Name: "remove", Usage: "Remove a folder and everything under it", ArgsUsage: "<folder-id>", Action: withCore(removeFolder)},
			},
		},
		{
			Name:  "feed",
			Usage: "Manage feeds",
			Subcommands: []*cli.Command{
				{Name: "list", Usage: "List all feeds", Action: withCore(listFeeds)},
				{
					Name:      "add",
					Usage:     "Subscribe to a feed",
					ArgsUsage: "<url>",
					Flags: []cli.Flag{
						sourceFlag(),
						&cli.Int64Flag{Name: "folder", Aliases: []string{"f"}, Usage: "Folder ID (default: source root)"},
						&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Title (default: fetched from the feed)"},
					},
					Action: withCore(addFeed),
				},
				{Name: "show", Usage: "Show a feed", ArgsUsage: "<feed-id>", Action: withCore(showFeed)},
				{
					Name:      "update",
					Usage:     "Change a feed",
					ArgsUsage: "<feed-id>",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "url", Usage: "New URL"},
						&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
						&cli.DurationFlag{Name: "interval", Aliases: []string{"i"}, Usage: "Refresh interval (0 uses the global interval)"},
						&cli.Int64Flag{Name: "folder", Aliases: []string{"f"}, Usage: "Move to folder ID (0 for the source root)"},
					},
					Action: withCore(updateFeed),
				},
				{Name: "remove", Usage: "Remove a feed", ArgsUsage: "<feed-id>", Action: withCore(removeFeed)},
			},
		},
		{
			Name:      "refresh",
			Usage:     "Fetch new posts (all feeds when none are given)",
			ArgsUsage: "[feed-id...]",
			Action:    withCore(refresh),
		},
		{
			Name:  "list",
			Usage: "List posts",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "scope", Usage: "Node to list (kind:id, e.g. feed:3)"},
				&cli.StringFlag{Name: "filter", Usage: "all, unread, flagged, unflagged or scriptfolder"},
				&cli.StringFlag{Name: "flags", Usage: "Comma separated flag colors"},
				&cli.Int64Flag{Name: "script-folder", Usage: "Script folder ID"},
				&cli.StringFlag{Name: "since", Aliases: []string{"s"}, Usage: "Show posts since duration (e.g., 7d, 2w, 3m, 1y)"},
				&cli.StringFlag{Name: "search", Usage: "Case-insensitive title search"},
				&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Only posts in this category (case-insensitive)"},
				&cli.StringFlag{Name: "order", Usage: "newest or oldest"},
				&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Value: 1, Usage: "Page number"},
				&cli.IntFlag{Name: "page-size", Aliases: []string{"l"}, Value: 50, Usage: "Posts per page"},
			},
			Action: withCore(listPosts),
		},
		{Name: "show", Usage: "Show a post", ArgsUsage: "<post-id>", Action: withCore(showPost)},
		{Name: "unread", Usage: "Show the unread count of a node (all sources by default)", ArgsUsage: "[kind:id]", Action: withCore(unreadCount)},
		{Name: "mark-read", Usage: "Mark posts or whole nodes as read", ArgsUsage: "<post-id|kind:id>...", Action: withCore(markRead(true))},
		{Name: "mark-unread", Usage: "Mark posts or whole nodes as unread", ArgsUsage: "<post-id|kind:id>...", Action: withCore(markRead(false))},
		{Name: "mark-all-read", Usage: "Mark every post as read", Action: withCore(markAllRead)},
		{Name: "flag", Usage: "Flag a post", ArgsUsage: "<post-id> <color>", Action: withCore(setFlag(true))},
		{Name: "unflag", Usage: "Remove a flag from a post", ArgsUsage: "<post-id> <color>", Action: withCore(setFlag(false))},
		{Name: "flags", Usage: "List flag colors in use", ArgsUsage: "[kind:id]", Action: withCore(usedFlags)},
		{Name: "categories", Usage: "List post categories with their post counts", ArgsUsage: "[kind:id]", Action: withCore(listCategories)},
		{Name: "stats", Usage: "Show feed and post statistics of a node (everything by default)", ArgsUsage: "[kind:id]", Action: withCore(statistics)},
		{
			Name:  "script",
			Usage: "Manage scripts",
			Subcommands: []*cli.Command{
				{Name: "list", Usage: "List scripts in run order", Action: withCore(listScripts)},
				{Name: "show", Usage: "Show a script", ArgsUsage: "<script-id>", Action: withCore(showScript)},
				{
					Name:      "add",
					Usage:     "Register a Lua script",
					ArgsUsage: "<file.lua>",
					Flags:     scriptFlags(),
					Action:    withCore(addScript),
				},
				{
					Name:      "update",
					Usage:     "Change a script",
					ArgsUsage: "<script-id>",
					Flags: append(scriptFlags(),
						&cli.StringFlag{Name: "file", Usage: "Replace the source with this file"},
						&cli.BoolFlag{Name: "enable", Usage: "Enable the script"},
						&cli.BoolFlag{Name: "all-feeds", Usage: "Run on every feed"},
					),
					Action: withCore(updateScript),
				},
				{Name: "remove", Usage: "Remove a script", ArgsUsage: "<script-id>", Action: withCore(removeScript)},
			},
		},
		{
			Name:  "scriptfolder",
			Usage: "Manage script folders",
			Subcommands: []*cli.Command{
				{Name: "list", Usage: "List script folders", Action: withCore(listScriptFolders)},
				{Name: "add", Usage: "Create a script folder", ArgsUsage: "<title>", Action: withCore(addScriptFolder)},
				{Name: "rename", Usage: "Rename a script folder", ArgsUsage: "<folder-id> <title>", Action: withCore(renameScriptFolder)},
				{Name: "remove", Usage: "Remove a script folder (posts are kept)", ArgsUsage: "<folder-id>", Action: withCore(removeScriptFolder)},
				{Name: "assign", Usage: "Put a post in a script folder", ArgsUsage: "<folder-id> <post-id>", Action: withCore(assignPost(true))},
				{Name: "unassign", Usage: "Take a post out of a script folder", ArgsUsage: "<folder-id> <post-id>", Action: withCore(assignPost(false))},
			},
		},
		{
			Name:      "import",
			Usage:     "Import feeds from an OPML file",
			ArgsUsage: "<opml-file>",
			Flags:     []cli.Flag{sourceFlag()},
			Action:    withCore(importOPML),
		},
		{
			Name:  "export",
			Usage: "Export a source to OPML",
			Flags: []cli.Flag{
				sourceFlag(),
				&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file (default: stdout)"},
			},
			Action: withCore(exportOPML),
		},
		{
			Name:  "logs",
			Usage: "Show or clear persisted logs",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "scope", Usage: "Feed, folder or source (kind:id)"},
				&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Value: 1, Usage: "Page number"},
				&cli.IntFlag{Name: "page-size", Aliases: []string{"l"}, Value: 100, Usage: "Entries per page"},
				&cli.BoolFlag{Name: "clear", Usage: "Delete the entries in scope"},
			},
			Action: withCore(showLogs),
		},
	}
}

func sourceFlag() cli.Flag {
	return &cli.Int64Flag{Name: "source", Aliases: []string{"s"}, Usage: "Source ID", Required: true}
}

func scriptFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "event", Aliases: []string{"e"}, Usage: "Event to run on (new-post, updated-post)"},
		&cli.Int64SliceFlag{Name: "feed", Aliases: []string{"f"}, Usage: "Restrict to feed ID (default: every feed)"},
		&cli.BoolFlag{Name: "disabled", Usage: "Register or switch the script disabled"},
	}
}

func serve(c *cli.Context, k *core) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := k.cfg.Server.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	if !c.Bool("no-refresh") {
		sched := ingest.NewScheduler(k.pipeline, ingest.SchedulerConfig{
			Interval:     k.cfg.RefreshInterval(),
			LogRetention: k.cfg.LogRetention(),
		}, k.logger)
		sched.Start(ctx)
		defer sched.Stop()
	}

	srv := server.New(k.tree, k.registry, k.pipeline, k.logger)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return cli.Exit(err.Error(), ExitGeneralError)
	}
	return nil
}

func listSources(c *cli.Context, k *core) error {
	return outputJSON(k.tree.Sources())
}

func addSource(c *cli.Context, k *core) error {
	if err := usage(c, 1, "<title>"); err != nil {
		return err
	}
	src, err := k.tree.AddSource(c.Args().Get(0))
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true, "source": src})
}

func removeSource(c *cli.Context, k *core) error {
	id, err := argID(c, 0, "source")
	if err != nil {
		return err
	}
	if err := k.tree.RemoveSource(id); err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true, "removed_source_id": id})
}

func showTree(c *cli.Context, k *core) error {
	id, err := argID(c, 0, "source")
	if err != nil {
		return err
	}
	nodes, err := k.tree.Tree(id)
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(nodes)
}

func addFolder(c *cli.Context, k *core) error {
	if err := usage(c, 1, "<title>"); err != nil {
		return err
	}
	folder, err := k.tree.AddFolder(c.Int64("source"), c.Int64("parent"), c.Args().Get(0))
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true, "folder": folder})
}

func renameFolder(c *cli.Context, k *core) error {
	if err := usage(c, 2, "<folder-id> <title>"); err != nil {
		return err
	}
	id, err := argID(c, 0, "folder")
	if err != nil {
		return err
	}
	if err := k.tree.RenameFolder(id, c.Args().Get(1)); err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true})
}

func moveFolder(c *cli.Context, k *core) error {
	id, err := argID(c, 0, "folder")
	if err != nil {
		return err
	}
	if err := k.tree.MoveFolder(id, c.Int64("parent")); err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true})
}

func removeFolder(c *cli.Context, k *core) error {
	id, err := argID(c, 0, "folder")
	if err != nil {
		return err
	}
	if err := k.tree.RemoveFolder(id); err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true, "removed_folder_id": id})
}

func listFeeds(c *cli.Context, k *core) error {
	return outputJSON(k.tree.Feeds())
}

func addFeed(c *cli.Context, k *core) error {
	if err := usage(c, 1, "<url>"); err != nil {
		return err
	}
	url := c.Args().Get(0)

	title := c.String("title")
	if title == "" {
		ctx, cancel := context.WithTimeout(c.Context, k.cfg.FetchTimeout())
		defer cancel()
		t, err := k.fetcher.Title(ctx, url)
		if err != nil {
			k.logger.Warn("could not fetch feed title", "url", url, "error", err)
		}
		title = t
	}

	f, err := k.tree.AddFeed(c.Int64("source"), c.Int64("folder"), url, title)
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true, "feed": f})
}

func showFeed(c *cli.Context, k *core) error {
	id, err := argID(c, 0, "feed")
	if err != nil {
		return err
	}
	f, err := k.tree.Feed(id)
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(f)
}

func updateFeed(c *cli.Context, k *core) error {
	id, err := argID(c, 0, "feed")
	if err != nil {
		return err
	}

	var patch hierarchy.FeedPatch
	if c.IsSet("url") {
		u := c.String("url")
		patch.URL = &u
	}
	if c.IsSet("title") {
		t := c.String("title")
		patch.Title = &t
	}
	if c.IsSet("interval") {
		d := c.Duration("interval")
		patch.RefreshInterval = &d
	}
	if c.IsSet("folder") {
		if err := k.tree.MoveFeed(id, c.Int64("folder")); err != nil {
			return exitErr(err)
		}
	}

	f, err := k.tree.UpdateFeed(id, patch)
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true, "feed": f})
}

func removeFeed(c *cli.Context, k *core) error {
	id, err := argID(c, 0, "feed")
	if err != nil {
		return err
	}
	if err := k.tree.RemoveFeed(id); err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true, "removed_feed_id": id})
}

func refresh(c *cli.Context, k *core) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	var ids []int64
	for i := 0; i < c.NArg(); i++ {
		id, err := argID(c, i, "feed")
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	results := k.pipeline.RefreshAll(ctx, ids)
	totalNew, failed := 0, 0
	for _, r := range results {
		totalNew += r.Outcome.New
		if r.Err != nil {
			failed++
		}
	}
	return outputJSON(map[string]interface{}{
		"updated_feeds":   len(results),
		"failed_feeds":    failed,
		"total_new_posts": totalNew,
		"results":         results,
	})
}

func listPosts(c *cli.Context, k *core) error {
	scope, err := optionalRef(c.String("scope"))
	if err != nil {
		return err
	}
	filter, err := store.BuildPostFilter(store.FilterParams{
		Filter:       c.String("filter"),
		Flags:        c.String("flags"),
		ScriptFolder: c.Int64("script-folder"),
		Since:        c.String("since"),
		Search:       c.String("search"),
		Category:     c.String("category"),
		Order:        c.String("order"),
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid query options: %v", err), ExitUsageError)
	}

	page, err := k.tree.ListPosts(scope, filter, c.Int("page-size"), c.Int("page"))
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(page)
}

func showPost(c *cli.Context, k *core) error {
	id, err := argID(c, 0, "post")
	if err != nil {
		return err
	}
	p, err := k.tree.Post(id)
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(p)
}

func unreadCount(c *cli.Context, k *core) error {
	ref, err := optionalRef(c.Args().Get(0))
	if err != nil {
		return err
	}
	n, err := k.tree.UnreadCount(ref)
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"node": ref.String(), "unread": n})
}

func markRead(read bool) func(c *cli.Context, k *core) error {
	return func(c *cli.Context, k *core) error {
		if err := usage(c, 1, "<post-id|kind:id>..."); err != nil {
			return err
		}
		changed := 0
		for _, arg := range c.Args().Slice() {
			ref, err := parseRef(arg)
			if err != nil {
				return err
			}
			n, err := k.tree.MarkRead(ref, read)
			if err != nil {
				return exitErr(err)
			}
			changed += n
		}
		return outputJSON(map[string]interface{}{"success": true, "changed": changed})
	}
}

func markAllRead(c *cli.Context, k *core) error {
	n, err := k.tree.MarkRead(model.NodeRef{}, true)
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true, "changed": n})
}

func setFlag(on bool) func(c *cli.Context, k *core) error {
	return func(c *cli.Context, k *core) error {
		if err := usage(c, 2, "<post-id> <color>"); err != nil {
			return err
		}
		id, err := argID(c, 0, "post")
		if err != nil {
			return err
		}
		color, err := model.ParseFlagColor(c.Args().Get(1))
		if err != nil {
			return cli.Exit(err.Error(), ExitUsageError)
		}
		if err := k.tree.SetFlag(id, color, on); err != nil {
			return exitErr(err)
		}
		p, err := k.tree.Post(id)
		if err != nil {
			return exitErr(err)
		}
		return outputJSON(p)
	}
}

func usedFlags(c *cli.Context, k *core) error {
	ref, err := optionalRef(c.Args().Get(0))
	if err != nil {
		return err
	}
	used, err := k.tree.UsedFlagColors(ref)
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(used)
}

func listCategories(c *cli.Context, k *core) error {
	ref, err := optionalRef(c.Args().Get(0))
	if err != nil {
		return err
	}
	cats, err := k.tree.Categories(ref)
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(cats)
}

func statistics(c *cli.Context, k *core) error {
	ref, err := optionalRef(c.Args().Get(0))
	if err != nil {
		return err
	}
	stats, err := k.tree.Statistics(ref)
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(stats)
}

func listScripts(c *cli.Context, k *core) error {
	return outputJSON(k.registry.List())
}

func showScript(c *cli.Context, k *core) error {
	id, err := argID(c, 0, "script")
	if err != nil {
		return err
	}
	sc, err := k.registry.Get(id)
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(sc)
}

func scriptEvents(c *cli.Context) ([]model.EventKind, error) {
	var events []model.EventKind
	for _, name := range c.StringSlice("event") {
		e, err := model.ParseEventKind(name)
		if err != nil {
			return nil, cli.Exit(err.Error(), ExitUsageError)
		}
		events = append(events, e)
	}
	return events, nil
}

func addScript(c *cli.Context, k *core) error {
	if err := usage(c, 1, "<file.lua>"); err != nil {
		return err
	}
	path := c.Args().Get(0)
	src, err := os.ReadFile(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to read script: %v", err), ExitDataError)
	}

	events, err := scriptEvents(c)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		events = []model.EventKind{model.EventNewPost}
	}
	scope := model.AllFeeds()
	if ids := c.Int64Slice("feed"); len(ids) > 0 {
		scope = model.FeedSubset(ids...)
	}

	sc, err := k.registry.Register(model.Script{
		Filename: filepath.Base(path),
		Enabled:  !c.Bool("disabled"),
		Events:   events,
		Scope:    scope,
		Source:   string(src),
	})
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true, "script": sc})
}

func updateScript(c *cli.Context, k *core) error {
	id, err := argID(c, 0, "script")
	if err != nil {
		return err
	}
	sc, err := k.registry.Get(id)
	if err != nil {
		return exitErr(err)
	}

	if c.IsSet("file") {
		path := c.String("file")
		src, err := os.ReadFile(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to read script: %v", err), ExitDataError)
		}
		sc.Filename = filepath.Base(path)
		sc.Source = string(src)
	}
	if c.IsSet("event") {
		if sc.Events, err = scriptEvents(c); err != nil {
			return err
		}
	}
	if c.IsSet("feed") {
		sc.Scope = model.FeedSubset(c.Int64Slice("feed")...)
	}
	if c.Bool("all-feeds") {
		sc.Scope = model.AllFeeds()
	}
	if c.Bool("enable") {
		sc.Enabled = true
	}
	if c.Bool("disabled") {
		sc.Enabled = false
	}

	updated, err := k.registry.Update(sc)
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true, "script": updated})
}

func removeScript(c *cli.Context, k *core) error {
	id, err := argID(c, 0, "script")
	if err != nil {
		return err
	}
	if err := k.registry.Remove(id); err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true, "removed_script_id": id})
}

func listScriptFolders(c *cli.Context, k *core) error {
	return outputJSON(k.tree.ScriptFolders())
}

func addScriptFolder(c *cli.Context, k *core) error {
	if err := usage(c, 1, "<title>"); err != nil {
		return err
	}
	sf, err := k.tree.CreateScriptFolder(c.Args().Get(0))
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true, "script_folder": sf})
}

func renameScriptFolder(c *cli.Context, k *core) error {
	if err := usage(c, 2, "<folder-id> <title>"); err != nil {
		return err
	}
	id, err := argID(c, 0, "script folder")
	if err != nil {
		return err
	}
	if err := k.tree.RenameScriptFolder(id, c.Args().Get(1)); err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true})
}

func removeScriptFolder(c *cli.Context, k *core) error {
	id, err := argID(c, 0, "script folder")
	if err != nil {
		return err
	}
	if err := k.tree.RemoveScriptFolder(id); err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true, "removed_script_folder_id": id})
}

func assignPost(assign bool) func(c *cli.Context, k *core) error {
	return func(c *cli.Context, k *core) error {
		if err := usage(c, 2, "<folder-id> <post-id>"); err != nil {
			return err
		}
		sfID, err := argID(c, 0, "script folder")
		if err != nil {
			return err
		}
		postID, err := argID(c, 1, "post")
		if err != nil {
			return err
		}
		if assign {
			err = k.tree.AssignToScriptFolder(sfID, postID)
		} else {
			err = k.tree.UnassignFromScriptFolder(sfID, postID)
		}
		if err != nil {
			return exitErr(err)
		}
		return outputJSON(map[string]interface{}{"success": true})
	}
}

func importOPML(c *cli.Context, k *core) error {
	if err := usage(c, 1, "<opml-file>"); err != nil {
		return err
	}
	file, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to open file: %v", err), ExitDataError)
	}
	defer file.Close()

	subs, err := opml.Parse(file)
	if err != nil {
		return exitErr(err)
	}
	result, err := k.tree.Import(c.Int64("source"), subs)
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"success": true, "result": result})
}

func exportOPML(c *cli.Context, k *core) error {
	nodes, err := k.tree.Tree(c.Int64("source"))
	if err != nil {
		return exitErr(err)
	}

	var w io.Writer = os.Stdout
	if out := c.String("output"); out != "" {
		file, err := os.Create(out)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to create file: %v", err), ExitDataError)
		}
		defer file.Close()
		w = file
	}

	title := fmt.Sprintf("feedcore export %s", time.Now().Format(time.DateOnly))
	if err := opml.Generate(w, title, nodes); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to generate OPML: %v", err), ExitDataError)
	}
	return nil
}

func showLogs(c *cli.Context, k *core) error {
	scope, err := optionalRef(c.String("scope"))
	if err != nil {
		return err
	}
	if c.Bool("clear") {
		if err := k.tree.ClearLogs(scope); err != nil {
			return exitErr(err)
		}
		return outputJSON(map[string]interface{}{"success": true})
	}

	entries, total, err := k.tree.Logs(scope, c.Int("page-size"), c.Int("page"))
	if err != nil {
		return exitErr(err)
	}
	return outputJSON(map[string]interface{}{"total": total, "entries": entries})
}
