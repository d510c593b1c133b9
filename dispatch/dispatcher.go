// Package dispatch runs the scripts matching a content event against the
// post that triggered it.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/robertmeta/feedcore/logging"
	"github.com/robertmeta/feedcore/model"
	"github.com/robertmeta/feedcore/script"
)

// Registry is the part of script.Registry the dispatcher needs.
type Registry interface {
	Match(feedID int64, kind model.EventKind) []model.Script
	RecordRun(id int64, at time.Time, runErr error) error
}

// Runner executes one script. *script.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, sc model.Script, api script.PostAPI) error
}

// Tree is the set of post mutations scripts may reach, plus the log.
// *hierarchy.Tree satisfies it.
type Tree interface {
	Post(id int64) (model.Post, error)
	MarkRead(ref model.NodeRef, read bool) (int, error)
	SetFlag(postID int64, color model.FlagColor, on bool) error
	AssignToScriptFolder(scriptFolderID, postID int64) error
	UnassignFromScriptFolder(scriptFolderID, postID int64) error
	AssignToNamedScriptFolder(title string, postID int64) (model.ScriptFolder, error)
	UnassignFromNamedScriptFolder(title string, postID int64) error
	AppendLog(level model.LogLevel, feedID int64, message string) error
}

// Dispatcher executes matching scripts for content events. Events for
// different posts may be dispatched concurrently; events for the same post
// are serialized.
type Dispatcher struct {
	registry Registry
	runner   Runner
	tree     Tree
	logger   *logging.Logger
	locks    *keyedMutex
	now      func() time.Time
}

func New(registry Registry, runner Runner, tree Tree, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{
		registry: registry,
		runner:   runner,
		tree:     tree,
		logger:   logger.ForComponent("dispatch"),
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// Dispatch runs every enabled script subscribed to kind whose scope contains
// the post's feed, one after another in registration order. A failing script
// keeps the mutations it made before failing, gets the error recorded
// against it, and does not stop the scripts after it.
func (d *Dispatcher) Dispatch(ctx context.Context, post model.Post, kind model.EventKind) []model.ScriptRun {
	scripts := d.registry.Match(post.FeedID, kind)
	if len(scripts) == 0 {
		return nil
	}

	unlock := d.locks.lock(post.ID)
	defer unlock()

	runs := make([]model.ScriptRun, 0, len(scripts))
	for _, sc := range scripts {
		run := model.ScriptRun{ScriptID: sc.ID, PostID: post.ID, Event: kind}

		handle := &postHandle{tree: d.tree, postID: post.ID, feedID: post.FeedID, script: sc.Filename, last: post}
		err := d.runner.Run(ctx, sc, handle)
		if recErr := d.registry.RecordRun(sc.ID, d.now(), err); recErr != nil {
			d.logger.Warn("failed to record script run", "script_id", sc.ID, "error", recErr)
		}

		if err != nil {
			run.Error = err.Error()
			d.logger.Error("script failed", "script_id", sc.ID, "script", sc.Filename,
				"post_id", post.ID, "event", kind, "error", err)
			msg := fmt.Sprintf("script %s failed on post %d: %v", sc.Filename, post.ID, err)
			if logErr := d.tree.AppendLog(model.LogError, post.FeedID, msg); logErr != nil {
				d.logger.Warn("failed to persist log", "error", logErr)
			}
		} else {
			d.logger.Debug("script ran", "script_id", sc.ID, "post_id", post.ID, "event", kind)
		}
		runs = append(runs, run)
	}
	return runs
}

// postHandle is the capability object handed to one script run. It can only
// touch the post it was created for.
type postHandle struct {
	tree   Tree
	postID int64
	feedID int64
	script string
	last   model.Post
}

func (h *postHandle) Post() model.Post {
	if p, err := h.tree.Post(h.postID); err == nil {
		h.last = p
	}
	return h.last
}

func (h *postHandle) MarkRead(read bool) error {
	_, err := h.tree.MarkRead(model.PostRef(h.postID), read)
	return err
}

func (h *postHandle) SetFlag(color model.FlagColor, on bool) error {
	return h.tree.SetFlag(h.postID, color, on)
}

func (h *postHandle) AssignToScriptFolder(t script.FolderTarget) error {
	if t.ID != 0 {
		return h.tree.AssignToScriptFolder(t.ID, h.postID)
	}
	_, err := h.tree.AssignToNamedScriptFolder(t.Name, h.postID)
	return err
}

func (h *postHandle) UnassignFromScriptFolder(t script.FolderTarget) error {
	if t.ID != 0 {
		return h.tree.UnassignFromScriptFolder(t.ID, h.postID)
	}
	return h.tree.UnassignFromNamedScriptFolder(t.Name, h.postID)
}

func (h *postHandle) Print(msg string) {
	// Output is best effort; a log write failure must not fail the script.
	_ = h.tree.AppendLog(model.LogInfo, h.feedID, fmt.Sprintf("[%s] %s", h.script, msg))
}
