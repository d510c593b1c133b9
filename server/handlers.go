package server

import (
	"bytes"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robertmeta/feedcore/hierarchy"
	"github.com/robertmeta/feedcore/model"
	"github.com/robertmeta/feedcore/opml"
	"github.com/robertmeta/feedcore/store"
)

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tree.Sources())
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	src, err := s.tree.AddSource(req.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) handleRemoveSource(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err == nil {
		err = s.tree.RemoveSource(id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	nodes, err := s.tree.Tree(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleAddFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID int64  `json:"source_id"`
		ParentID int64  `json:"parent_id"`
		Title    string `json:"title"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	folder, err := s.tree.AddFolder(req.SourceID, req.ParentID, req.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

// handleUpdateFolder renames and/or moves a folder. A parent_id of 0 moves
// it to the source root.
func (s *Server) handleUpdateFolder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Title    *string `json:"title"`
		ParentID *int64  `json:"parent_id"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Title != nil {
		if err := s.tree.RenameFolder(id, *req.Title); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if req.ParentID != nil {
		if err := s.tree.MoveFolder(id, *req.ParentID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveFolder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err == nil {
		err = s.tree.RemoveFolder(id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tree.Feeds())
}

func (s *Server) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID int64  `json:"source_id"`
		FolderID int64  `json:"folder_id"`
		URL      string `json:"url"`
		Title    string `json:"title"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.tree.AddFeed(req.SourceID, req.FolderID, req.URL, req.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.tree.Feed(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handleUpdateFeed patches a feed. refresh_interval is a Go duration
// string; "0" clears it. folder_id moves the feed.
func (s *Server) handleUpdateFeed(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		URL             *string `json:"url"`
		Title           *string `json:"title"`
		RefreshInterval *string `json:"refresh_interval"`
		FolderID        *int64  `json:"folder_id"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	patch := hierarchy.FeedPatch{URL: req.URL, Title: req.Title}
	if req.RefreshInterval != nil {
		d, err := time.ParseDuration(*req.RefreshInterval)
		if err != nil {
			s.writeError(w, r, badRequest("invalid refresh_interval", err))
			return
		}
		patch.RefreshInterval = &d
	}
	if req.FolderID != nil {
		if err := s.tree.MoveFeed(id, *req.FolderID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	f, err := s.tree.UpdateFeed(id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleRemoveFeed(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err == nil {
		err = s.tree.RemoveFeed(id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshFeed(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	outcome, err := s.pipeline.Refresh(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// handleRefreshAll refreshes the listed feeds, or every feed when the body
// is empty or names none.
func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FeedIDs []int64 `json:"feed_ids"`
	}
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if len(req.FeedIDs) == 0 {
		req.FeedIDs = nil
	}
	writeJSON(w, http.StatusOK, s.pipeline.RefreshAll(r.Context(), req.FeedIDs))
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope, err := scopeParam(r, "scope")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := intQuery(r, "page", 1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pageSize, err := intQuery(r, "page_size", 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sf, err := intQuery(r, "script_folder", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	filter, err := store.BuildPostFilter(store.FilterParams{
		Filter:       q.Get("filter"),
		Flags:        q.Get("flags"),
		ScriptFolder: int64(sf),
		Since:        q.Get("since"),
		Search:       q.Get("search"),
		Category:     q.Get("category"),
		Order:        q.Get("order"),
	})
	if err != nil {
		s.writeError(w, r, badRequest("invalid filter", err))
		return
	}

	result, err := s.tree.ListPosts(scope, filter, pageSize, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.tree.Post(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleFlag(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		color, err := model.ParseFlagColor(chi.URLParam(r, "color"))
		if err != nil {
			s.writeError(w, r, badRequest("invalid flag color", err))
			return
		}
		if err := s.tree.SetFlag(id, color, on); err != nil {
			s.writeError(w, r, err)
			return
		}
		p, err := s.tree.Post(id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) handleUsedFlags(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r, "scope")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	used, err := s.tree.UsedFlagColors(scope)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, used)
}

type readRequest struct {
	Scope string `json:"scope"`
	Read  bool   `json:"read"`
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var ref model.NodeRef
	if req.Scope != "" {
		var err error
		if ref, err = model.ParseNodeRef(req.Scope); err != nil {
			s.writeError(w, r, badRequest("invalid scope", err))
			return
		}
	}
	changed, err := s.tree.MarkRead(ref, req.Read)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"changed": changed})
}

func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	ref, err := scopeParam(r, "node")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.tree.UnreadCount(ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r, "scope")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cats, err := s.tree.Categories(scope)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	ref, err := scopeParam(r, "node")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.tree.Statistics(ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleRegisterScript(w http.ResponseWriter, r *http.Request) {
	var sc model.Script
	if err := decode(r, &sc); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.registry.Register(sc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sc, err := s.registry.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleUpdateScript(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var sc model.Script
	if err := decode(r, &sc); err != nil {
		s.writeError(w, r, err)
		return
	}
	sc.ID = id
	updated, err := s.registry.Update(sc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleRemoveScript(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err == nil {
		err = s.registry.Remove(id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListScriptFolders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tree.ScriptFolders())
}

type titleRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateScriptFolder(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sf, err := s.tree.CreateScriptFolder(req.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sf)
}

func (s *Server) handleRenameScriptFolder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req titleRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.tree.RenameScriptFolder(id, req.Title); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveScriptFolder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err == nil {
		err = s.tree.RemoveScriptFolder(id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssign(assign bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sfID, err := idParam(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		postID, err := idParam(r, "postID")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if assign {
			err = s.tree.AssignToScriptFolder(sfID, postID)
		} else {
			err = s.tree.UnassignFromScriptFolder(sfID, postID)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleImport reads an OPML document from the body into ?source=.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	sourceID, err := intQuery(r, "source", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	subs, err := opml.Parse(r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.tree.Import(int64(sourceID), subs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sourceID, err := intQuery(r, "source", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	nodes, err := s.tree.Tree(int64(sourceID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := opml.Generate(&buf, "feedcore subscriptions", nodes); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-opml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r, "scope")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := intQuery(r, "page", 1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pageSize, err := intQuery(r, "page_size", 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, total, err := s.tree.Logs(scope, pageSize, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "total": total})
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r, "scope")
	if err == nil {
		err = s.tree.ClearLogs(scope)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
