package model

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeKind identifies what a NodeRef points at.
type NodeKind string

const (
	NodePost         NodeKind = "post"
	NodeFeed         NodeKind = "feed"
	NodeFolder       NodeKind = "folder"
	NodeSource       NodeKind = "source"
	NodeScriptFolder NodeKind = "scriptfolder"
)

// NodeRef addresses a post, a node of the source tree, or a script folder.
type NodeRef struct {
	Kind NodeKind `json:"kind"`
	ID   int64    `json:"id"`
}

func PostRef(id int64) NodeRef         { return NodeRef{Kind: NodePost, ID: id} }
func FeedRef(id int64) NodeRef         { return NodeRef{Kind: NodeFeed, ID: id} }
func FolderRef(id int64) NodeRef       { return NodeRef{Kind: NodeFolder, ID: id} }
func SourceRef(id int64) NodeRef       { return NodeRef{Kind: NodeSource, ID: id} }
func ScriptFolderRef(id int64) NodeRef { return NodeRef{Kind: NodeScriptFolder, ID: id} }

func (r NodeRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// ParseNodeRef parses the "kind:id" form produced by String.
func ParseNodeRef(s string) (NodeRef, error) {
	kind, idStr, ok := strings.Cut(s, ":")
	if !ok {
		return NodeRef{}, fmt.Errorf("invalid node reference %q (expected kind:id)", s)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return NodeRef{}, fmt.Errorf("invalid node id in %q", s)
	}
	ref := NodeRef{Kind: NodeKind(kind), ID: id}
	switch ref.Kind {
	case NodePost, NodeFeed, NodeFolder, NodeSource, NodeScriptFolder:
		return ref, nil
	}
	return NodeRef{}, fmt.Errorf("unknown node kind %q", kind)
}
