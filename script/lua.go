package script

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/robertmeta/feedcore/model"
)

// Version is exposed to scripts as FEEDCORE_VERSION.
const Version = "0.1.0"

// FolderTarget names a script folder by id or, when ID is zero, by title.
type FolderTarget struct {
	ID   int64
	Name string
}

func (t FolderTarget) String() string {
	if t.ID != 0 {
		return fmt.Sprintf("#%d", t.ID)
	}
	return fmt.Sprintf("%q", t.Name)
}

// PostAPI is everything a script may do. It is bound to the post that
// triggered the event; scripts get no other handle on the system.
type PostAPI interface {
	Post() model.Post
	MarkRead(read bool) error
	SetFlag(color model.FlagColor, on bool) error
	AssignToScriptFolder(t FolderTarget) error
	UnassignFromScriptFolder(t FolderTarget) error
	Print(msg string)
}

// Runner executes script source in a fresh Lua state per run.
type Runner struct {
	timeout time.Duration
}

// NewRunner creates a runner. A zero timeout leaves runs bounded only by the
// caller's context.
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{timeout: timeout}
}

var safeLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// Run executes sc against api. Runtime errors and timeouts come back as
// SCRIPT_FAILURE errors; mutations made before the failure stay applied.
func (r *Runner) Run(ctx context.Context, sc model.Script, api PostAPI) error {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	for _, lib := range safeLibs {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return model.NewScriptFailure("failed to open lua library "+lib.name, err)
		}
	}
	for _, name := range []string{"dofile", "loadfile"} {
		L.SetGlobal(name, lua.LNil)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	L.SetContext(ctx)

	L.SetGlobal("FEEDCORE_VERSION", lua.LString(Version))
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		api.Print(strings.Join(parts, "\t"))
		return 0
	}))
	L.SetGlobal("CurrentPost", newPostTable(L, api))

	if err := L.DoString(sc.Source); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return model.NewScriptFailure(fmt.Sprintf("script %s exceeded its time limit", sc.Filename), ctxErr)
			}
			return model.NewScriptFailure(fmt.Sprintf("script %s cancelled", sc.Filename), ctxErr)
		}
		return model.NewScriptFailure(fmt.Sprintf("script %s failed", sc.Filename), err)
	}
	return nil
}

// newPostTable builds the CurrentPost global. Methods accept both
// CurrentPost:flag("red") and CurrentPost.flag("red").
func newPostTable(L *lua.LState, api PostAPI) *lua.LTable {
	tbl := L.NewTable()
	syncPostFields(L, tbl, api.Post())

	// arg returns the n-th user argument, skipping self when present.
	arg := func(L *lua.LState, n int) lua.LValue {
		if L.Get(1) == tbl {
			n++
		}
		return L.Get(n)
	}

	mutate := func(fn func(L *lua.LState) error) *lua.LFunction {
		return L.NewFunction(func(L *lua.LState) int {
			if err := fn(L); err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			syncPostFields(L, tbl, api.Post())
			return 0
		})
	}

	color := func(L *lua.LState) (model.FlagColor, error) {
		v := arg(L, 1)
		s, ok := v.(lua.LString)
		if !ok {
			return 0, fmt.Errorf("flag color must be a string, got %s", v.Type())
		}
		return model.ParseFlagColor(string(s))
	}

	target := func(L *lua.LState) (FolderTarget, error) {
		switch v := arg(L, 1).(type) {
		case lua.LNumber:
			f := float64(v)
			if f != math.Trunc(f) || f < 1 || f >= math.MaxInt64 {
				return FolderTarget{}, fmt.Errorf("script folder id must be a positive integer, got %s", v.String())
			}
			return FolderTarget{ID: int64(f)}, nil
		case lua.LString:
			if v == "" {
				return FolderTarget{}, errors.New("script folder name is empty")
			}
			return FolderTarget{Name: string(v)}, nil
		default:
			return FolderTarget{}, fmt.Errorf("script folder must be an id or a name, got %s", v.Type())
		}
	}

	L.SetField(tbl, "markAsRead", mutate(func(L *lua.LState) error {
		return api.MarkRead(true)
	}))
	L.SetField(tbl, "markAsUnread", mutate(func(L *lua.LState) error {
		return api.MarkRead(false)
	}))
	L.SetField(tbl, "flag", mutate(func(L *lua.LState) error {
		c, err := color(L)
		if err != nil {
			return err
		}
		return api.SetFlag(c, true)
	}))
	L.SetField(tbl, "unflag", mutate(func(L *lua.LState) error {
		c, err := color(L)
		if err != nil {
			return err
		}
		return api.SetFlag(c, false)
	}))
	L.SetField(tbl, "assignToScriptFolder", mutate(func(L *lua.LState) error {
		t, err := target(L)
		if err != nil {
			return err
		}
		return api.AssignToScriptFolder(t)
	}))
	L.SetField(tbl, "unassignFromScriptFolder", mutate(func(L *lua.LState) error {
		t, err := target(L)
		if err != nil {
			return err
		}
		return api.UnassignFromScriptFolder(t)
	}))

	return tbl
}

func syncPostFields(L *lua.LState, tbl *lua.LTable, p model.Post) {
	L.SetField(tbl, "id", lua.LNumber(p.ID))
	L.SetField(tbl, "feedID", lua.LNumber(p.FeedID))
	L.SetField(tbl, "guid", lua.LString(p.GUID))
	L.SetField(tbl, "title", lua.LString(p.Title))
	L.SetField(tbl, "link", lua.LString(p.Link))
	L.SetField(tbl, "content", lua.LString(p.Content))
	L.SetField(tbl, "author", lua.LString(p.Author))
	L.SetField(tbl, "commentsURL", lua.LString(p.CommentsURL))
	L.SetField(tbl, "published", lua.LString(p.Published.UTC().Format(time.RFC3339)))
	L.SetField(tbl, "isRead", lua.LBool(p.IsRead))

	flags := L.NewTable()
	for _, c := range p.Flags.Colors() {
		flags.Append(lua.LString(c.String()))
	}
	L.SetField(tbl, "flags", flags)

	categories := L.NewTable()
	for _, c := range p.Categories {
		categories.Append(lua.LString(c))
	}
	L.SetField(tbl, "categories", categories)

	enclosures := L.NewTable()
	for _, e := range p.Enclosures {
		enc := L.NewTable()
		L.SetField(enc, "url", lua.LString(e.URL))
		L.SetField(enc, "mimeType", lua.LString(e.MimeType))
		L.SetField(enc, "size", lua.LNumber(e.Size))
		enclosures.Append(enc)
	}
	L.SetField(tbl, "enclosures", enclosures)
}
