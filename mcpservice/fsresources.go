package mcpservice

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/sessions"
	"github.com/fsnotify/fsnotify"
)

// FSResources is a ResourcesCapability backed by a slice of a
// filesystem. It can wrap an OS directory (symlink escape is prevented)
// or a generic fs.FS such as embed.FS (symlinks are not followed and
// parent traversal is rejected).
//
// Files are exposed as concrete resources under a base URI, plus one
// resource template covering arbitrary paths under that base. A host
// that mounts or imports an FSResources-backed server therefore
// exercises every capability kind except prompts.
type FSResources struct {
	fsys   fs.FS
	osRoot string // absolute, symlink-evaluated root on disk (if set)

	baseURI  string
	pageSize int

	notifier  ChangeNotifier
	watchOnce sync.Once
	watching  atomic.Bool
	cancel    context.CancelFunc
}

// FSOption configures FSResources.
type FSOption func(*FSResources)

// WithOSDir sets the root to an OS directory. Symlinks are resolved and
// reads are constrained to the resolved root.
func WithOSDir(root string) FSOption {
	return func(r *FSResources) {
		if !filepath.IsAbs(root) {
			if abs, err := filepath.Abs(root); err == nil {
				root = abs
			}
		}
		if real, err := filepath.EvalSymlinks(root); err == nil {
			root = real
		}
		r.osRoot = root
		r.fsys = os.DirFS(root)
	}
}

// WithFS provides a generic fs.FS (e.g. embed.FS). Parent traversal is
// rejected and symlinks are not followed.
func WithFS(f fs.FS) FSOption {
	return func(r *FSResources) { r.fsys = f; r.osRoot = "" }
}

// WithBaseURI sets the URI prefix used in Resource.URI, e.g.
// "fs://workspace". Defaults to "fs:/".
func WithBaseURI(base string) FSOption {
	return func(r *FSResources) { r.baseURI = strings.TrimRight(base, "/") }
}

// WithFSPageSize sets the listing page size.
func WithFSPageSize(n int) FSOption {
	return func(r *FSResources) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// NewFSResources constructs a filesystem-backed resources capability.
func NewFSResources(opts ...FSOption) *FSResources {
	r := &FSResources{baseURI: "fs:/", pageSize: DefaultPageSize}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ListResources implements ResourcesCapability.
func (r *FSResources) ListResources(ctx context.Context, _ sessions.Session, cursor *string) (Page[mcp.Resource], error) {
	if r.fsys == nil {
		return NewPage[mcp.Resource](nil), nil
	}
	all, err := r.scanFiles(ctx)
	if err != nil {
		return NewPage[mcp.Resource](nil), err
	}
	return PageSlice(all, cursor, r.pageSize), nil
}

// ListResourceTemplates implements ResourcesCapability. A single
// template covers any path under the base URI.
func (r *FSResources) ListResourceTemplates(ctx context.Context, _ sessions.Session, cursor *string) (Page[mcp.ResourceTemplate], error) {
	all := []mcp.ResourceTemplate{{
		URITemplate: r.baseURI + "/{+path}",
		Name:        "file",
		Description: "A file under the served directory, addressed by relative path.",
	}}
	return PageSlice(all, cursor, r.pageSize), nil
}

// ReadResource implements ResourcesCapability.
func (r *FSResources) ReadResource(ctx context.Context, _ sessions.Session, uri string) ([]mcp.ResourceContents, error) {
	if r.fsys == nil {
		return nil, fmt.Errorf("resource not found: %s", uri)
	}
	rel, ok := r.uriToRel(uri)
	if !ok {
		return nil, fmt.Errorf("resource not found: %s", uri)
	}

	// OS-backed roots resolve symlinks and check containment before
	// touching the file.
	if r.osRoot != "" {
		abs := filepath.Join(r.osRoot, filepath.FromSlash(rel))
		real, err := filepath.EvalSymlinks(abs)
		if err != nil || !within(real, r.osRoot) {
			return nil, fmt.Errorf("resource not found: %s", uri)
		}
		data, err := os.ReadFile(real)
		if err != nil {
			return nil, fmt.Errorf("read failed: %w", err)
		}
		mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(real)))
		return []mcp.ResourceContents{contentsFor(uri, mt, data)}, nil
	}

	if !validFSPath(rel) {
		return nil, fmt.Errorf("resource not found: %s", uri)
	}
	data, err := fs.ReadFile(r.fsys, rel)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	mt := mime.TypeByExtension(strings.ToLower(path.Ext(rel)))
	return []mcp.ResourceContents{contentsFor(uri, mt, data)}, nil
}

// Subscriber implements ChangeSubscriber. For OS-backed roots the first
// call lazily starts an fsnotify watcher over the directory tree.
func (r *FSResources) Subscriber() <-chan struct{} {
	r.watchOnce.Do(func() {
		if r.osRoot == "" {
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		go r.runWatcher(ctx)
	})
	return r.notifier.Subscriber()
}

// Close stops the watcher, if running, and closes all subscribers.
func (r *FSResources) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.notifier.Close()
}

func (r *FSResources) runWatcher(ctx context.Context) {
	if !r.watching.CompareAndSwap(false, true) {
		return
	}
	defer r.watching.Store(false)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("fsnotify unavailable", slog.String("err", err.Error()))
		return
	}
	defer func() {
		_ = w.Close()
	}()

	// Watch every directory under the root. fsnotify does not recurse.
	_ = filepath.WalkDir(r.osRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return w.Add(p)
	})

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = w.Add(ev.Name)
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0 {
				_ = r.notifier.Notify(ctx)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Debug("fsnotify error", slog.String("err", err.Error()))
		}
	}
}

func (r *FSResources) scanFiles(ctx context.Context) ([]mcp.Resource, error) {
	var out []mcp.Resource
	err := fs.WalkDir(r.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort listing
		}
		if d.IsDir() || isSymlink(d) || !validFSPath(p) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		mt := mime.TypeByExtension(strings.ToLower(path.Ext(p)))
		out = append(out, mcp.Resource{URI: r.relToURI(p), Name: path.Base(p), MimeType: mt})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out, nil
}

func contentsFor(uri, mimeType string, data []byte) mcp.ResourceContents {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if utf8.Valid(data) {
		return mcp.ResourceContents{URI: uri, MimeType: mimeType, Text: string(data)}
	}
	return mcp.ResourceContents{URI: uri, MimeType: mimeType, Blob: base64.StdEncoding.EncodeToString(data)}
}

func isSymlink(d fs.DirEntry) bool {
	if d == nil {
		return false
	}
	if d.Type()&fs.ModeSymlink != 0 {
		return true
	}
	if info, err := d.Info(); err == nil {
		return info.Mode()&fs.ModeSymlink != 0
	}
	return false
}

func validFSPath(p string) bool {
	// fs.ValidPath requires clean, no leading slash, no ".." segments.
	// The colon check rejects Windows volume roots and URI schemes.
	return fs.ValidPath(p) && !strings.Contains(p, ":")
}

func (r *FSResources) relToURI(rel string) string {
	segs := strings.Split(rel, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return r.baseURI + "/" + strings.Join(segs, "/")
}

func (r *FSResources) uriToRel(uri string) (string, bool) {
	base := r.baseURI + "/"
	if !strings.HasPrefix(uri, base) {
		return "", false
	}
	segs := strings.Split(strings.TrimPrefix(uri, base), "/")
	for i, s := range segs {
		dec, err := url.PathUnescape(s)
		if err != nil {
			return "", false
		}
		segs[i] = dec
	}
	rel := path.Clean(strings.Join(segs, "/"))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// within reports whether target equals root or is a descendant of root.
func within(target, root string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && !strings.HasPrefix(rel, "../")
}
