package mcp

import (
	"context"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// rootsRequestTimeout bounds the round-trip to the client. A client that
// does not answer in time is treated as having no roots.
const rootsRequestTimeout = 3 * time.Second

// clientRoots is what a session told us about its workspace folders.
type clientRoots struct {
	URIs       []string
	ProjectDir string // first usable file:// root, or empty
}

func newClientRoots(roots []mcplib.Root) clientRoots {
	cr := clientRoots{}
	for _, root := range roots {
		cr.URIs = append(cr.URIs, root.URI)
		if cr.ProjectDir == "" {
			cr.ProjectDir = localPath(root.URI)
		}
	}
	return cr
}

// conflictsWith reports whether the client points at a project other than
// projectDir.
func (cr clientRoots) conflictsWith(projectDir string) bool {
	return cr.ProjectDir != "" && !sameDir(cr.ProjectDir, projectDir)
}

// sessionRoots remembers each session's roots so the client is asked once.
// Entries are dropped when the session unregisters.
type sessionRoots struct {
	mu       sync.Mutex
	sessions map[string]clientRoots
}

func newSessionRoots() *sessionRoots {
	return &sessionRoots{sessions: make(map[string]clientRoots)}
}

func (sr *sessionRoots) get(sessionID string) (clientRoots, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	cr, ok := sr.sessions[sessionID]
	return cr, ok
}

func (sr *sessionRoots) put(sessionID string, cr clientRoots) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.sessions[sessionID] = cr
}

func (sr *sessionRoots) forget(sessionID string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	delete(sr.sessions, sessionID)
}

// hooks evicts a session's roots when the transport drops it.
func (sr *sessionRoots) hooks() *mcpserver.Hooks {
	h := &mcpserver.Hooks{}
	h.AddOnUnregisterSession(func(_ context.Context, session mcpserver.ClientSession) {
		sr.forget(session.SessionID())
	})
	return h
}

// rootsFor asks the calling session for its roots. Sessions that fail or
// decline are remembered as having none.
func (s *Server) rootsFor(ctx context.Context) clientRoots {
	session := mcpserver.ClientSessionFromContext(ctx)
	if session == nil || session.SessionID() == "" {
		return clientRoots{}
	}
	id := session.SessionID()
	if cr, ok := s.roots.get(id); ok {
		return cr
	}

	reqCtx, cancel := context.WithTimeout(ctx, rootsRequestTimeout)
	defer cancel()
	var cr clientRoots
	result, err := s.mcpServer.RequestRoots(reqCtx, mcplib.ListRootsRequest{})
	if err != nil {
		s.logger.Debug("mcp roots request failed", "error", err, "session_id", id)
	} else {
		cr = newClientRoots(result.Roots)
	}
	s.roots.put(id, cr)
	return cr
}

// localPath converts a file:// URI to a directory path. Non-file URIs and
// the filesystem root yield "".
//
//	file:///home/user/my-project -> /home/user/my-project
func localPath(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme != "file" {
		return ""
	}
	path := filepath.Clean(parsed.Path)
	if path == "/" || path == "." {
		return ""
	}
	return path
}

// sameDir reports whether a and b name the same directory, resolving
// symlinks when both paths exist.
func sameDir(a, b string) bool {
	if ra, err := filepath.EvalSymlinks(a); err == nil {
		a = ra
	}
	if rb, err := filepath.EvalSymlinks(b); err == nil {
		b = rb
	}
	return filepath.Clean(a) == filepath.Clean(b)
}
