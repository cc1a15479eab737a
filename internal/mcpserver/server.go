// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the Lattice link graph to LLMs via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/engine"
	"github.com/starford/lattice/internal/graph"
	"github.com/starford/lattice/internal/noteservice"
)

const linkSyntaxURI = "lattice://link-syntax"

// Server wraps the MCP server with Lattice tools.
type Server struct {
	mcp          *server.MCPServer
	svc          *noteservice.Service
	engine       *engine.Engine
	defaultDepth int
}

// New creates a new MCP server with all Lattice tools registered.
func New(svc *noteservice.Service, eng *engine.Engine, defaultDepth int) *Server {
	if defaultDepth <= 0 {
		defaultDepth = 1
	}
	s := &Server{svc: svc, engine: eng, defaultDepth: defaultDepth}

	s.mcp = server.NewMCPServer(
		"Lattice",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through notes content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new Markdown note at the specified path. "+
			"Links use [[wikilink]] syntax; read get_link_syntax or the "+linkSyntaxURI+
			" resource first so the links resolve."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new note (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_link_syntax",
		mcp.WithDescription("Returns the wikilink syntax and the rules used to resolve links into the graph."),
	), s.getLinkSyntax)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, optionally filtered by tag."),
		mcp.WithString("tag", mcp.Description("Optional tag; nested tags match their parent")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_outgoing_links",
		mcp.WithDescription("List the wikilinks of a note with the note or concept each resolves to."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note")),
	), s.getOutgoingLinks)

	s.mcp.AddTool(mcp.NewTool("get_unlinked_mentions",
		mcp.WithDescription("Find plain-text mentions of a note's title that are not linked yet."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note")),
	), s.getUnlinkedMentions)

	s.mcp.AddTool(mcp.NewTool("resolve_link",
		mcp.WithDescription("Resolve a wikilink target to the note it links to, or the concept it creates."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Link target as written inside [[ ]]")),
	), s.resolveLink)

	s.mcp.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Return the vault link graph: notes, concepts and the edges between them."),
		mcp.WithString("folder", mcp.Description("Restrict to notes under this folder")),
		mcp.WithString("tag", mcp.Description("Restrict to notes carrying this tag")),
		mcp.WithBoolean("show_concept_links", mcp.Description("Include edges to concepts (default true)")),
		mcp.WithBoolean("show_orphans", mcp.Description("Include unconnected notes (default true)")),
	), s.getGraph)

	s.mcp.AddTool(mcp.NewTool("get_local_graph",
		mcp.WithDescription("Return the neighborhood of a note within a number of hops."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the center note")),
		mcp.WithNumber("depth", mcp.Description("Hops from the center, 1 to 3")),
	), s.getLocalGraph)

	s.mcp.AddResource(
		mcp.NewResource(linkSyntaxURI, "Link Syntax",
			mcp.WithResourceDescription("Wikilink syntax and resolution rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLinkSyntaxResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errorResult(path string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, path)
	if err != nil {
		return errorResult(path, err), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.CreateNote(ctx, path, []byte(content)); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return mcp.NewToolResultError(fmt.Sprintf("note already exists: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", path)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag := req.GetString("tag", "")
	limit := req.GetInt("limit", 50)
	offset := req.GetInt("offset", 0)
	items, total, err := s.svc.ListNotes(ctx, limit, offset, tag, "path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"notes": items, "total": total})
}

func (s *Server) getLinkSyntax(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LinkSyntaxGuide), nil
}

func (s *Server) readLinkSyntaxResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      linkSyntaxURI,
			MIMEType: "text/markdown",
			Text:     LinkSyntaxGuide,
		},
	}, nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.engine.Backlinks(ctx, path)
	if err != nil {
		return errorResult(path, err), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return jsonResult(bl)
}

func (s *Server) getOutgoingLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.engine.OutgoingLinks(ctx, path)
	if err != nil {
		return errorResult(path, err), nil
	}
	return jsonResult(links)
}

func (s *Server) getUnlinkedMentions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mentions, err := s.engine.UnlinkedMentions(ctx, path)
	if err != nil {
		return errorResult(path, err), nil
	}
	return jsonResult(mentions)
}

func (s *Server) resolveLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if path, ok := s.engine.Resolve(target); ok {
		return jsonResult(graph.Resolved{TargetPath: path})
	}
	return jsonResult(graph.Unresolved{ConceptName: graph.NormalizeTarget(target)})
}

func (s *Server) getGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := graph.Filters{
		Folder:           req.GetString("folder", ""),
		Tag:              req.GetString("tag", ""),
		ShowConceptLinks: req.GetBool("show_concept_links", true),
		ShowOrphans:      req.GetBool("show_orphans", true),
	}
	g, err := s.engine.Graph(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(g)
}

func (s *Server) getLocalGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	depth := req.GetInt("depth", s.defaultDepth)
	g, err := s.engine.LocalGraph(ctx, path, depth, graph.DefaultFilters())
	if err != nil {
		return errorResult(path, err), nil
	}
	return jsonResult(g)
}
