package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates an MCP server exposing extraction as tools
func NewMCPServer(extractor *Extractor) *server.MCPServer {
	s := server.NewMCPServer(
		"shakeout",
		version,
		server.WithToolCapabilities(true),
	)
	AddExtractTool(s, extractor)
	AddListExportsTool(s, extractor)
	return s
}

// AddExtractTool registers the extract_export tool
func AddExtractTool(s *server.MCPServer, extractor *Extractor) {
	tool := mcp.NewTool(
		"extract_export",
		mcp.WithDescription("Reduce a TypeScript, TSX or Go source file to one exported declaration and everything it needs. Other exports, re-exports and code that becomes unused are removed."),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Name of the exported declaration to keep")),
		mcp.WithString("path",
			mcp.Description("Path of the source file (either path or source is required)")),
		mcp.WithString("source",
			mcp.Description("Inline source text (either path or source is required)")),
		mcp.WithString("language",
			mcp.Description("typescript, tsx or go (default: detected from path, typescript for inline source)")),
		mcp.WithString("mode",
			mcp.Description("refcount (default) or closure")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
	s.AddTool(tool, createExtractHandler(extractor))
}

// AddListExportsTool registers the list_exports tool
func AddListExportsTool(s *server.MCPServer, extractor *Extractor) {
	tool := mcp.NewTool(
		"list_exports",
		mcp.WithDescription("List the exported declarations of a source file, in declaration order. These are the valid targets of extract_export."),
		mcp.WithString("path",
			mcp.Description("Path of the source file (either path or source is required)")),
		mcp.WithString("source",
			mcp.Description("Inline source text (either path or source is required)")),
		mcp.WithString("language",
			mcp.Description("typescript, tsx or go (default: detected from path, typescript for inline source)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
	s.AddTool(tool, createListExportsHandler(extractor))
}

func createExtractHandler(extractor *Extractor) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, errResult := parseToolArguments(request)
		if errResult != nil {
			return errResult, nil
		}

		target := stringArg(args, "target")
		if target == "" {
			return mcp.NewToolResultError("target parameter is required"), nil
		}
		filename, src, err := toolSource(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		lang, err := ParseLanguage(stringArg(args, "language"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		mode, err := ParseMode(stringArg(args, "mode"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := extractor.Extract(ExtractionRequest{
			Filename: filename,
			Source:   src,
			Target:   target,
			Language: lang,
			Mode:     mode,
		})
		if err != nil {
			if isUserError(err) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return nil, err
		}
		return marshalToolResponse(result)
	}
}

func createListExportsHandler(extractor *Extractor) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, errResult := parseToolArguments(request)
		if errResult != nil {
			return errResult, nil
		}

		filename, src, err := toolSource(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		lang, err := ParseLanguage(stringArg(args, "language"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		targets, err := extractor.ListTargets(filename, lang, src)
		if err != nil {
			if isUserError(err) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return nil, err
		}
		return marshalToolResponse(map[string]any{"targets": targets})
	}
}

// parseToolArguments extracts the arguments map from an MCP tool request
func parseToolArguments(request mcp.CallToolRequest) (map[string]interface{}, *mcp.CallToolResult) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, mcp.NewToolResultError("invalid arguments format")
	}
	return args, nil
}

func stringArg(args map[string]interface{}, name string) string {
	value, _ := args[name].(string)
	return strings.TrimSpace(value)
}

// toolSource returns the filename and text a tool call refers to
func toolSource(args map[string]interface{}) (string, []byte, error) {
	path := stringArg(args, "path")
	source, _ := args["source"].(string)

	switch {
	case path != "" && source != "":
		return "", nil, errors.New("pass either path or source, not both")
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return path, data, nil
	case source != "":
		return "", []byte(source), nil
	default:
		return "", nil, errors.New("either path or source is required")
	}
}

// isUserError reports errors caused by the tool input rather than the server
func isUserError(err error) bool {
	var parseErr *ParseError
	var targetErr *TargetNotFoundError
	var langErr *LanguageError
	var modeErr *ModeError
	return errors.As(err, &parseErr) || errors.As(err, &targetErr) ||
		errors.As(err, &langErr) || errors.As(err, &modeErr)
}

// marshalToolResponse marshals a response object to JSON as an MCP tool result
func marshalToolResponse(response interface{}) (*mcp.CallToolResult, error) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
