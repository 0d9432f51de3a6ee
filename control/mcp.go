package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const toolPrefix = "synth_"

// NewServer returns an MCP server exposing c as tools.
func NewServer(c *Controller, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"algo-synth",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	partArg := mcp.WithNumber("part", mcp.Required(), mcp.Min(1), mcp.Max(16), mcp.Description("Part number (1-16)."))
	progArg := mcp.WithNumber("program", mcp.Required(), mcp.Min(0), mcp.Max(1023),
		mcp.Description("Program number; 0 is the session patch of the part."))

	s.AddTool(mcp.NewTool(toolPrefix+"status",
		mcp.WithDescription("Reports the engine state and the program every part plays."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(c.Status())
	})

	s.AddTool(mcp.NewTool(toolPrefix+"set-audio",
		mcp.WithDescription("Restarts the audio stream with a new sample rate and period. Sounding notes are cut."),
		mcp.WithNumber("sample_rate", mcp.Required(), mcp.Min(8000), mcp.Max(192000)),
		mcp.WithNumber("period", mcp.Required(), mcp.Min(16), mcp.Max(8192), mcp.Description("Frames per period")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rate, err := req.RequireInt("sample_rate")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		period, err := req.RequireInt("period")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := c.SetAudio(rate, period); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Audio restarting at %d Hz, %d frames per period.", rate, period)), nil
	})

	s.AddTool(mcp.NewTool(toolPrefix+"list-params",
		mcp.WithDescription("Lists the parameters of the patch a part plays."),
		partArg,
		mcp.WithString("section", mcp.Description("Only list parameters of this section, e.g. osc1 or filter.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		part, err := req.RequireInt("part")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		params, err := c.Params(part, req.GetString("section", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(params)
	})

	s.AddTool(mcp.NewTool(toolPrefix+"get-param",
		mcp.WithDescription("Returns one parameter of the patch a part plays."),
		partArg,
		mcp.WithString("name", mcp.Required(), mcp.Description("Parameter name as used in patch files.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		part, err := req.RequireInt("part")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		name, err := req.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p, err := c.Param(part, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(p)
	})

	s.AddTool(mcp.NewTool(toolPrefix+"set-param",
		mcp.WithDescription("Sets one parameter of the patch a part plays. The value is a name from the parameter's value list or a controller value."),
		partArg,
		mcp.WithString("name", mcp.Required(), mcp.Description("Parameter name as used in patch files.")),
		mcp.WithString("value", mcp.Required(), mcp.Description("New value.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		part, err := req.RequireInt("part")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		name, err := req.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p, err := c.SetParam(part, name, value)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(p)
	})

	s.AddTool(mcp.NewTool(toolPrefix+"changed-params",
		mcp.WithDescription("Returns the parameters of a part that changed since the previous call."),
		partArg,
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		part, err := req.RequireInt("part")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		params, err := c.Changed(part)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(params)
	})

	s.AddTool(mcp.NewTool(toolPrefix+"load-patch",
		mcp.WithDescription("Loads a patch file into a program slot."),
		partArg, progArg,
		mcp.WithString("file", mcp.Required(), mcp.Description("Patch file, relative to the user patch directory or absolute.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		part, prog, err := partProgram(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		file, err := req.RequireString("file")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := c.LoadPatch(part, prog, file); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Loaded %s into part %d program %d.", file, part, prog)), nil
	})

	s.AddTool(mcp.NewTool(toolPrefix+"save-patch",
		mcp.WithDescription("Saves a program slot to a patch file."),
		partArg, progArg,
		mcp.WithString("file", mcp.Description("Patch file; defaults to the patch's own file.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		part, prog, err := partProgram(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := c.SavePatch(part, prog, req.GetString("file", "")); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Patch saved."), nil
	})

	s.AddTool(mcp.NewTool(toolPrefix+"select-program",
		mcp.WithDescription("Makes a part play a program."),
		partArg, progArg,
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		part, prog, err := partProgram(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := c.SelectProgram(part, prog); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Part %d plays program %d.", part, prog)), nil
	})

	s.AddTool(mcp.NewTool(toolPrefix+"select-session",
		mcp.WithDescription("Activates a session; session 0 is the autosave session."),
		mcp.WithNumber("session", mcp.Required(), mcp.Min(0), mcp.Max(1023)),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, err := req.RequireInt("session")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := c.SelectSession(n); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Session %d active.", n)), nil
	})

	s.AddTool(mcp.NewTool(toolPrefix+"export-patch",
		mcp.WithDescription("Returns the patch a part plays as JSON."),
		partArg,
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		part, err := req.RequireInt("part")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		js, err := c.ExportJSON(part)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(js), nil
	})

	s.AddTool(mcp.NewTool(toolPrefix+"import-patch",
		mcp.WithDescription("Replaces the patch a part plays with a JSON preset. Parameters missing from the preset take their defaults."),
		partArg,
		mcp.WithString("patch-json", mcp.Required(), mcp.Description("Preset as returned by export-patch.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		part, err := req.RequireInt("part")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		js, err := req.RequireString("patch-json")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := c.ImportJSON(part, js); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Patch imported."), nil
	})

	s.AddTool(mcp.NewTool(toolPrefix+"play-note",
		mcp.WithDescription("Plays a note on a part."),
		partArg,
		mcp.WithNumber("note", mcp.Required(), mcp.Min(0), mcp.Max(127)),
		mcp.WithNumber("velocity", mcp.Min(1), mcp.Max(127), mcp.DefaultNumber(100)),
		mcp.WithNumber("duration_ms", mcp.Min(1), mcp.DefaultNumber(500)),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		part, err := req.RequireInt("part")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		note, err := req.RequireInt("note")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		dur := time.Duration(req.GetInt("duration_ms", 500)) * time.Millisecond
		if err := c.PlayNote(part, note, req.GetInt("velocity", 100), dur); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Note played."), nil
	})

	return s
}

func partProgram(req mcp.CallToolRequest) (part, prog int, err error) {
	if part, err = req.RequireInt("part"); err != nil {
		return 0, 0, err
	}
	if prog, err = req.RequireInt("program"); err != nil {
		return 0, 0, err
	}
	return part, prog, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// Serve answers MCP requests read from in until ctx is done or in closes.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	logger.Info("MCP control server listening on stdio")
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

