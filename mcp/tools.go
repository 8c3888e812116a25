package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mbocsi/moodsync/services"
)

// MoodTools exposes mood delivery to MCP clients
type MoodTools struct {
	services *services.ServiceContainer
}

func NewMoodTools(serviceContainer *services.ServiceContainer) *MoodTools {
	return &MoodTools{services: serviceContainer}
}

// Register adds every mood tool to s
func (m *MoodTools) Register(s *MCPServer) {
	moods := make([]string, 0, 10)
	for _, info := range m.services.Delivery.Moods() {
		moods = append(moods, string(info.Name))
	}

	notifyTool := mcp.NewTool("notify_mood",
		mcp.WithDescription("Send a detected mood to the LED endpoints. Unknown labels fall back to neutral."),
		mcp.WithString("mood",
			mcp.Required(),
			mcp.Description("Mood label, one of: "+strings.Join(moods, ", ")),
		),
		mcp.WithNumber("intensity",
			mcp.Description("Detector confidence between 0 and 1"),
			mcp.Min(0),
			mcp.Max(1),
		),
		mcp.WithString("endpoint",
			mcp.Description("Only deliver to this endpoint; all endpoints when omitted"),
		),
	)
	s.AddTool(notifyTool, m.handleNotifyMood)

	listEndpointsTool := mcp.NewTool("list_endpoints",
		mcp.WithDescription("List configured endpoints with connection state and delivery counters"),
	)
	s.AddTool(listEndpointsTool, m.handleListEndpoints)

	connectTool := mcp.NewTool("connect_endpoint",
		mcp.WithDescription("Open a session to an endpoint"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Endpoint name"),
		),
	)
	s.AddTool(connectTool, m.handleConnect)

	disconnectTool := mcp.NewTool("disconnect_endpoint",
		mcp.WithDescription("Close the session to an endpoint and drop its pending command"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Endpoint name"),
		),
	)
	s.AddTool(disconnectTool, m.handleDisconnect)

	listMoodsTool := mcp.NewTool("list_moods",
		mcp.WithDescription("List known moods with their LED levels"),
	)
	s.AddTool(listMoodsTool, m.handleListMoods)

	outcomesTool := mcp.NewTool("recent_outcomes",
		mcp.WithDescription("Show the most recent delivery outcomes, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of outcomes"),
		),
	)
	s.AddTool(outcomesTool, m.handleRecentOutcomes)
}

func (m *MoodTools) handleNotifyMood(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	label, err := request.RequireString("mood")
	if err != nil {
		return mcp.NewToolResultError("mood is required and must be a string"), nil
	}

	req := services.MoodRequest{
		Mood:     label,
		Endpoint: request.GetString("endpoint", ""),
	}
	if args, ok := request.GetRawArguments().(map[string]any); ok {
		if _, present := args["intensity"]; present {
			v := request.GetFloat("intensity", 0)
			req.Intensity = &v
		}
	}

	ids, err := m.services.Delivery.NotifyMood(req)
	if err != nil {
		return toolError("Error sending mood", err), nil
	}
	return jsonResult(map[string]any{"mood": label, "ids": ids})
}

func (m *MoodTools) handleListEndpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	endpoints, err := m.services.Endpoint.ListEndpoints()
	if err != nil {
		return toolError("Error listing endpoints", err), nil
	}
	return jsonResult(map[string]any{
		"endpoints": endpoints,
		"count":     len(endpoints),
	})
}

func (m *MoodTools) handleConnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required and must be a string"), nil
	}
	if err := m.services.Endpoint.Connect(ctx, name); err != nil {
		return toolError("Error connecting "+name, err), nil
	}
	return m.endpointResult(name)
}

func (m *MoodTools) handleDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required and must be a string"), nil
	}
	if err := m.services.Endpoint.Disconnect(name); err != nil {
		return toolError("Error disconnecting "+name, err), nil
	}
	return m.endpointResult(name)
}

func (m *MoodTools) handleListMoods(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(m.services.Delivery.Moods())
}

func (m *MoodTools) handleRecentOutcomes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(request.GetFloat("limit", 10))
	return jsonResult(m.services.Delivery.RecentOutcomes(limit))
}

func (m *MoodTools) endpointResult(name string) (*mcp.CallToolResult, error) {
	info, err := m.services.Endpoint.GetEndpoint(name)
	if err != nil {
		return toolError("Error reading "+name, err), nil
	}
	return jsonResult(info)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

func toolError(prefix string, err error) *mcp.CallToolResult {
	var serviceErr services.ServiceError
	if errors.As(err, &serviceErr) {
		slog.Debug("MCP tool rejected", "code", serviceErr.Code, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("%s [%s]: %v", prefix, serviceErr.Code, err))
	}
	slog.Error("MCP tool failed", "error", err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}
