package calendar_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/wellaios/calendar-mcp/internal/authflow"
	"github.com/wellaios/calendar-mcp/internal/calendar"
	"github.com/wellaios/calendar-mcp/internal/credstore"
	"github.com/wellaios/calendar-mcp/internal/instrumentation"
	"github.com/wellaios/calendar-mcp/internal/logging"
	"github.com/wellaios/calendar-mcp/internal/server"
)

// RegisterCalendarTools registers the calendar tools with the MCP server.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	viewCalendarTool := mcp.NewTool("view_calendar",
		mcp.WithDescription("View the upcoming Google Calendar events of the authenticated user. "+
			"This tool requires no parameters."),
	)

	s.AddTool(viewCalendarTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleViewCalendar(ctx, request, sc)
	})

	addEventTool := mcp.NewTool("add_event_to_calendar",
		mcp.WithDescription("Add an event to the authenticated user's Google Calendar. "+
			"Times are wall-clock times in the user's calendar timezone."),
		mcp.WithString("details",
			mcp.Required(),
			mcp.Description("A description or summary of the event (e.g., 'Team meeting')"),
		),
		mcp.WithString("start_time",
			mcp.Required(),
			mcp.Description("The start time of the event in 'YYYY-MM-DDTHH:MM:SS' format (e.g., '2025-05-26T07:00:00')"),
		),
		mcp.WithString("end_time",
			mcp.Required(),
			mcp.Description("The end time of the event in 'YYYY-MM-DDTHH:MM:SS' format (e.g., '2025-05-26T08:00:00')"),
		),
	)

	s.AddTool(addEventTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleAddEvent(ctx, request, sc)
	})

	return nil
}

// authorizedClient resolves the caller's credential into a calendar
// client. When no credential exists, it mints a correlation token and
// returns the auth-required result instead; the agent runtime sends the
// user through /auth and retries the tool call afterwards.
func authorizedClient(ctx context.Context, sc *server.ServerContext, userID string) (server.CalendarAPI, *mcp.CallToolResult, error) {
	token, err := sc.Credentials().Token(ctx, userID)
	if errors.Is(err, credstore.ErrNoCredential) {
		correlationToken, createErr := sc.Registry().Create(userID)
		if createErr != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("Failed to start authorization: %v", createErr)), nil
		}

		sc.Metrics().RecordAuthFlow(ctx, instrumentation.AuthFlowSignaled)
		sc.Metrics().PendingAuthorizationOpened(ctx)
		sc.Logger().Info("authorization required",
			logging.UserHash(userID),
		)

		return nil, mcp.NewToolResultText(authflow.AuthRequiredResult(correlationToken)), nil
	}
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Failed to load credentials: %v", err)), nil
	}

	client, err := sc.CalendarClient(ctx, token)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Failed to create calendar client: %v", err)), nil
	}

	return client, nil, nil
}

func handleViewCalendar(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	userID := server.UserIDFromContext(ctx)
	start := time.Now()

	ctx, span := instrumentation.StartToolSpan(ctx, "view_calendar", logging.AnonymizeUserID(userID))
	defer span.End()

	client, result, err := authorizedClient(ctx, sc, userID)
	if result != nil || err != nil {
		return result, err
	}

	events, err := client.ListUpcomingEvents(ctx, calendar.DefaultCalendarID, 0)
	if err != nil {
		sc.Metrics().RecordCalendarOperation(ctx, "list_events", instrumentation.StatusError, time.Since(start))
		sc.Metrics().RecordToolInvocation(ctx, "view_calendar", instrumentation.StatusError, time.Since(start))
		sc.Logger().Error("listing events failed",
			logging.Tool("view_calendar"),
			logging.UserHash(userID),
			logging.Err(err),
		)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list events: %v", err)), nil
	}

	sc.Metrics().RecordCalendarOperation(ctx, "list_events", instrumentation.StatusSuccess, time.Since(start))
	sc.Metrics().RecordToolInvocation(ctx, "view_calendar", instrumentation.StatusSuccess, time.Since(start))

	payload, err := json.Marshal(events)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode events: %v", err)), nil
	}

	return mcp.NewToolResultText(string(payload)), nil
}

func handleAddEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	userID := server.UserIDFromContext(ctx)
	start := time.Now()

	ctx, span := instrumentation.StartToolSpan(ctx, "add_event_to_calendar", logging.AnonymizeUserID(userID))
	defer span.End()

	args := request.GetArguments()

	details, _ := args["details"].(string)
	if details == "" {
		return mcp.NewToolResultError("details is required"), nil
	}

	startTime, _ := args["start_time"].(string)
	if startTime == "" {
		return mcp.NewToolResultError("start_time is required"), nil
	}
	startAt, err := time.Parse(calendar.LocalTimeLayout, startTime)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid start_time format: %v", err)), nil
	}

	endTime, _ := args["end_time"].(string)
	if endTime == "" {
		return mcp.NewToolResultError("end_time is required"), nil
	}
	endAt, err := time.Parse(calendar.LocalTimeLayout, endTime)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid end_time format: %v", err)), nil
	}

	if !endAt.After(startAt) {
		return mcp.NewToolResultError("end_time must be after start_time"), nil
	}

	client, result, err := authorizedClient(ctx, sc, userID)
	if result != nil || err != nil {
		return result, err
	}

	created, err := client.CreateEvent(ctx, calendar.DefaultCalendarID, calendar.EventInput{
		Summary: details,
		Start:   startTime,
		End:     endTime,
	})
	if err != nil {
		sc.Metrics().RecordCalendarOperation(ctx, "create_event", instrumentation.StatusError, time.Since(start))
		sc.Metrics().RecordToolInvocation(ctx, "add_event_to_calendar", instrumentation.StatusError, time.Since(start))
		sc.Logger().Error("creating event failed",
			logging.Tool("add_event_to_calendar"),
			logging.UserHash(userID),
			logging.Err(err),
		)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create event: %v", err)), nil
	}

	sc.Metrics().RecordCalendarOperation(ctx, "create_event", instrumentation.StatusSuccess, time.Since(start))
	sc.Metrics().RecordToolInvocation(ctx, "add_event_to_calendar", instrumentation.StatusSuccess, time.Since(start))

	payload, err := json.Marshal(created)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode event: %v", err)), nil
	}

	return mcp.NewToolResultText(string(payload)), nil
}
