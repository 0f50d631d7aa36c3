// Package liveinteract is the agent behind the /ws endpoint of the API
// server: a realtime assistant answering weather and time questions over a
// bidirectional live session.
package liveinteract

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentcookbook/agent"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/tool"
)

const (
	AppName   = "live_interact"
	AgentName = "root_agent"
)

const instruction = `You are a realtime assistant in a live conversation. Answer briefly and naturally.
Use get_weather for weather questions and get_current_time for questions about the time in a city.`

type cityInfo struct {
	timezone    string
	temperature float64
	condition   string
	humidity    int
}

var cities = map[string]cityInfo{
	"new york":      {"America/New_York", 22, "Sunny", 55},
	"london":        {"Europe/London", 15, "Cloudy", 72},
	"berlin":        {"Europe/Berlin", 18, "Partly Cloudy", 60},
	"tokyo":         {"Asia/Tokyo", 25, "Clear", 65},
	"san francisco": {"America/Los_Angeles", 17, "Foggy", 80},
}

func lookup(city string) (string, cityInfo, bool) {
	key := strings.ToLower(strings.TrimSpace(city))
	if before, _, found := strings.Cut(key, ","); found {
		key = strings.TrimSpace(before)
	}
	info, ok := cities[key]
	return key, info, ok
}

// WeatherTool reports canned weather for a few well known cities.
type WeatherTool struct{}

func (t *WeatherTool) Name() string { return "get_weather" }

func (t *WeatherTool) Description() string {
	return "Get current weather information for a city"
}

func (t *WeatherTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{
				"type":        "string",
				"description": "City name, e.g. 'London'",
			},
		},
		"required": []string{"city"},
	}
}

func (t *WeatherTool) Call(_ *core.ToolContext, args map[string]any) (any, error) {
	city, _ := args["city"].(string)
	if strings.TrimSpace(city) == "" {
		return nil, tool.NewToolError(t.Name(), "city is required", tool.CodeValidation)
	}

	_, info, ok := lookup(city)
	if !ok {
		return map[string]any{
			"status":        "error",
			"error_message": fmt.Sprintf("Weather information for '%s' is not available.", city),
		}, nil
	}

	return map[string]any{
		"status":        "success",
		"city":          city,
		"temperature_c": info.temperature,
		"condition":     info.condition,
		"humidity":      info.humidity,
		"report":        fmt.Sprintf("The weather in %s is %s with a temperature of %.0f°C.", city, strings.ToLower(info.condition), info.temperature),
	}, nil
}

// TimeTool reports the local time of a known city.
type TimeTool struct {
	now func() time.Time
}

func (t *TimeTool) Name() string { return "get_current_time" }

func (t *TimeTool) Description() string {
	return "Get the current local time in a city"
}

func (t *TimeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{
				"type":        "string",
				"description": "City name, e.g. 'Tokyo'",
			},
		},
		"required": []string{"city"},
	}
}

func (t *TimeTool) Call(_ *core.ToolContext, args map[string]any) (any, error) {
	city, _ := args["city"].(string)
	if strings.TrimSpace(city) == "" {
		return nil, tool.NewToolError(t.Name(), "city is required", tool.CodeValidation)
	}

	_, info, ok := lookup(city)
	if !ok {
		return map[string]any{
			"status":        "error",
			"error_message": fmt.Sprintf("Sorry, I don't have timezone information for %s.", city),
		}, nil
	}

	loc, err := time.LoadLocation(info.timezone)
	if err != nil {
		return nil, tool.NewToolError(t.Name(), err.Error(), tool.CodeExecution)
	}

	now := t.now().In(loc)
	return map[string]any{
		"status":   "success",
		"city":     city,
		"timezone": info.timezone,
		"time":     now.Format(time.RFC3339),
		"report":   fmt.Sprintf("The current time in %s is %s", city, now.Format("2006-01-02 15:04:05 MST-0700")),
	}, nil
}

// Options configures the agent.
type Options struct {
	// Now is the clock of get_current_time.
	Now func() time.Time
}

// New builds the live agent on llm.
func New(llm model.Model, optFns ...func(o *Options)) *agent.ModelAgent {
	opts := Options{Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := agent.NewModelAgent(AgentName, llm, func(o *agent.ModelAgentOptions) {
		o.Description = "Realtime assistant answering weather and time questions"
		o.Instruction = agent.StaticInstruction(instruction)
		o.AllowTransfer = false
	})
	a.RegisterTools(&WeatherTool{}, &TimeTool{now: opts.Now})

	return a
}

// LiveConfig returns the session configuration used by the server.
// modalities defaults to AUDIO.
func LiveConfig(voice string, modalities ...string) model.LiveConfig {
	if len(modalities) == 0 {
		modalities = []string{model.ModalityAudio}
	}
	return model.LiveConfig{
		ResponseModalities:  modalities,
		Voice:               voice,
		InputTranscription:  true,
		OutputTranscription: true,
	}
}
