package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

var sourceFields = []Field{
	{Name: "problem_id", Aliases: []string{"problem", "p"}, Prompt: "problem_id", Type: FieldInt64, Required: true},
	{Name: "language_code", Aliases: []string{"lang", "language"}, Prompt: "language_code", Type: FieldString, Required: true},
	{Name: "source_code", Aliases: []string{"code"}, Prompt: "source_code", Type: FieldString, Required: true},
	{Name: "source_file", Aliases: []string{"file"}, Prompt: "source_file", Type: FieldFile},
	{Name: "assignment_id", Aliases: []string{"assignment"}, Prompt: "assignment_id", Type: FieldInt64},
	{Name: "idempotency_key", Prompt: "idempotency_key", Type: FieldString},
}

var submissionID = Field{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldString, Required: true}

var templateFields = []Field{
	{Name: "head", Prompt: "template head", Type: FieldString},
	{Name: "body", Prompt: "template body", Type: FieldString},
	{Name: "tail", Prompt: "template tail", Type: FieldString},
}

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "submission",
			Action:       "run",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions/run",
			RequiresUser: true,
			Fields:       sourceFields,
		},
		{
			Service:      "submission",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions",
			RequiresUser: true,
			Fields:       sourceFields,
		},
		{
			Service:      "submission",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id",
			Fields:       []Field{submissionID},
		},
		{
			Service:      "submission",
			Action:       "wait",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id/wait",
			Fields:       []Field{submissionID},
		},
		{
			Service: "submission",
			Action:  "watch",
			Local:   true,
			Fields: []Field{
				{Name: "ids", Aliases: []string{"id"}, Prompt: "submission_ids (comma-separated)", Type: FieldStringList, Required: true},
			},
		},
		{
			Service:      "submission",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions",
			Fields: []Field{
				{Name: "user_id", Aliases: []string{"user"}, Prompt: "user_id", Type: FieldInt64, Query: true},
				{Name: "problem_id", Aliases: []string{"problem"}, Prompt: "problem_id", Type: FieldInt64, Query: true},
				{Name: "kind", Prompt: "kind (graded|run)", Type: FieldString, Query: true},
				{Name: "page", Prompt: "page", Type: FieldInt, Query: true},
				{Name: "page_size", Aliases: []string{"size"}, Prompt: "page_size", Type: FieldInt, Query: true},
			},
		},
		{
			Service:      "submission",
			Action:       "delete",
			Method:       "DELETE",
			PathTemplate: "/api/v1/submissions/:id",
			Fields:       []Field{submissionID},
		},
		{
			Service:      "submission",
			Action:       "grading",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id/grading",
			Fields:       []Field{submissionID},
		},
		{
			Service:      "language",
			Action:       "save",
			Method:       "PUT",
			PathTemplate: "/api/v1/languages/:code",
			Fields: append([]Field{
				{Name: "code", Prompt: "language_code", Type: FieldString, Required: true},
				{Name: "name", Prompt: "name", Type: FieldString, Required: true},
				{Name: "time_factor", Aliases: []string{"factor"}, Prompt: "default_time_factor", Type: FieldFloat, Required: true},
				{Name: "memory_kb", Aliases: []string{"memory"}, Prompt: "default_memory_kb", Type: FieldInt64, Required: true},
			}, templateFields...),
		},
		{
			Service:      "language",
			Action:       "override",
			Method:       "PUT",
			PathTemplate: "/api/v1/problems/:problem_id/languages/:code",
			Fields: append([]Field{
				{Name: "problem_id", Aliases: []string{"problem"}, Prompt: "problem_id", Type: FieldInt64, Required: true},
				{Name: "code", Prompt: "language_code", Type: FieldString, Required: true},
				{Name: "time_factor", Aliases: []string{"factor"}, Prompt: "time_factor", Type: FieldFloat},
				{Name: "memory_kb", Aliases: []string{"memory"}, Prompt: "memory_kb", Type: FieldInt64},
			}, templateFields...),
		},
		{
			Service:      "language",
			Action:       "limits",
			Method:       "GET",
			PathTemplate: "/api/v1/problems/:problem_id/languages/:code/limits",
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problem"}, Prompt: "problem_id", Type: FieldInt64, Required: true},
				{Name: "code", Prompt: "language_code", Type: FieldString, Required: true},
			},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		key := fmt.Sprintf("%s %s", cmd.Service, cmd.Action)
		result[key] = cmd
	}
	return result
}

// BuildRequest creates the HTTP request for a command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	if cmd.Local {
		return RequestSpec{}, fmt.Errorf("%s %s is not an HTTP command", cmd.Service, cmd.Action)
	}
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}
	query, err := buildQuery(cmd.Fields, params)
	if err != nil {
		return RequestSpec{}, err
	}
	if query != "" {
		path += "?" + query
	}

	headers := map[string]string{}
	if cmd.Service == "submission" && (cmd.Action == "run" || cmd.Action == "submit") {
		headers["Idempotency-Key"] = params.Get("idempotency_key")
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: headers,
		Body:    body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	for _, key := range []string{"problem_id", "id", "code"} {
		placeholder := ":" + key
		if strings.Contains(path, placeholder) {
			value := params.Get(key)
			if value == "" {
				return "", fmt.Errorf("missing path parameter: %s", key)
			}
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
		}
	}
	return path, nil
}

func buildQuery(fields []Field, params Params) (string, error) {
	values := url.Values{}
	for _, field := range fields {
		if !field.Query {
			continue
		}
		value := strings.TrimSpace(params.Get(field.Name))
		if value == "" {
			continue
		}
		if err := checkType(field, value); err != nil {
			return "", err
		}
		values.Set(field.Name, value)
	}
	return values.Encode(), nil
}

func checkType(field Field, value string) error {
	var err error
	switch field.Type {
	case FieldInt:
		_, err = ParseInt(value)
	case FieldInt64:
		_, err = ParseInt64(value)
	case FieldFloat:
		_, err = ParseFloat(value)
	}
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field.Name, err)
	}
	return nil
}

func buildPayload(cmd Command, params Params) (any, error) {
	switch cmd.Service {
	case "submission":
		switch cmd.Action {
		case "run", "submit":
			return buildSubmissionPayload(params)
		}
	case "language":
		switch cmd.Action {
		case "save":
			return buildLanguagePayload(params)
		case "override":
			return buildOverridePayload(params)
		}
	}
	return nil, nil
}

func buildSubmissionPayload(params Params) (any, error) {
	problemID, err := ParseInt64(params.Get("problem_id"))
	if err != nil {
		return nil, fmt.Errorf("invalid problem_id: %w", err)
	}

	sourceCode := params.Get("source_code")
	if (sourceCode == "" || sourceCode == "_file_") && params.Get("source_file") != "" {
		sourceCode, err = ReadFile(params.Get("source_file"))
		if err != nil {
			return nil, err
		}
	}
	if sourceCode == "" || sourceCode == "_file_" {
		return nil, fmt.Errorf("source_code is required")
	}

	payload := map[string]any{
		"problem_id":    problemID,
		"language_code": params.Get("language_code"),
		"source_code":   sourceCode,
	}
	if params.Get("assignment_id") != "" {
		assignmentID, err := ParseInt64(params.Get("assignment_id"))
		if err != nil {
			return nil, fmt.Errorf("invalid assignment_id: %w", err)
		}
		payload["assignment_id"] = assignmentID
	}
	return payload, nil
}

func buildLanguagePayload(params Params) (any, error) {
	factor, err := ParseFloat(params.Get("time_factor"))
	if err != nil {
		return nil, fmt.Errorf("invalid time_factor: %w", err)
	}
	memory, err := ParseInt64(params.Get("memory_kb"))
	if err != nil {
		return nil, fmt.Errorf("invalid memory_kb: %w", err)
	}
	return map[string]any{
		"name":                params.Get("name"),
		"default_time_factor": factor,
		"default_memory_kb":   memory,
		"template": map[string]string{
			"head": params.Get("head"),
			"body": params.Get("body"),
			"tail": params.Get("tail"),
		},
	}, nil
}

// buildOverridePayload only sends the fields that were given, so the rest
// inherit from the language.
func buildOverridePayload(params Params) (any, error) {
	payload := map[string]any{}
	if params.Has("time_factor") {
		factor, err := ParseFloat(params.Get("time_factor"))
		if err != nil {
			return nil, fmt.Errorf("invalid time_factor: %w", err)
		}
		payload["time_factor"] = factor
	}
	if params.Has("memory_kb") {
		memory, err := ParseInt64(params.Get("memory_kb"))
		if err != nil {
			return nil, fmt.Errorf("invalid memory_kb: %w", err)
		}
		payload["memory_kb"] = memory
	}
	template := map[string]string{}
	for _, key := range []string{"head", "body", "tail"} {
		if params.Has(key) {
			template[key] = params.Get(key)
		}
	}
	payload["template"] = template
	return payload, nil
}
